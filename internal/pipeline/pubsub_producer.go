package pipeline

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// pushEnvelope is the body Cloud Pub/Sub POSTs to a push endpoint.
type pushEnvelope struct {
	Message struct {
		Data       string            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PubSubPushProducer adapts Cloud Pub/Sub's push-delivery model to the
// pull-shaped Producer contract: an http.Handler decodes each push
// request into a Delivery, and Ack/Nack become HTTP status codes (2xx
// acks, 5xx asks Pub/Sub to retry). Callers should wrap Handler() with
// PubSubAuthMiddleware to verify the request actually came from
// Pub/Sub before it reaches here.
type PubSubPushProducer struct {
	subscriptionTopics map[string]string // subscription name -> topic
	logger             zerolog.Logger
	out                chan Delivery
}

// NewPubSubPushProducer returns a producer whose Handler should be
// mounted at the push endpoint URL configured in each subscription.
func NewPubSubPushProducer(subscriptionTopics map[string]string, logger zerolog.Logger) *PubSubPushProducer {
	return &PubSubPushProducer{
		subscriptionTopics: subscriptionTopics,
		logger:             logger,
		out:                make(chan Delivery),
	}
}

func (p *PubSubPushProducer) Deliveries() <-chan Delivery { return p.out }

// Handler returns the push endpoint. It blocks until the delivery has
// been acked or nacked by the processor pool, so the HTTP response
// status reflects the true outcome rather than guessing.
func (p *PubSubPushProducer) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env pushEnvelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			p.logger.Warn().Err(err).Msg("pubsub push: malformed envelope, acking to stop redelivery")
			w.WriteHeader(http.StatusOK)
			return
		}
		topic, known := p.subscriptionTopics[env.Subscription]
		if !known {
			p.logger.Warn().Str("subscription", env.Subscription).Msg("pubsub push: unknown subscription, acking")
			w.WriteHeader(http.StatusOK)
			return
		}
		data, err := base64.StdEncoding.DecodeString(env.Message.Data)
		if err != nil {
			p.logger.Warn().Err(err).Msg("pubsub push: undecodable payload, acking")
			w.WriteHeader(http.StatusOK)
			return
		}

		done := make(chan int, 1)
		delivery := Delivery{
			Topic: topic,
			Body:  data,
			Ack:   func(ctx context.Context) { done <- http.StatusOK },
			Nack:  func(ctx context.Context) { done <- http.StatusServiceUnavailable },
		}

		select {
		case p.out <- delivery:
		case <-r.Context().Done():
			return
		}

		select {
		case status := <-done:
			w.WriteHeader(status)
		case <-r.Context().Done():
		}
	})
}
