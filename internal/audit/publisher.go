// Package audit implements the outbound change-event stream
// (SPEC_FULL.md §2/§5): every committed mutation is published to a
// Pub/Sub topic for downstream consumers, and optionally tailed live
// over a websocket for the out-of-scope support console.
package audit

import (
	"context"
	"encoding/json"

	"ledger/internal/pipeline"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// Publisher sends ChangeEvents to the audit Pub/Sub topic: the same
// client construction and Publish-and-wait-for-id shape used for
// outbound ingestion jobs elsewhere, applied to committed mutations
// instead.
type Publisher struct {
	client *pubsub.Client
	topic  string
	logger zerolog.Logger
}

func NewPublisher(client *pubsub.Client, topic string, logger zerolog.Logger) *Publisher {
	return &Publisher{client: client, topic: topic, logger: logger}
}

var _ pipeline.AuditSink = (*Publisher)(nil)

// Publish emits one ChangeEvent. Failures are logged, not returned:
// the audit stream is observational, and a dropped audit message must
// never fail the mutation it describes.
func (p *Publisher) Publish(ctx context.Context, event pipeline.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("user_id", event.UserID.String()).Msg("audit: failed to encode change event")
		return
	}

	result := p.client.Topic(p.topic).Publish(ctx, &pubsub.Message{Data: payload})
	if _, err := result.Get(ctx); err != nil {
		p.logger.Warn().Err(err).Str("user_id", event.UserID.String()).
			Msg("audit: failed to publish change event")
	}
}
