package pipeline

import (
	"context"
	"strconv"
	"time"

	"ledger/internal/pgmq"

	"github.com/rs/zerolog"
)

// PgmqProducer pulls messages from one or more pgmq queues, each
// mapped to a topic name, and exposes them uniformly as Deliveries:
// for { select { done default } }, ReadWithPoll, decode, ack/nack.
type PgmqProducer struct {
	client      *pgmq.Client
	queueTopics map[string]string // queue name -> topic
	pollTimeout int
	batchSize   int
	logger      zerolog.Logger
	out         chan Delivery
}

// NewPgmqProducer starts one poll goroutine per queue in queueTopics.
func NewPgmqProducer(ctx context.Context, client *pgmq.Client, queueTopics map[string]string, pollTimeoutSec, batchSize int, logger zerolog.Logger) *PgmqProducer {
	p := &PgmqProducer{
		client:      client,
		queueTopics: queueTopics,
		pollTimeout: pollTimeoutSec,
		batchSize:   batchSize,
		logger:      logger,
		out:         make(chan Delivery),
	}
	for queue, topic := range queueTopics {
		go p.pollLoop(ctx, queue, topic)
	}
	return p
}

func (p *PgmqProducer) Deliveries() <-chan Delivery { return p.out }

func (p *PgmqProducer) pollLoop(ctx context.Context, queue, topic string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := p.client.ReadWithPoll(ctx, queue, p.pollTimeout, p.batchSize)
		if err != nil {
			p.logger.Error().Err(err).Str("queue", queue).Msg("pgmq poll failed, backing off")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range msgs {
			msg := msg
			queue := queue
			p.out <- Delivery{
				Topic: topic,
				Body:  msg.Data,
				Ack: func(ctx context.Context) {
					if err := p.client.Delete(ctx, queue, []int64{msg.ID}); err != nil {
						p.logger.Error().Err(err).Str("queue", queue).Str("msg_id", strconv.FormatInt(msg.ID, 10)).Msg("pgmq ack (delete) failed")
					}
				},
				// Nack is a no-op: the message's visibility timeout
				// expires on its own and pgmq redelivers it. There is
				// no explicit "make visible now" call to make, so we
				// simply leave the message where it is.
				Nack: func(ctx context.Context) {
					p.logger.Warn().Str("queue", queue).Str("msg_id", strconv.FormatInt(msg.ID, 10)).Msg("pgmq nack, awaiting redelivery")
				},
				Archive: func(ctx context.Context) {
					if err := p.client.Archive(ctx, queue, []int64{msg.ID}); err != nil {
						p.logger.Error().Err(err).Str("queue", queue).Str("msg_id", strconv.FormatInt(msg.ID, 10)).Msg("pgmq archive failed")
					}
				},
			}
		}
	}
}
