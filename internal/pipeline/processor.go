package pipeline

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// ProcessorPool drains deliveries from one or more Producers with a
// configurable number of processors in flight (spec.md §4.4:
// "processors: 10-100"). golang.org/x/sync/semaphore bounds
// concurrency rather than a hand-rolled counting channel, matching
// rcourtman-Pulse's use of the same package for its own worker pools.
type ProcessorPool struct {
	dispatcher  *Dispatcher
	concurrency int64
	metrics     *Metrics
	logger      zerolog.Logger
}

func NewProcessorPool(dispatcher *Dispatcher, concurrency int, metrics *Metrics, logger zerolog.Logger) *ProcessorPool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &ProcessorPool{dispatcher: dispatcher, concurrency: int64(concurrency), metrics: metrics, logger: logger}
}

// Run drains every producer's Deliveries channel until ctx is done.
// Each delivery's dispatch runs in its own goroutine, capped at
// p.concurrency in flight; requests for different users proceed in
// parallel, while ordering within one user's actor is guaranteed by
// the actor's own mailbox, not by this pool.
func (p *ProcessorPool) Run(ctx context.Context, producers ...Producer) {
	sem := semaphore.NewWeighted(p.concurrency)
	for _, producer := range producers {
		go p.drain(ctx, producer, sem)
	}
	<-ctx.Done()
}

func (p *ProcessorPool) drain(ctx context.Context, producer Producer, sem *semaphore.Weighted) {
	for {
		select {
		case <-ctx.Done():
			return
		case delivery, ok := <-producer.Deliveries():
			if !ok {
				return
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				return
			}
			go func() {
				defer sem.Release(1)
				p.process(ctx, delivery)
			}()
		}
	}
}

func (p *ProcessorPool) process(ctx context.Context, delivery Delivery) {
	p.metrics.received(delivery.Topic)
	err := p.dispatcher.Dispatch(ctx, delivery)
	switch {
	case err == nil:
		delivery.Ack(ctx)
		p.metrics.acked(delivery.Topic)
	case isTerminalMessage(err):
		if delivery.Archive != nil {
			p.logger.Warn().Err(err).Str("topic", delivery.Topic).Msg("dispatch: terminal for message, archiving without retry")
			delivery.Archive(ctx)
		} else {
			p.logger.Warn().Err(err).Str("topic", delivery.Topic).Msg("dispatch: terminal for message, acking without retry")
			delivery.Ack(ctx)
		}
		p.metrics.dropped(delivery.Topic)
	default:
		p.logger.Warn().Err(err).Str("topic", delivery.Topic).Msg("dispatch: transient failure, nacking for redelivery")
		delivery.Nack(ctx)
		p.metrics.nacked(delivery.Topic)
	}
}
