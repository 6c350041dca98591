package audit

import (
	"context"

	"ledger/internal/pipeline"
)

// FanOut publishes a ChangeEvent to every configured sink. A nil
// *Tail is fine: it's only wired when the support-console tail
// endpoint is enabled.
type FanOut struct {
	sinks []pipeline.AuditSink
}

func NewFanOut(sinks ...pipeline.AuditSink) *FanOut {
	f := &FanOut{}
	for _, s := range sinks {
		if s == nil {
			continue
		}
		if t, ok := s.(*Tail); ok && t == nil {
			continue
		}
		f.sinks = append(f.sinks, s)
	}
	return f
}

func (f *FanOut) Publish(ctx context.Context, event pipeline.ChangeEvent) {
	for _, s := range f.sinks {
		s.Publish(ctx, event)
	}
}

var _ pipeline.AuditSink = (*FanOut)(nil)
