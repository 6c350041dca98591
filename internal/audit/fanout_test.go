package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"ledger/internal/pipeline"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []pipeline.ChangeEvent
}

func (s *recordingSink) Publish(_ context.Context, event pipeline.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestFanOut_PublishesToEverySink(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	f := NewFanOut(a, b)

	event := pipeline.ChangeEvent{
		UserID:        uuid.New(),
		DeltaByBucket: map[string]int64{"permanent": 100},
		SourceEventID: "evt-1",
		Timestamp:     time.Unix(0, 0),
		Reason:        "grant",
	}
	f.Publish(context.Background(), event)

	require.Equal(t, 1, a.count())
	require.Equal(t, 1, b.count())
	require.Equal(t, event, a.events[0])
}

func TestFanOut_SkipsNilSinks(t *testing.T) {
	a := &recordingSink{}
	f := NewFanOut(a, nil)
	require.Len(t, f.sinks, 1)

	f.Publish(context.Background(), pipeline.ChangeEvent{SourceEventID: "evt-2"})
	require.Equal(t, 1, a.count())
}

func TestFanOut_NoSinksIsSafe(t *testing.T) {
	f := NewFanOut()
	require.NotPanics(t, func() {
		f.Publish(context.Background(), pipeline.ChangeEvent{SourceEventID: "evt-3"})
	})
}
