package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ledger/internal/pipeline"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestTail_BroadcastsPublishedEventsToConnectedClients(t *testing.T) {
	tail := NewTail(zerolog.Nop())
	done := make(chan struct{})
	go tail.Run(done)
	t.Cleanup(func() { close(done) })

	server := httptest.NewServer(http.HandlerFunc(tail.ServeHTTP))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	event := pipeline.ChangeEvent{
		UserID:        uuid.New(),
		DeltaByBucket: map[string]int64{"trial": 50},
		SourceEventID: "evt-tail-1",
		Timestamp:     time.Unix(100, 0),
		Reason:        "grant",
	}

	require.Eventually(t, func() bool {
		tail.Publish(nil, event)

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		var got pipeline.ChangeEvent
		if err := json.Unmarshal(data, &got); err != nil {
			return false
		}
		return got.SourceEventID == event.SourceEventID
	}, 2*time.Second, 50*time.Millisecond)
}

func TestTail_ImplementsAuditSink(t *testing.T) {
	var sink pipeline.AuditSink = NewTail(zerolog.Nop())
	require.NotNil(t, sink)
}
