package ws_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorwave/vectorwave-go/observe/ws"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub := ws.NewHub()
	defer hub.Close()

	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	// Subscription happens inside the upgrade handler; give it a moment
	// before broadcasting.
	require.Eventually(t, func() bool {
		hub.Report("semantic_drift", map[string]any{"function_name": "f"})
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return false
		}
		var env ws.Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			return false
		}
		return env.Event == "semantic_drift" && env.Fields["function_name"] == "f"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_ReportWithoutClients(t *testing.T) {
	hub := ws.NewHub()
	defer hub.Close()

	assert.NotPanics(t, func() {
		hub.Report("log_queue_full", map[string]any{"error": "queue full"})
	})
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := ws.NewHub()
	server := httptest.NewServer(hub)
	defer server.Close()

	conn := dial(t, server)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	hub.Close()

	conn.SetReadDeadline(time.Now().Add(time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // connection torn down as expected
		}
	}
}
