package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func httpMux(h *Hub) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.ServeWs)
	return mux
}

func TestHubBroadcast(t *testing.T) {
	h := NewHub(nil)
	h.Run()
	defer h.Shutdown()

	server := httptest.NewServer(httpMux(h))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the register message time to land
	time.Sleep(50 * time.Millisecond)

	h.Publish(Event{Type: TypeBatchProgress, BatchID: "b1", Percent: 50})

	var got Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, TypeBatchProgress, got.Type)
	require.Equal(t, "b1", got.BatchID)
	require.Equal(t, 50, got.Percent)
	require.False(t, got.Timestamp.IsZero())
}

func TestHubSubscriptionFilters(t *testing.T) {
	h := NewHub(nil)
	h.Run()
	defer h.Shutdown()

	server := httptest.NewServer(httpMux(h))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, conn.WriteJSON(clientMessage{Type: "subscribe", BatchID: "wanted"}))
	time.Sleep(50 * time.Millisecond)

	h.Publish(Event{Type: TypeBatchProgress, BatchID: "other", Percent: 10})
	h.Publish(Event{Type: TypeBatchProgress, BatchID: "wanted", Percent: 20})

	var got Event
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "wanted", got.BatchID)
	require.Equal(t, 20, got.Percent)
}

func TestPublishNeverBlocks(t *testing.T) {
	// No Run loop is draining the hub; publishing past the buffer must drop
	// events instead of stalling the caller.
	h := NewHub(nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			h.Publish(Event{Type: TypeBatchProgress, BatchID: "b1", Percent: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a saturated hub")
	}
}

func TestServeWsAfterShutdown(t *testing.T) {
	h := NewHub(nil)
	h.Run()
	h.Shutdown()

	server := httptest.NewServer(httpMux(h))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 503, resp.StatusCode)
}
