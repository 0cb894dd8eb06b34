package conn

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// End-to-end over a real websocket: the greeting frame the backend sends
// on subscribe must reach the handler through the default dialer.
func TestManager_RealWebsocket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		ws.WriteMessage(websocket.TextMessage, []byte(`{"msg":"No alerts yet."}`))
		ws.WriteMessage(websocket.TextMessage, []byte(`{"id":"e1","event":{"camera_id":"cam1","event_type":"fight","timestamp":1700000000}}`))
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts"

	var mu sync.Mutex
	var frames [][]byte

	m := NewManager(Config{
		URL: wsURL,
		Handler: func(frame []byte) {
			mu.Lock()
			frames = append(frames, frame)
			mu.Unlock()
		},
	})
	defer m.Close()

	m.Open()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 2
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, StateConnected, m.State())
}
