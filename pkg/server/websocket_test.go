package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsClient speaks the line protocol over the WebSocket bridge
type wsClient struct {
	t  *testing.T
	ws *websocket.Conn
}

func dialWebSocket(t *testing.T, srv *Server) *wsClient {
	t.Helper()

	httpSrv := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(httpSrv.Close)

	url := "ws" + strings.TrimPrefix(httpSrv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial WebSocket: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return &wsClient{t: t, ws: ws}
}

func (c *wsClient) sendLine(line string) {
	c.t.Helper()
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(line+"\n")); err != nil {
		c.t.Fatalf("Failed to send %q: %v", line, err)
	}
}

func (c *wsClient) expectLine(want string) {
	c.t.Helper()
	c.ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		c.t.Fatalf("Failed to read message: %v", err)
	}
	if got := strings.TrimRight(string(data), "\r\n"); got != want {
		c.t.Fatalf("Expected %q, got %q", want, got)
	}
}

func TestWebSocketBridge(t *testing.T) {
	srv, _ := newTestServer(t, 10)

	client := dialWebSocket(t, srv)
	client.sendLine("alice wrongpass")
	client.expectLine(noticeAuthFailure)
	client.sendLine("alice secret")
	client.expectLine(noticeAuthSuccess)

	client.sendLine("join general")
	client.expectLine("Vous avez rejoint le salon general")

	// A bridged session is a full salon member alongside TCP clients
	tcp := dialServer(t, srv)
	tcp.authenticate("bob", "secret")
	tcp.sendLine("join general")
	tcp.expectLine("Vous avez rejoint le salon general")
	client.expectLine(noticeJoinBroadcast)

	tcp.sendLine("salut")
	client.expectLine("bob: salut")

	client.sendLine("re")
	tcp.expectLine("alice: re")
}

func TestWebSocketBridgeCountsAgainstCapacity(t *testing.T) {
	srv, _ := newTestServer(t, 1)

	client := dialWebSocket(t, srv)
	client.sendLine("alice secret")
	client.expectLine(noticeAuthSuccess)

	rejected := dialServer(t, srv)
	rejected.expectLine(noticeServerFull)
	rejected.expectEOF()
}
