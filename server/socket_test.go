package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// acceptOne starts a server wrapping its first connection in a Socket
// and dials it, returning both ends
func acceptOne(t *testing.T, opts ...OptionModifier) (Socket, *websocket.Conn) {
	t.Helper()

	sockets := make(chan Socket, 1)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		sockets <- NewSocket(conn, "test", opts...)
	})

	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)

	wsURL := "ws" + strings.TrimPrefix(testServer.URL, "http")

	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	t.Cleanup(func() {
		if err := clientConn.Close(); err != nil {
			t.Logf("Error closing client: %v", err)
		}
	})

	select {
	case s := <-sockets:
		return s, clientConn
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for the server socket")
		return nil, nil
	}
}

func TestNewSocket(t *testing.T) {
	socket, _ := acceptOne(t)

	if socket.Id() == "" {
		t.Error("Expected socket ID to be set")
	}
	if socket.Topic() != "test" {
		t.Errorf("Expected topic %q, got %q", "test", socket.Topic())
	}
}

func TestSocketReceiveFrame(t *testing.T) {
	socket, clientConn := acceptOne(t)

	if err := clientConn.WriteMessage(websocket.TextMessage, []byte(`not-json`)); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	if err := clientConn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}

	// the malformed frame is dropped
	select {
	case f := <-socket.Inbound():
		if f.Type != "ping" {
			t.Errorf("Expected frame type %q, got %q", "ping", f.Type)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for frame")
	}
}

func TestSocketSendFrame(t *testing.T) {
	socket, clientConn := acceptOne(t)

	if err := socket.Send(map[string]any{"type": "progress", "pct": 50}); err != nil {
		t.Fatalf("Failed to send frame: %v", err)
	}

	if err := clientConn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	messageType, message, err := clientConn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}

	if messageType != websocket.TextMessage {
		t.Errorf("Expected text message type, got %d", messageType)
	}

	expected := `{"pct":50,"type":"progress"}`
	if string(message) != expected {
		t.Errorf("Expected message %q, got %q", expected, string(message))
	}
}

func TestSocketPingPong(t *testing.T) {
	pingReceived := make(chan string, 1)
	socket, clientConn := acceptOne(t, WithPingInterval(100*time.Millisecond))

	clientConn.SetPingHandler(func(appData string) error {
		select {
		case pingReceived <- appData:
		default:
		}
		return clientConn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	// keep reading to process control frames
	go drainConn(clientConn)

	select {
	case data := <-pingReceived:
		if data != socket.Id() {
			t.Errorf("Expected ping payload %q, got %q", socket.Id(), data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for ping")
	}
}

func TestSocketClose(t *testing.T) {
	closed := make(chan struct{})
	socket, clientConn := acceptOne(t, WithOnCloseCallback(func() { close(closed) }))

	// the client answers the close frame while reading
	go drainConn(clientConn)

	if err := socket.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	select {
	case <-socket.Wait():
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for close notification")
	}

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Expected onClose callback to be called")
	}

	if err := socket.Send(map[string]string{"type": "late"}); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestSocketWaitOnPeerClose(t *testing.T) {
	socket, clientConn := acceptOne(t)

	if err := clientConn.Close(); err != nil {
		t.Logf("Error closing client: %v", err)
	}

	select {
	case <-socket.Wait():
	case <-time.After(5 * time.Second):
		t.Fatal("Timeout waiting for close notification")
	}

	// inbound is closed once the connection ended
	select {
	case _, ok := <-socket.Inbound():
		if ok {
			t.Error("Expected inbound channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for inbound channel to close")
	}
}

func drainConn(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
