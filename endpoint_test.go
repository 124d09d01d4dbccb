package realtime

import "testing"

func TestEndpoint(t *testing.T) {
	tests := []struct {
		origin string
		path   string
		want   string
	}{
		{"https://books.example.com", "/ws/processing", "wss://books.example.com/ws/processing"},
		{"http://localhost:5173", "/ws/chat/12", "ws://localhost:5173/ws/chat/12"},
		{"http://localhost:5173/library", "ws/processing", "ws://localhost:5173/ws/processing"},
		{"wss://books.example.com", "/ws/chat/1", "wss://books.example.com/ws/chat/1"},
	}

	for _, tt := range tests {
		got, err := Endpoint(tt.origin, tt.path)
		if err != nil {
			t.Fatalf("Endpoint(%q, %q) unexpected error: %v", tt.origin, tt.path, err)
		}
		if got != tt.want {
			t.Errorf("Endpoint(%q, %q) = %q, want %q", tt.origin, tt.path, got, tt.want)
		}
	}
}

func TestEndpointInvalidOrigin(t *testing.T) {
	for _, origin := range []string{"", "ftp://books.example.com", "books.example.com", "://"} {
		if _, err := Endpoint(origin, "/ws/processing"); err == nil {
			t.Errorf("Endpoint(%q) expected an error", origin)
		}
	}
}

func TestGenId(t *testing.T) {
	a, b := GenId(), GenId()
	if a == "" || a == b {
		t.Errorf("expected distinct non-empty ids, got %q and %q", a, b)
	}
}
