package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mickaelvieira/realtime"
	"github.com/mickaelvieira/realtime/binding"
	"github.com/mickaelvieira/realtime/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingResponder struct{}

func (failingResponder) Respond(context.Context, int64, string, func(string)) (Reply, error) {
	return Reply{}, errors.New("model unavailable")
}

func startServer(t *testing.T, responder Responder) (*Hub, string) {
	t.Helper()

	hub := NewHub(nil)
	srv := httptest.NewServer(New(hub, responder).Routes())
	t.Cleanup(srv.Close)

	return hub, srv.URL
}

// collector records frames delivered to its handler, in order
type collector struct {
	mu     sync.Mutex
	frames []realtime.Frame
	done   chan struct{}
	until  string
}

func newCollector(until string) *collector {
	return &collector{done: make(chan struct{}), until: until}
}

func (c *collector) handle(f realtime.Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.frames = append(c.frames, f)
	if f.Type == c.until {
		close(c.done)
	}
}

func (c *collector) wait(t *testing.T) []realtime.Frame {
	t.Helper()

	select {
	case <-c.done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Timeout waiting for a %q frame", c.until)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]realtime.Frame(nil), c.frames...)
}

func waitConnected(t *testing.T, statuses <-chan client.Status) {
	t.Helper()

	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-statuses:
			if s.IsConnected() {
				return
			}
		case <-timeout:
			t.Fatal("Timeout waiting for connection")
		}
	}
}

func TestProcessingPingPong(t *testing.T) {
	_, origin := startServer(t, &EchoResponder{})

	pong := newCollector("pong")
	b, err := binding.Use(t.Context(), binding.NewFactory(origin), "/ws/processing", binding.Handlers{
		"pong": pong.handle,
	})
	require.NoError(t, err)
	t.Cleanup(b.Release)

	waitConnected(t, b.Statuses())
	b.Send(map[string]string{"type": "ping"})

	frames := pong.wait(t)
	assert.Len(t, frames, 1)
}

func TestProcessingPublish(t *testing.T) {
	hub, origin := startServer(t, &EchoResponder{})

	progress := newCollector("progress")
	all := newCollector("progress")

	b := binding.New(binding.NewFactory(origin))
	require.NoError(t, b.Bind("/ws/processing", binding.Handlers{
		"progress":            progress.handle,
		realtime.TypeWildcard: all.handle,
	}))
	t.Cleanup(b.Release)

	waitConnected(t, b.Statuses())
	require.Eventually(t, func() bool { return hub.Count(ProcessingTopic) == 1 }, 2*time.Second, 10*time.Millisecond)

	n := hub.Publish(ProcessingTopic, map[string]any{"type": "progress", "book_id": 3, "pct": 50})
	assert.Equal(t, 1, n)

	frames := progress.wait(t)
	require.Len(t, frames, 1)
	assert.Equal(t, float64(50), frames[0].Fields()["pct"])
	assert.Len(t, all.wait(t), 1)

	// other topics do not receive it
	assert.Equal(t, 0, hub.Publish(ChatTopic(1), map[string]any{"type": "progress"}))
}

func TestChatStream(t *testing.T) {
	_, origin := startServer(t, &EchoResponder{})

	stream := newCollector("done")

	b := binding.New(binding.NewFactory(origin))
	require.NoError(t, b.Bind("/ws/chat/7", binding.Handlers{
		realtime.TypeWildcard: stream.handle,
	}))
	t.Cleanup(b.Release)

	waitConnected(t, b.Statuses())
	b.Send(map[string]string{"type": "message", "content": "what is stoicism"})

	frames := stream.wait(t)

	var types []string
	var content string
	for _, f := range frames {
		types = append(types, f.Type)
		if f.Type == "content" {
			content += f.Fields()["data"].(string)
		}
	}

	assert.Equal(t, []string{"content", "content", "content", "sources", "done"}, types)
	assert.Equal(t, "what is stoicism ", content)

	var done struct {
		Data struct {
			MessageID int64 `json:"message_id"`
		} `json:"data"`
	}
	require.NoError(t, frames[len(frames)-1].Decode(&done))
	assert.Equal(t, int64(1), done.Data.MessageID)
}

func TestChatError(t *testing.T) {
	_, origin := startServer(t, failingResponder{})

	failure := newCollector("error")

	b := binding.New(binding.NewFactory(origin))
	require.NoError(t, b.Bind("/ws/chat/7", binding.Handlers{"error": failure.handle}))
	t.Cleanup(b.Release)

	waitConnected(t, b.Statuses())
	b.Send(map[string]string{"type": "message", "content": "hello"})

	frames := failure.wait(t)
	assert.Equal(t, "model unavailable", frames[0].Fields()["data"])
}

func TestChatInvalidSession(t *testing.T) {
	_, origin := startServer(t, &EchoResponder{})

	resp, err := http.Get(origin + "/ws/chat/abc")
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBindingPathChangeMovesTopic(t *testing.T) {
	hub, origin := startServer(t, &EchoResponder{})

	b := binding.New(binding.NewFactory(origin))
	t.Cleanup(b.Release)

	require.NoError(t, b.Bind("/ws/chat/1", nil))
	require.Eventually(t, func() bool { return hub.Count(ChatTopic(1)) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Bind("/ws/chat/2", nil))
	require.Eventually(t, func() bool {
		return hub.Count(ChatTopic(1)) == 0 && hub.Count(ChatTopic(2)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	b.Release()
	require.Eventually(t, func() bool { return hub.Count(ChatTopic(2)) == 0 }, 2*time.Second, 10*time.Millisecond)
}
