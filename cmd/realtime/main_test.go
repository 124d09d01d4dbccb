package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mickaelvieira/realtime"
	"github.com/mickaelvieira/realtime/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
origin = "http://books.local"
log_level = "debug"
backoff_unit = "2s"
`), 0o644))

	a := &app{configPath: path, origin: "https://library.example.com"}
	require.NoError(t, a.load())

	assert.Equal(t, "https://library.example.com", a.cfg.Origin)
	assert.Equal(t, "debug", a.cfg.LogLevel)
	assert.Equal(t, 2*time.Second, a.cfg.BackoffUnit)
	assert.NotNil(t, a.logger)
	assert.Len(t, a.channelOptions(), 4)
}

func TestChatHandlers(t *testing.T) {
	var out, errOut bytes.Buffer
	replies := newReplies()
	handlers := chatHandlers(&out, &errOut, replies)

	for _, doc := range []string{
		`{"type":"content","data":"Hello "}`,
		`{"type":"content","data":"world"}`,
		`{"type":"done","data":{"message_id":4}}`,
		`{"type":"error","data":"model unavailable"}`,
	} {
		f, err := realtime.ParseFrame([]byte(doc))
		require.NoError(t, err)
		handlers[f.Type](f)
	}

	assert.Equal(t, "Hello world\n", out.String())
	assert.Equal(t, "error: model unavailable\n", errOut.String())
	assert.Equal(t, int64(2), replies.count())
}

func TestRepliesWait(t *testing.T) {
	r := newReplies()
	go func() {
		r.add()
		r.add()
	}()
	assert.True(t, r.wait(context.Background(), 2, 5*time.Second))

	assert.False(t, r.wait(context.Background(), 3, 20*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, r.wait(ctx, 3, 5*time.Second))
}

func TestWaitConnected(t *testing.T) {
	statuses := make(chan client.Status, 2)
	statuses <- client.StatusReconnecting
	statuses <- client.StatusConnected
	assert.NoError(t, waitConnected(context.Background(), statuses))

	statuses <- client.StatusExhausted
	assert.ErrorIs(t, waitConnected(context.Background(), statuses), errExhausted)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, waitConnected(ctx, statuses), context.Canceled)
}
