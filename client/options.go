package client

import (
	"log/slog"
	"net/http"
	"time"

	gows "github.com/gorilla/websocket"
)

type DialerModifier func(*gows.Dialer)
type OptionModifier func(*options)

// Scheduler runs fn once, on its own goroutine, after d has elapsed.
// The returned function cancels the call if it has not run yet.
type Scheduler func(d time.Duration, fn func()) (cancel func() bool)

func timerScheduler(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

// WithMaxRetryAttempts sets the maximum number of consecutive reconnection attempts
func WithMaxRetryAttempts(attempts int) OptionModifier {
	return func(o *options) {
		o.maxRetryAttempts = attempts
	}
}

// WithBackoffUnit sets the base delay between reconnection attempts.
// The n-th consecutive attempt waits n times this unit.
func WithBackoffUnit(d time.Duration) OptionModifier {
	return func(o *options) {
		o.backoffUnit = d
	}
}

// WithPingInterval sets the interval between pings to the peer, zero disables pings
func WithPingInterval(d time.Duration) OptionModifier {
	return func(o *options) {
		o.pingInterval = d
	}
}

// WithWriteWait sets the time allowed to write a message to the peer
func WithWriteWait(d time.Duration) OptionModifier {
	return func(o *options) {
		o.writeWait = d
	}
}

// WithCloseWait sets how long Close waits for the peer to acknowledge the close frame
func WithCloseWait(d time.Duration) OptionModifier {
	return func(o *options) {
		o.closeWait = d
	}
}

// WithReadLimit sets the maximum size in bytes for a message read from the peer
func WithReadLimit(limit int64) OptionModifier {
	return func(o *options) {
		o.readLimit = limit
	}
}

// WithHeaders sets custom HTTP headers for the websocket handshake
func WithHeaders(h http.Header) OptionModifier {
	return func(o *options) {
		o.headers = h
	}
}

// WithLogger allows passing a custom logger for the channel
// @see https://pkg.go.dev/log/slog
func WithLogger(l *slog.Logger) OptionModifier {
	return func(o *options) {
		o.logger = l
	}
}

// WithDialerModifier allows customizing the underlying websocket dialer before connecting
// @see https://github.com/gorilla/websocket/blob/main/client.go#L53
func WithDialerModifier(m DialerModifier) OptionModifier {
	return func(o *options) {
		o.dialerModifier = m
	}
}

// WithMetrics records the channel activity in the given metrics
func WithMetrics(m *Metrics) OptionModifier {
	return func(o *options) {
		o.metrics = m
	}
}

// WithScheduler replaces the timer used to delay reconnection attempts
func WithScheduler(s Scheduler) OptionModifier {
	return func(o *options) {
		o.scheduler = s
	}
}

var defaultOptions = options{
	writeWait:        1 * time.Second,
	closeWait:        5 * time.Second,
	pingInterval:     54 * time.Second,
	backoffUnit:      1 * time.Second,
	maxRetryAttempts: 5, // 1s, 2s, 3s, 4s, 5s
	logger:           slog.New(slog.DiscardHandler),
	scheduler:        timerScheduler,
}

type options struct {
	// logger for logging channel events
	logger *slog.Logger

	// optional metrics
	metrics *Metrics

	// optional HTTP headers to include in the connection request
	headers http.Header

	// optional modifier to customize the dialer before connecting
	dialerModifier DialerModifier

	// schedules delayed reconnection attempts
	scheduler Scheduler

	// backoffUnit is multiplied by the attempt number to get the reconnection delay
	backoffUnit time.Duration

	// maxRetryAttempts is the maximum number of consecutive reconnection attempts
	maxRetryAttempts int

	// writeWait is the time allowed to write a message to the peer
	writeWait time.Duration

	// closeWait is the time allowed to the peer to acknowledge a close frame
	closeWait time.Duration

	// pingInterval is the interval between pings to the peer
	pingInterval time.Duration

	// the maximum size in bytes for a message read from the peer
	readLimit int64
}
