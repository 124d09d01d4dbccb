package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	gows "github.com/gorilla/websocket"
	"github.com/mickaelvieira/realtime"
	"github.com/mickaelvieira/realtime/internal"
)

type Channel interface {
	// Unique identifier of the channel, used as ping payload
	Id() string

	// Open starts a new connection attempt, superseding any live connection
	Open()

	// On registers a handler for the given frame type and returns
	// a function removing this registration
	On(kind string, h realtime.Handler) (off func())

	// Send encodes the payload as JSON and writes it to the peer.
	// It is a no-op when the channel is not connected.
	Send(payload any)

	// Close permanently disables reconnection and closes the connection
	Close() error

	// Channel to receive status updates
	Statuses() <-chan Status

	// IsConnected returns true if the websocket connection is established
	IsConnected() bool
}

// NewChannel provides a channel targeting the websocket endpoint at the given URI.
// The channel does not connect until Open is called.
func NewChannel(u string, opts ...OptionModifier) (Channel, error) {
	uri, err := url.ParseRequestURI(u)
	if err != nil {
		return nil, fmt.Errorf("invalid channel URI: %w", err)
	}

	o := defaultOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &channel{
		id:               realtime.GenId(),
		uri:              uri,
		options:          &o,
		logger:           o.logger,
		metrics:          o.metrics,
		listeners:        internal.NewListeners(),
		statuses:         make(chan Status, 8),
		state:            idle,
		maxRetryAttempts: o.maxRetryAttempts,
		dialer: &gows.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
	}

	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	c.logger = c.logger.With("channel", c.id, "uri", uri.String())

	if o.scheduler == nil {
		o.scheduler = timerScheduler
	}

	if o.dialerModifier != nil {
		o.dialerModifier(c.dialer)
	}

	return c, nil
}

// link is one underlying websocket connection
type link struct {
	conn *gows.Conn

	// closed when the read loop exits
	done chan struct{}

	// gorilla connections support a single concurrent writer
	writeLock sync.Mutex
}

func (l *link) write(data []byte, wait time.Duration) error {
	l.writeLock.Lock()
	defer l.writeLock.Unlock()

	if err := l.conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return l.conn.WriteMessage(gows.TextMessage, data)
}

type channel struct {
	// internal unique identifier
	id string

	// the websocket server URI
	uri *url.URL

	// dialer is used to create new websocket connections
	dialer *gows.Dialer

	// logger for logging channel events
	logger *slog.Logger

	// channel's options
	options *options

	// optional metrics, nil records nothing
	metrics *Metrics

	// registered handlers by frame type
	listeners *internal.Listeners

	// channel used to broadcast status changes
	statuses chan Status

	// mutex protecting the fields below
	lock sync.Mutex

	// the current connection, nil while disconnected
	link *link

	// current channel state
	state state

	// incremented by every Open and Close, events carrying
	// an older generation belong to a superseded connection
	generation uint64

	// consecutive reconnection attempts since the last successful open
	retryAttempts int

	// reconnection bound, forced to zero by Close
	maxRetryAttempts int

	// set once Close has been called
	closed bool

	// aborts the in-flight dial
	cancelDial context.CancelFunc

	// cancels the pending reconnection
	cancelRetry func() bool
}

// Id returns the unique identifier of the channel
func (c *channel) Id() string {
	return c.id
}

// Open starts a new connection attempt
func (c *channel) Open() {
	c.open(false, 0)
}

// retry is called by the scheduler once the backoff delay has elapsed.
// Close may have been called in the meantime, so everything is checked again.
func (c *channel) retry(gen uint64) {
	c.open(true, gen)
}

func (c *channel) open(auto bool, gen uint64) {
	ctx, cancel := context.WithCancel(context.Background())

	c.lock.Lock()
	if auto && (c.closed || c.maxRetryAttempts == 0 || gen != c.generation) {
		isClosed := c.closed
		c.lock.Unlock()
		cancel()

		c.logger.Debug("reconnection skipped", "closed", isClosed)
		return
	}

	c.generation++
	next := c.generation

	if c.cancelRetry != nil {
		c.cancelRetry()
		c.cancelRetry = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
	}
	c.cancelDial = cancel

	prev := c.dropLink()
	c.setState(connecting)
	c.lock.Unlock()

	if prev != nil {
		c.logger.Debug("superseding live connection")
		if err := prev.conn.Close(); err != nil {
			c.logger.Debug("error closing superseded connection", "error", err)
		}
	}

	go c.connect(ctx, next)
}

func (c *channel) connect(ctx context.Context, gen uint64) {
	c.logger.Debug("attempting to connect")

	conn, _, err := c.dialer.DialContext(ctx, c.uri.String(), c.options.headers)
	if err != nil {
		if ctx.Err() != nil {
			c.logger.Debug("connection attempt cancelled")
			return
		}

		c.logger.Error("connection failure", "error", err)
		c.metrics.connectionError()

		c.connectionLost(gen, nil)
		return
	}

	conn.SetReadLimit(c.options.readLimit)
	conn.SetPongHandler(func(appData string) error {
		if appData != c.id {
			c.logger.Warn("unexpected pong payload", "data", appData)
		}
		return nil
	})

	l := &link{conn: conn, done: make(chan struct{})}

	c.lock.Lock()
	if gen != c.generation {
		c.lock.Unlock()

		// Open or Close were called while dialing
		if err := conn.Close(); err != nil {
			c.logger.Debug("error closing stale connection", "error", err)
		}
		return
	}

	c.link = l
	c.retryAttempts = 0 // reset retry attempts on successful connection
	c.setState(connected)

	// published under the lock so a concurrent Close is always reported last
	c.publish(StatusConnected)
	c.lock.Unlock()

	c.metrics.connectionOpened()

	go c.read(gen, l) // read incoming frames
	go c.ping(gen, l) // regularly ping the server
}

// connectionLost applies the reconnection policy after a failed dial or
// after a live connection ended for any reason other than Close.
func (c *channel) connectionLost(gen uint64, l *link) {
	if l != nil {
		if err := l.conn.Close(); err != nil {
			c.logger.Debug("error closing lost connection", "error", err)
		}
	}

	c.lock.Lock()
	if gen != c.generation {
		c.lock.Unlock()
		return
	}

	c.dropLink()

	if c.closed {
		// explicitly reopened after Close, no automatic reconnection
		c.setState(closed)
		c.publish(StatusClosed)
		c.lock.Unlock()
		return
	}

	if c.retryAttempts >= c.maxRetryAttempts {
		c.setState(disconnected)
		limit := c.maxRetryAttempts
		c.publish(StatusExhausted)
		c.lock.Unlock()

		c.logger.Info("max retry attempts reached, giving up", "max", limit)
		return
	}

	c.retryAttempts++
	attempt := c.retryAttempts
	delay := c.options.backoffUnit * time.Duration(attempt)

	c.setState(reconnecting)
	c.cancelRetry = c.options.scheduler(delay, func() { c.retry(gen) })
	limit := c.maxRetryAttempts
	c.publish(StatusReconnecting)
	c.lock.Unlock()

	c.metrics.reconnectScheduled()
	c.logger.Info("attempting to reconnect", "attempt", attempt, "max", limit, "delay", delay)
}

// dropLink detaches the current connection, the caller must hold the lock
func (c *channel) dropLink() *link {
	l := c.link
	c.link = nil
	if l != nil {
		c.metrics.connectionLost()
	}
	return l
}

// setState records a state transition, the caller must hold the lock
func (c *channel) setState(s state) {
	if s != c.state {
		c.logger.Debug("state changed", "from", c.state.String(), "to", s.String())
	}
	c.state = s
}

func (c *channel) publish(s Status) {
	select {
	case c.statuses <- s:
	default:
		c.logger.Debug("status dropped, no receiver ready", "status", s.String())
	}
}

func (c *channel) read(gen uint64, l *link) {
	defer close(l.done)

	for {
		t, m, err := l.conn.ReadMessage()
		if err != nil {
			if gows.IsUnexpectedCloseError(err, gows.CloseNormalClosure, gows.CloseGoingAway) {
				c.logger.Error("read error", "error", err)
			} else {
				c.logger.Info("connection closed", "error", err)
			}

			c.connectionLost(gen, l)
			return
		}

		// https://datatracker.ietf.org/doc/html/rfc6455#section-5.6
		switch t {
		case gows.TextMessage:
			c.dispatch(m)
		default:
			c.logger.Debug("ignoring non text frame", "data_type", t, "data_length", len(m))
			c.metrics.frameDropped("binary")
		}
	}
}

// dispatch delivers a frame to the handlers registered for its type,
// then to the wildcard handlers
func (c *channel) dispatch(data []byte) {
	f, err := realtime.ParseFrame(data)
	if err != nil {
		c.logger.Error("frame parse error", "error", err, "data_length", len(data))
		c.metrics.frameDropped("malformed")
		return
	}

	label := f.Type
	if c.listeners.Len(f.Type) == 0 {
		label = unregisteredType
	}
	c.metrics.frameReceived(label)

	for _, h := range c.listeners.Handlers(f.Type) {
		c.invoke(f, h, label)
	}
}

// invoke isolates handlers from each other, a panicking handler
// does not prevent the next ones from receiving the frame
func (c *channel) invoke(f realtime.Frame, h realtime.Handler, label string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("handler panic", "type", f.Type, "panic", r)
			c.metrics.handlerPanic(label)
		}
	}()

	h(f)
}

// https://developer.mozilla.org/en-US/docs/Web/API/WebSockets_API/Writing_WebSocket_servers#pings_and_pongs_the_heartbeat_of_websockets
func (c *channel) ping(gen uint64, l *link) {
	if c.options.pingInterval <= 0 {
		return
	}

	ticker := time.NewTicker(c.options.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			c.logger.Debug("pinging stopped")
			return
		case <-ticker.C:
			d := []byte(c.id)
			t := time.Now().Add(c.options.writeWait)

			if err := l.conn.WriteControl(gows.PingMessage, d, t); err != nil {
				c.logger.Error("ping error", "error", err)

				// the read loop fails and reports the lost connection
				if err := l.conn.Close(); err != nil {
					c.logger.Debug("error closing connection on ping error", "error", err)
				}
				return
			}
		}
	}
}

// On registers a handler for the given frame type
func (c *channel) On(kind string, h realtime.Handler) func() {
	return c.listeners.Add(kind, h)
}

// Send writes the payload to the peer when connected
func (c *channel) Send(payload any) {
	c.lock.Lock()
	l := c.link
	c.lock.Unlock()

	if l == nil {
		c.logger.Debug("not connected, outbound frame discarded")
		c.metrics.frameDiscarded()
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("failed to encode outbound frame", "error", err)
		return
	}

	c.logger.Debug("writing message", "data_length", len(data))

	if err := l.write(data, c.options.writeWait); err != nil {
		c.logger.Error("write error", "error", err)

		// the read loop fails and reports the lost connection
		if err := l.conn.Close(); err != nil {
			c.logger.Debug("error closing connection on write error", "error", err)
		}
		return
	}

	c.metrics.frameSent()
}

// Statuses returns a channel to receive status updates
func (c *channel) Statuses() <-chan Status {
	return c.statuses
}

// IsConnected returns true if the websocket connection is established
func (c *channel) IsConnected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.link != nil && c.state == connected
}

// Close the channel gracefully
func (c *channel) Close() error {
	c.lock.Lock()
	wasClosed := c.state == closed

	c.closed = true
	c.maxRetryAttempts = 0
	c.generation++

	if c.cancelRetry != nil {
		c.cancelRetry()
		c.cancelRetry = nil
	}
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}

	l := c.dropLink()
	c.setState(closed)
	if !wasClosed {
		c.publish(StatusClosed)
	}
	c.lock.Unlock()

	if l == nil {
		return nil
	}

	c.logger.Info("initiating close", "code", gows.CloseNormalClosure)

	// inform the remote peer that we are closing the connection
	m := gows.FormatCloseMessage(gows.CloseNormalClosure, "")
	t := time.Now().Add(c.options.writeWait)

	if err := l.conn.WriteControl(gows.CloseMessage, m, t); err != nil {
		c.logger.Error("failed to send close frame", "error", err)

		if cerr := l.conn.Close(); cerr != nil {
			c.logger.Debug("error closing connection", "error", cerr)
		}
		return err
	}

	go c.waitForCloseAck(l)

	return nil
}

// waitForCloseAck waits for the peer to answer the close frame or a timeout
// https://datatracker.ietf.org/doc/html/rfc6455#section-7.1.2
func (c *channel) waitForCloseAck(l *link) {
	timer := time.NewTimer(c.options.closeWait)
	defer timer.Stop()

	select {
	case <-l.done:
		c.logger.Debug("close acknowledgment received")
	case <-timer.C:
		c.logger.Debug("close acknowledgment timeout")
	}

	if err := l.conn.Close(); err != nil {
		c.logger.Debug("error closing connection", "error", err)
	}
}
