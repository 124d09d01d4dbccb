// Package binding ties a client.Channel to the lifetime of a consumer,
// typically a view: the channel is opened when the view binds to a path,
// rebuilt when the path changes and closed when the view goes away.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mickaelvieira/realtime"
	"github.com/mickaelvieira/realtime/client"
)

var (
	ErrReleased = errors.New("binding released")
)

// Factory builds the channel serving a path
type Factory func(path string) (client.Channel, error)

// Handlers maps frame types to the handler the view declares for them
type Handlers map[string]realtime.Handler

// NewFactory returns a Factory building channels for paths under the given page origin
func NewFactory(origin string, opts ...client.OptionModifier) Factory {
	return func(path string) (client.Channel, error) {
		u, err := realtime.Endpoint(origin, path)
		if err != nil {
			return nil, err
		}
		return client.NewChannel(u, opts...)
	}
}

type Option func(*Binding)

// WithLogger allows passing a custom logger for the binding
func WithLogger(l *slog.Logger) Option {
	return func(b *Binding) {
		b.logger = l
	}
}

// Binding owns at most one channel at a time
type Binding struct {
	factory Factory
	logger  *slog.Logger

	mu       sync.Mutex
	path     string
	channel  client.Channel
	offs     []func()
	released bool

	// closed by Release
	done chan struct{}
}

func New(factory Factory, opts ...Option) *Binding {
	b := &Binding{
		factory: factory,
		logger:  slog.New(slog.DiscardHandler),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Use binds to path right away and releases the binding once ctx is done
func Use(ctx context.Context, factory Factory, path string, handlers Handlers, opts ...Option) (*Binding, error) {
	b := New(factory, opts...)
	if err := b.Bind(path, handlers); err != nil {
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
			b.Release()
		case <-b.done:
		}
	}()

	return b, nil
}

// Bind associates the binding with path. Binding again to the current path
// is a no-op, handlers included. Binding to another path tears the current
// channel down before opening a new one with the given handlers.
func (b *Binding) Bind(path string, handlers Handlers) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return ErrReleased
	}

	if b.channel != nil && b.path == path {
		return nil
	}

	b.teardown()

	ch, err := b.factory(path)
	if err != nil {
		return fmt.Errorf("bind %s: %w", path, err)
	}

	for kind, h := range handlers {
		b.offs = append(b.offs, ch.On(kind, h))
	}

	b.path = path
	b.channel = ch
	b.logger.Debug("binding channel", "path", path, "handlers", len(handlers))

	ch.Open()

	return nil
}

// Send forwards the payload to the current channel, if any
func (b *Binding) Send(payload any) {
	b.mu.Lock()
	ch := b.channel
	b.mu.Unlock()

	if ch != nil {
		ch.Send(payload)
	}
}

// Release unregisters the handlers and closes the channel. The binding
// cannot be used afterwards.
func (b *Binding) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.released {
		return
	}

	b.released = true
	close(b.done)
	b.teardown()
}

// Path returns the path currently bound, empty when unbound
func (b *Binding) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.path
}

// Statuses returns the status updates of the current channel, nil when unbound
func (b *Binding) Statuses() <-chan client.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.channel == nil {
		return nil
	}
	return b.channel.Statuses()
}

// teardown must be called with the lock held
func (b *Binding) teardown() {
	for _, off := range b.offs {
		off()
	}
	b.offs = nil

	if b.channel != nil {
		b.logger.Debug("releasing channel", "path", b.path)
		if err := b.channel.Close(); err != nil {
			b.logger.Error("failed to close channel", "path", b.path, "error", err)
		}
	}

	b.channel = nil
	b.path = ""
}
