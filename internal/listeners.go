package internal

import (
	"sync"

	"github.com/mickaelvieira/realtime"
)

type listener struct {
	id uint64
	fn realtime.Handler
}

// Listeners maps frame types to ordered handler lists.
// Insertion order is invocation order.
type Listeners struct {
	mu     sync.RWMutex
	nextId uint64
	byType map[string][]listener
}

func NewListeners() *Listeners {
	return &Listeners{byType: make(map[string][]listener)}
}

// Add registers fn for the given type and returns a function removing
// that registration only. Calling it more than once is a no-op.
func (l *Listeners) Add(kind string, fn realtime.Handler) func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextId++
	id := l.nextId
	l.byType[kind] = append(l.byType[kind], listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { l.remove(kind, id) })
	}
}

func (l *Listeners) remove(kind string, id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.byType[kind]
	kept := make([]listener, 0, len(current))
	for _, h := range current {
		if h.id != id {
			kept = append(kept, h)
		}
	}

	if len(kept) == 0 {
		delete(l.byType, kind)
		return
	}
	l.byType[kind] = kept
}

// Handlers returns the handlers to invoke for a frame of the given type:
// type specific ones first, then wildcard ones.
func (l *Listeners) Handlers(kind string) []realtime.Handler {
	l.mu.RLock()
	defer l.mu.RUnlock()

	specific := l.byType[kind]
	var wildcard []listener
	if kind != realtime.TypeWildcard {
		wildcard = l.byType[realtime.TypeWildcard]
	}

	handlers := make([]realtime.Handler, 0, len(specific)+len(wildcard))
	for _, h := range specific {
		handlers = append(handlers, h.fn)
	}
	for _, h := range wildcard {
		handlers = append(handlers, h.fn)
	}
	return handlers
}

// Len returns the number of handlers registered for the given type
func (l *Listeners) Len(kind string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.byType[kind])
}
