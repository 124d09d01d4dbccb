package internal

import (
	"testing"

	"github.com/mickaelvieira/realtime"
	"github.com/stretchr/testify/assert"
)

func TestListenersOrder(t *testing.T) {
	l := NewListeners()

	var calls []string
	record := func(name string) realtime.Handler {
		return func(realtime.Frame) { calls = append(calls, name) }
	}

	l.Add(realtime.TypeWildcard, record("w1"))
	l.Add("progress", record("h1"))
	l.Add("progress", record("h2"))
	l.Add("done", record("d1"))
	l.Add(realtime.TypeWildcard, record("w2"))

	for _, h := range l.Handlers("progress") {
		h(realtime.Frame{})
	}

	assert.Equal(t, []string{"h1", "h2", "w1", "w2"}, calls)
}

func TestListenersRemoveOnlyThatRegistration(t *testing.T) {
	l := NewListeners()

	var count int
	h := func(realtime.Frame) { count++ }

	off := l.Add("progress", h)
	l.Add("progress", h)
	assert.Equal(t, 2, l.Len("progress"))

	off()
	off()
	assert.Equal(t, 1, l.Len("progress"))

	for _, fn := range l.Handlers("progress") {
		fn(realtime.Frame{})
	}
	assert.Equal(t, 1, count)
}

func TestListenersWildcardFrameNotDoubled(t *testing.T) {
	l := NewListeners()
	l.Add(realtime.TypeWildcard, func(realtime.Frame) {})

	assert.Len(t, l.Handlers(realtime.TypeWildcard), 1)
	assert.Len(t, l.Handlers("anything"), 1)
}
