// Package realtime holds the pieces shared by the channel client, the view
// binding and the development peer: the frame model, handler type and the
// endpoint derivation rules.
package realtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

const (
	// TypeDefault is the type given to frames that do not declare one
	TypeDefault = "message"

	// TypeWildcard handlers receive every successfully parsed frame
	TypeWildcard = "*"
)

var (
	ErrMalformedFrame = errors.New("malformed frame")
)

// Handler receives a parsed inbound frame
type Handler func(Frame)

// Frame is one structured document received from the peer.
// Data holds the document verbatim, type field included.
type Frame struct {
	Type string
	Data json.RawMessage
}

// ParseFrame decodes a wire payload into a Frame.
// Documents without a usable "type" string are given TypeDefault.
func ParseFrame(data []byte) (Frame, error) {
	d := bytes.TrimSpace(data)
	if len(d) == 0 || !json.Valid(d) {
		return Frame{}, fmt.Errorf("%w: invalid JSON document", ErrMalformedFrame)
	}

	f := Frame{Type: TypeDefault, Data: json.RawMessage(d)}

	if d[0] != '{' {
		return f, nil
	}

	var envelope struct {
		Type any `json:"type"`
	}
	if err := json.Unmarshal(d, &envelope); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	if t, ok := envelope.Type.(string); ok && t != "" {
		f.Type = t
	}

	return f, nil
}

// Decode unmarshals the frame document into v
func (f Frame) Decode(v any) error {
	return json.Unmarshal(f.Data, v)
}

// Fields returns the frame document as a map.
// It returns nil when the document is not a JSON object.
func (f Frame) Fields() map[string]any {
	var m map[string]any
	if err := json.Unmarshal(f.Data, &m); err != nil {
		return nil
	}
	return m
}

func (f Frame) String() string {
	return string(f.Data)
}
