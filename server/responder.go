package server

import (
	"context"
	"strings"
	"sync/atomic"
)

// Source is a book passage backing an answer
type Source struct {
	ChunkID    int64   `json:"chunk_id"`
	BookTitle  *string `json:"book_title"`
	PageNumber *int    `json:"page_number"`
	Snippet    string  `json:"snippet"`
}

// Reply closes a streamed answer
type Reply struct {
	MessageID int64
	Sources   []Source
}

// Responder produces the answer to a chat message, emitting its
// content progressively before returning
type Responder interface {
	Respond(ctx context.Context, sessionID int64, content string, emit func(chunk string)) (Reply, error)
}

// EchoResponder streams the message back word by word
type EchoResponder struct {
	lastID atomic.Int64
}

func (e *EchoResponder) Respond(ctx context.Context, sessionID int64, content string, emit func(string)) (Reply, error) {
	for _, w := range strings.Fields(content) {
		if err := ctx.Err(); err != nil {
			return Reply{}, err
		}
		emit(w + " ")
	}

	return Reply{MessageID: e.lastID.Add(1), Sources: []Source{}}, nil
}
