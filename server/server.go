// Package server implements the peer side of the realtime protocol: the
// processing progress feed and the streamed chat sessions. It backs the
// client tests and the development server.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	gows "github.com/gorilla/websocket"
	"github.com/mickaelvieira/realtime"
)

// ProcessingTopic receives the library processing progress events
const ProcessingTopic = "processing"

// ChatTopic returns the topic of a chat session
func ChatTopic(sessionID int64) string {
	return "chat_" + strconv.FormatInt(sessionID, 10)
}

// frame is an outbound document
type frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type Server struct {
	hub       *Hub
	responder Responder
	upgrader  gows.Upgrader
	logger    *slog.Logger
	opts      []OptionModifier
}

func New(hub *Hub, responder Responder, opts ...OptionModifier) *Server {
	return &Server{
		hub:       hub,
		responder: responder,
		logger:    newOptions(opts).logger,
		opts:      opts,
		upgrader: gows.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Routes returns the websocket endpoints
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/ws/processing", s.processing)
	r.Get("/ws/chat/{sessionID}", s.chat)
	return r
}

func (s *Server) accept(w http.ResponseWriter, r *http.Request, topic string) (Socket, bool) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade connection", "topic", topic, "error", err)
		return nil, false
	}

	sock := NewSocket(conn, topic, s.opts...)
	s.hub.Join(sock)

	return sock, true
}

// processing streams progress events published on the hub,
// answering pings from the peer
func (s *Server) processing(w http.ResponseWriter, r *http.Request) {
	sock, ok := s.accept(w, r, ProcessingTopic)
	if !ok {
		return
	}
	defer s.hub.Leave(sock)

	for f := range sock.Inbound() {
		if f.Type == "ping" {
			if err := sock.Send(frame{Type: "pong"}); err != nil {
				s.logger.Error("failed to answer ping", "error", err)
			}
		}
	}
}

// chat streams the answer of every message received from the peer
func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	sock, ok := s.accept(w, r, ChatTopic(sessionID))
	if !ok {
		return
	}
	defer s.hub.Leave(sock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		<-sock.Wait()
		cancel()
	}()

	for f := range sock.Inbound() {
		if f.Type != realtime.TypeDefault {
			continue
		}

		var msg struct {
			Content string `json:"content"`
		}
		if err := f.Decode(&msg); err != nil {
			s.logger.Error("invalid chat message", "error", err)
			continue
		}

		s.answer(ctx, sock, sessionID, msg.Content)
	}
}

func (s *Server) answer(ctx context.Context, sock Socket, sessionID int64, content string) {
	send := func(f frame) {
		if err := sock.Send(f); err != nil {
			s.logger.Debug("failed to send chat frame", "type", f.Type, "error", err)
		}
	}

	reply, err := s.responder.Respond(ctx, sessionID, content, func(chunk string) {
		send(frame{Type: "content", Data: chunk})
	})
	if err != nil {
		s.logger.Error("chat answer failed", "session", sessionID, "error", err)
		send(frame{Type: "error", Data: err.Error()})
		return
	}

	sources := reply.Sources
	if sources == nil {
		sources = []Source{}
	}

	send(frame{Type: "sources", Data: sources})
	send(frame{Type: "done", Data: map[string]int64{"message_id": reply.MessageID}})
}
