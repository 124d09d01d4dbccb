package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	gows "github.com/gorilla/websocket"
	"github.com/mickaelvieira/realtime"
)

var (
	ErrClosed = errors.New("socket closed")
)

type Socket interface {
	// Unique identifier of the websocket peer
	Id() string

	// Topic the socket has been accepted on
	Topic() string

	// Channel to receive frames from the peer, closed when the connection ends
	Inbound() <-chan realtime.Frame

	// Send encodes the payload as JSON and queues it for the peer
	Send(payload any) error

	// Channel closed once the connection has ended
	Wait() <-chan struct{}

	// Close the websocket connection
	Close() error
}

func NewSocket(conn *gows.Conn, topic string, opts ...OptionModifier) Socket {
	s := &socket{
		id:       realtime.GenId(),
		topic:    topic,
		conn:     conn,
		wait:     make(chan struct{}),
		outbound: make(chan []byte, 64),
		inbound:  make(chan realtime.Frame),
		options:  newOptions(opts),
	}
	s.logger = s.options.logger.With("socket", s.id, "topic", topic)

	go s.read()
	go s.write()

	return s
}

type socket struct {
	// unique peer identifier
	id string

	// topic the peer is subscribed to
	topic string

	// logger for logging socket events
	logger *slog.Logger

	// socket's options
	options *options

	// underlying websocket connection
	conn *gows.Conn

	// channel to notify close events
	wait chan struct{}

	// ensures the connection is cleaned up once
	once sync.Once

	// outgoing frames to the peer
	outbound chan []byte

	// incoming frames from the peer
	inbound chan realtime.Frame
}

// Id returns the unique identifier of the websocket peer
func (s *socket) Id() string {
	return s.id
}

// Topic returns the topic the socket was accepted on
func (s *socket) Topic() string {
	return s.topic
}

// Wait returns a channel to receive close notifications
func (s *socket) Wait() <-chan struct{} {
	return s.wait
}

// Inbound returns a channel to receive frames from the peer
func (s *socket) Inbound() <-chan realtime.Frame {
	return s.inbound
}

// Send queues a JSON frame for the peer
func (s *socket) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	select {
	case <-s.wait:
		return ErrClosed
	default:
	}

	select {
	case s.outbound <- data:
		return nil
	case <-s.wait:
		return ErrClosed
	}
}

func (s *socket) read() {
	defer func() {
		close(s.inbound)
		s.cleanup()
	}()

	s.conn.SetReadLimit(s.options.readLimit)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.options.pongWait)); err != nil {
		s.logger.Error("deadline error", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.options.pongWait)); err != nil {
			s.logger.Error("deadline error", "error", err)
		}
		return nil
	})

	for {
		t, d, err := s.conn.ReadMessage()
		if err != nil {
			// when the connection is closed, we'll receive a CloseError
			// we don't really need to log as errors since they are more informative
			if gows.IsUnexpectedCloseError(err, gows.CloseNormalClosure, gows.CloseGoingAway) {
				s.logger.Error("read error", "error", err)
			}
			break
		}

		// any message proves the peer is alive
		if err := s.conn.SetReadDeadline(time.Now().Add(s.options.pongWait)); err != nil {
			s.logger.Error("deadline error", "error", err)
		}

		if t != gows.TextMessage {
			s.logger.Debug("ignoring non text frame", "data_type", t)
			continue
		}

		f, err := realtime.ParseFrame(d)
		if err != nil {
			s.logger.Error("frame parse error", "error", err)
			continue
		}

		select {
		case s.inbound <- f:
		case <-s.wait:
			return
		}
	}
}

func (s *socket) write() {
	var tick <-chan time.Time
	if s.options.pingInterval > 0 {
		ticker := time.NewTicker(s.options.pingInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-s.wait:
			// just exit the write loop when the connection ended
			return

		case d := <-s.outbound:
			if err := s.conn.SetWriteDeadline(time.Now().Add(s.options.writeWait)); err != nil {
				s.logger.Error("deadline error", "error", err)
			}
			if err := s.conn.WriteMessage(gows.TextMessage, d); err != nil {
				s.logger.Error("write error", "error", err)
				s.cleanup()
				return
			}

		case <-tick:
			d := []byte(s.id)
			t := time.Now().Add(s.options.writeWait)

			s.logger.Debug("pinging client", "interval", s.options.pingInterval)

			if err := s.conn.WriteControl(gows.PingMessage, d, t); err != nil {
				s.logger.Error("ping error", "error", err)
				s.cleanup()
				return
			}
		}
	}
}

// cleanup closes the connection and informs consumers
func (s *socket) cleanup() {
	s.once.Do(func() {
		s.logger.Debug("cleaning up")

		if err := s.conn.Close(); err != nil {
			s.logger.Debug("closing error during cleanup", "error", err)
		}

		close(s.wait)

		if s.options.onClose != nil {
			s.options.onClose()
		}
	})
}

// Close the websocket connection gracefully
func (s *socket) Close() error {
	m := gows.FormatCloseMessage(gows.CloseNormalClosure, "")
	t := time.Now().Add(s.options.writeWait)

	s.logger.Info("close connection")

	// Initiate graceful close, the read loop ends when the peer answers
	if err := s.conn.WriteControl(gows.CloseMessage, m, t); err != nil {
		s.logger.Error("close frame failed", "error", err)
		s.cleanup()
		return err
	}

	return nil
}
