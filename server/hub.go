package server

import (
	"log/slog"
	"sync"
)

// Hub groups connected sockets by topic
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[string]Socket
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Hub{
		topics: make(map[string]map[string]Socket),
		logger: logger,
	}
}

// Join subscribes the socket to its topic
func (h *Hub) Join(s Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.topics[s.Topic()]
	if !ok {
		members = make(map[string]Socket)
		h.topics[s.Topic()] = members
	}
	members[s.Id()] = s

	h.logger.Info("socket joined", "topic", s.Topic(), "socket", s.Id())
}

// Leave removes the socket from its topic
func (h *Hub) Leave(s Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.topics[s.Topic()]
	if !ok {
		return
	}
	if _, ok := members[s.Id()]; !ok {
		return
	}

	delete(members, s.Id())
	if len(members) == 0 {
		delete(h.topics, s.Topic())
	}

	h.logger.Info("socket left", "topic", s.Topic(), "socket", s.Id())
}

// Publish sends the payload to every socket of the topic and returns
// the number of sockets it was delivered to. Sockets failing to accept
// the payload are removed from the hub.
func (h *Hub) Publish(topic string, payload any) int {
	h.mu.RLock()
	members := make([]Socket, 0, len(h.topics[topic]))
	for _, s := range h.topics[topic] {
		members = append(members, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range members {
		if err := s.Send(payload); err != nil {
			h.logger.Warn("dropping socket", "topic", topic, "socket", s.Id(), "error", err)
			h.Leave(s)
			continue
		}
		delivered++
	}

	return delivered
}

// Broadcast sends the payload to every socket of every topic
func (h *Hub) Broadcast(payload any) int {
	h.mu.RLock()
	topics := make([]string, 0, len(h.topics))
	for t := range h.topics {
		topics = append(topics, t)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, t := range topics {
		delivered += h.Publish(t, payload)
	}
	return delivered
}

// Count returns the number of sockets subscribed to the topic
func (h *Hub) Count(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.topics[topic])
}
