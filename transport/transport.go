// Package transport connects remote hosts to a render surface: inbound
// command records go to a Submitter, outbound events fan out to every
// connected session through a Hub.
package transport

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/yitech/candlechart/protocol"
)

// Submitter accepts command records from any goroutine. *surface.Loop
// implements it.
type Submitter interface {
	Submit(ctx context.Context, rec protocol.Record) error
}

// DefaultBuffer is the per-session event queue length.
const DefaultBuffer = 256

// Session is one connected host.
type Session struct {
	ID     uuid.UUID
	Events <-chan protocol.Record

	events chan protocol.Record
}

// Hub is an event sink that fans events out to sessions. Emit never blocks:
// a session whose queue is full loses the event.
type Hub struct {
	buffer int
	onDrop func()
	log    *slog.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewHub creates a hub. onDrop, if set, is called for every dropped event.
func NewHub(buffer int, onDrop func(), logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		buffer:   buffer,
		onDrop:   onDrop,
		log:      logger,
		sessions: make(map[uuid.UUID]*Session),
	}
}

// Join registers a new session.
func (h *Hub) Join() *Session {
	ch := make(chan protocol.Record, h.buffer)
	s := &Session{ID: uuid.New(), Events: ch, events: ch}

	h.mu.Lock()
	h.sessions[s.ID] = s
	n := len(h.sessions)
	h.mu.Unlock()

	h.log.Info("host session joined", "session", s.ID.String(), "sessions", n)
	return s
}

// Leave unregisters s and closes its event channel. It is safe to call twice.
func (h *Hub) Leave(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	if ok {
		delete(h.sessions, s.ID)
		close(s.events)
	}
	n := len(h.sessions)
	h.mu.Unlock()

	if ok {
		h.log.Info("host session left", "session", s.ID.String(), "sessions", n)
	}
}

// Len returns the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Emit implements surface.EventSink.
func (h *Hub) Emit(ev protocol.Event) {
	rec := protocol.EncodeEvent(ev)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, s := range h.sessions {
		select {
		case s.events <- rec:
		default:
			h.log.Warn("dropping event for slow host", "session", id.String(), "event", ev.Kind())
			if h.onDrop != nil {
				h.onDrop()
			}
		}
	}
}
