package transport

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rpggio/reelwatch/internal/watch"
)

const (
	subscriberBuffer = 64
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StatusFunc returns the current state of a watched project, or an error
// when the project is not watched.
type StatusFunc func(projectID string) (any, error)

// Message is one frame on the events socket.
type Message struct {
	Type   string       `json:"type"`
	Status any          `json:"status,omitempty"`
	Event  *watch.Event `json:"event,omitempty"`
}

type subscriber struct {
	ch chan watch.Event
}

// Hub fans watcher events out to websocket subscribers. It is a watch.Sink.
type Hub struct {
	logger *slog.Logger

	mu     sync.Mutex
	subs   map[string]map[*subscriber]struct{}
	closed chan struct{}
	once   sync.Once
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Hub{
		logger: logger,
		subs:   make(map[string]map[*subscriber]struct{}),
		closed: make(chan struct{}),
	}
}

// Publish delivers ev to every subscriber of its project. Slow subscribers
// lose events rather than block the watcher.
func (h *Hub) Publish(_ context.Context, ev watch.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[ev.ProjectID] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Debug("dropping event for slow subscriber", "project_id", ev.ProjectID, "type", ev.Type)
		}
	}
}

// Subscribe registers for events of projectID until cancel is called.
func (h *Hub) Subscribe(projectID string) (<-chan watch.Event, func()) {
	sub := &subscriber{ch: make(chan watch.Event, subscriberBuffer)}
	h.mu.Lock()
	if h.subs[projectID] == nil {
		h.subs[projectID] = make(map[*subscriber]struct{})
	}
	h.subs[projectID][sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs[projectID], sub)
		if len(h.subs[projectID]) == 0 {
			delete(h.subs, projectID)
		}
	}
	return sub.ch, cancel
}

// Subscribers counts the live subscriptions for projectID.
func (h *Hub) Subscribers(projectID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[projectID])
}

// Close ends every open events stream.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.closed) })
}

// ServeEvents streams a project's events over a websocket. The first
// message is the current status; events follow as they happen.
func (h *Hub) ServeEvents(status StatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := chi.URLParam(r, "projectID")
		current, err := status(projectID)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "project_id", projectID, "error", err)
			return
		}
		defer conn.Close()

		events, cancel := h.Subscribe(projectID)
		defer cancel()

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(Message{Type: "status", Status: current}); err != nil {
			return
		}

		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		for {
			select {
			case ev := <-events:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(Message{Type: "event", Event: &ev}); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-gone:
				return
			case <-h.closed:
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(writeWait))
				return
			}
		}
	}
}

var _ watch.Sink = (*Hub)(nil)
