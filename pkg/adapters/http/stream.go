package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aretw0/docflow/internal/logging"
)

// StreamManager fans handle diffs out to SSE subscribers.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // handle id -> set of channels
	logger      *slog.Logger
}

// NewStreamManager creates an empty StreamManager.
func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a channel for a handle. The returned func unsubscribes
// and closes the channel.
func (sm *StreamManager) Subscribe(handleID string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[handleID]; !ok {
		sm.subscribers[handleID] = make(map[chan<- string]struct{})
	}
	sm.subscribers[handleID][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[handleID]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, handleID)
			}
		}
	}
}

// Broadcast sends msg to every subscriber of the handle. Slow subscribers
// lose messages.
func (sm *StreamManager) Broadcast(handleID string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[handleID] {
		select {
		case ch <- msg:
		default:
			sm.logger.Warn("SSE: client buffer full, dropping message", "handle_id", handleID)
		}
	}
}

// SubscribeEvents handles GET /events (SSE). With ?handle_id= it streams the
// diffs of that handle; without it, the names of reloaded charts.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var (
		events <-chan string
		cancel = func() {}
	)
	handleID := r.URL.Query().Get("handle_id")
	if handleID == "" {
		watched, err := s.Engine.Watch(r.Context())
		if err != nil {
			s.problem(w, r, http.StatusNotImplemented, "watch_unsupported", err.Error())
			return
		}
		events = watched
	} else {
		ch, unsubscribe := s.Streams.Subscribe(handleID)
		events, cancel = ch, unsubscribe
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}
