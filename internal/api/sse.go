package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// sessionEvent is one progress message pushed to event stream clients.
type sessionEvent struct {
	SessionID string    `json:"session_id"`
	Body      string    `json:"body"`
	Time      time.Time `json:"time"`
}

// eventHub fans session progress out to subscribed connections. Each
// subscriber watches a single session.
type eventHub struct {
	mu      sync.Mutex
	clients map[chan sessionEvent]string
}

func newEventHub() *eventHub {
	return &eventHub{clients: make(map[chan sessionEvent]string)}
}

func (h *eventHub) subscribe(sessionID string) chan sessionEvent {
	ch := make(chan sessionEvent, 16)
	h.mu.Lock()
	h.clients[ch] = sessionID
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(ch chan sessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[ch]; ok {
		delete(h.clients, ch)
		close(ch)
	}
}

func (h *eventHub) publish(ev sessionEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, sessionID := range h.clients {
		if sessionID != ev.SessionID {
			continue
		}
		select {
		case ch <- ev:
		default:
			// Slow consumer, drop the connection.
			delete(h.clients, ch)
			close(ch)
		}
	}
}

// Publish pushes a session progress message to event stream clients.
// The serve command wires this to the orchestrator's notifier.
func (s *Server) Publish(sessionID, body string) {
	s.hub.publish(sessionEvent{SessionID: sessionID, Body: body, Time: time.Now().UTC()})
}

func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Replay the persisted log first so late subscribers see the
	// whole session, then stream live messages.
	messages, err := s.store.ListSessionMessages(r.Context(), id)
	if err == nil {
		for _, m := range messages {
			writeEvent(w, sessionEvent{SessionID: id, Body: m.Body, Time: m.CreatedAt})
		}
		flusher.Flush()
	}

	ch := s.hub.subscribe(id)
	defer s.hub.unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeEvent(w, ev)
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev sessionEvent) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "event: progress\n")
	fmt.Fprintf(w, "data: %s\n\n", data)
}
