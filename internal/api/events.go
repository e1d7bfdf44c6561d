package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"notedigest/internal/schedule"
)

// Event is one frame on the /api/events stream.
type Event struct {
	Type       string              `json:"type"` // execution_started|execution_completed
	At         time.Time           `json:"at"`
	ScheduleID string              `json:"schedule_id"`
	Name       string              `json:"name,omitempty"`
	Execution  *schedule.Execution `json:"execution,omitempty"`
}

// EventHub fans execution lifecycle events out to websocket subscribers.
// It implements the manager's Observer; callbacks never block, slow
// subscribers just lose frames.
type EventHub struct {
	// OriginPatterns restricts websocket origins; empty allows any origin,
	// which suits a localhost dashboard.
	OriginPatterns []string

	logf func(format string, args ...any)

	mu   sync.Mutex
	subs map[chan Event]struct{}
}

func NewEventHub(logf func(format string, args ...any)) *EventHub {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &EventHub{
		logf: logf,
		subs: make(map[chan Event]struct{}),
	}
}

func (h *EventHub) ExecutionStarted(cfg schedule.Config) {
	h.broadcast(Event{
		Type:       "execution_started",
		At:         time.Now().UTC(),
		ScheduleID: cfg.ID,
		Name:       cfg.Name,
	})
}

func (h *EventHub) ExecutionCompleted(exec schedule.Execution) {
	e := exec
	h.broadcast(Event{
		Type:       "execution_completed",
		At:         time.Now().UTC(),
		ScheduleID: exec.ScheduleID,
		Execution:  &e,
	})
}

func (h *EventHub) broadcast(event Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *EventHub) subscribe() chan Event {
	ch := make(chan Event, 16)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *EventHub) unsubscribe(ch chan Event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// SubscriberCount reports connected websocket clients.
func (h *EventHub) SubscriberCount() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *EventHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	accept := &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns}
	if len(h.OriginPatterns) == 0 {
		accept = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	conn, err := websocket.Accept(w, r, accept)
	if err != nil {
		h.logf("events: websocket accept: %v", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	ctx := r.Context()
	// Drain the read side so pings and client close frames are handled.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-ch:
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
