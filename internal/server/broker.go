package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ashita-ai/monban/internal/model"
)

// Broker fans interview lifecycle events out to SSE subscribers. It plugs
// into the engine as an event hook, so dashboards watching GET /v1/events
// see starts and verdicts as they happen without polling /v1/interviews.
type Broker struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
}

// NewBroker creates an SSE broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		logger:      logger,
		subscribers: make(map[chan []byte]struct{}),
	}
}

// OnInterviewStarted implements the engine's event hook. The payload names
// the session but never carries the questions of a live interview.
func (b *Broker) OnInterviewStarted(_ context.Context, iv model.Interview) error {
	b.publish("interview_started", map[string]any{
		"id":             iv.ID,
		"requester":      iv.Requester,
		"channel":        iv.Channel,
		"player":         iv.Player,
		"question_count": len(iv.Questions),
		"created_at":     iv.CreatedAt,
	})
	return nil
}

// OnInterviewEnded implements the engine's event hook. Transcripts stay out
// of the stream; watchers fetch them from /v1/audit when they care.
func (b *Broker) OnInterviewEnded(_ context.Context, rec model.AuditRecord) error {
	b.publish("interview_ended", map[string]any{
		"id":        rec.ID,
		"requester": rec.Requester,
		"channel":   rec.Channel,
		"player":    rec.Player,
		"score":     rec.Score,
		"passed":    rec.Passed,
		"reason":    rec.Reason,
		"ended_at":  rec.EndedAt,
	})
	return nil
}

func (b *Broker) publish(eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("broker: marshal event", "event", eventType, "error", err)
		return
	}
	b.broadcast(formatSSE(eventType, string(data)))
}

// Subscribe returns a channel that receives SSE-formatted events.
// The caller must call Unsubscribe when done.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64) // Buffer to avoid blocking the broadcast loop.
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber channel and closes it.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	b.mu.Unlock()
	close(ch)
}

// broadcast sends an event to all subscribers. Slow subscribers with a full
// buffer are skipped (their event is dropped) to prevent one slow client
// from blocking all others.
func (b *Broker) broadcast(event []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop this event for them.
		}
	}
}

// formatSSE formats one Server-Sent Events message.
func formatSSE(eventType, data string) []byte {
	// SSE format: "event: <type>\ndata: <payload>\n\n"
	return []byte("event: " + eventType + "\ndata: " + data + "\n\n")
}

// HandleEvents handles GET /v1/events (SSE, reader+). Streams interview
// lifecycle events until the client disconnects.
func (h *Handlers) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeInternalError,
			"event stream not configured")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError,
			"streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Disable the server's WriteTimeout for this long-lived connection.
	// Without this, idle SSE connections are killed after WriteTimeout.
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	ch := h.broker.Subscribe()
	defer h.broker.Unsubscribe(ch)

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := w.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write(event); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
