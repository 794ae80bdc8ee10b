package server

import (
	"bufio"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/monban/internal/model"
)

func testBroker() *Broker {
	return NewBroker(slog.New(slog.DiscardHandler))
}

func TestBrokerFanOut(t *testing.T) {
	b := testBroker()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	err := b.OnInterviewEnded(context.Background(), model.AuditRecord{
		ID:        uuid.New(),
		Requester: "tg:9",
		Channel:   "tg:9",
		Player:    "Zulu_9",
		Score:     27,
		Passed:    true,
		Reason:    model.ReasonCompleted,
		EndedAt:   time.Now(),
	})
	require.NoError(t, err)

	for i, ch := range []chan []byte{ch1, ch2} {
		select {
		case event := <-ch:
			s := string(event)
			assert.Contains(t, s, "event: interview_ended", "subscriber %d", i)
			assert.Contains(t, s, "Zulu_9", "subscriber %d", i)
			assert.Contains(t, s, `"passed":true`, "subscriber %d", i)
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestBrokerStartedEventOmitsQuestions(t *testing.T) {
	b := testBroker()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	err := b.OnInterviewStarted(context.Background(), model.Interview{
		ID:        uuid.New(),
		Requester: "tg:8",
		Channel:   "tg:8",
		Player:    "Yankee_8",
		Questions: []string{"Why do you want to join this server?", "Who invited you?"},
		CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	select {
	case event := <-ch:
		s := string(event)
		assert.Contains(t, s, "event: interview_started")
		assert.Contains(t, s, `"question_count":2`)
		assert.NotContains(t, s, "Why do you want", "live questions must not leak")
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestBrokerDropsEventsForFullSubscribers(t *testing.T) {
	b := testBroker()
	slow := b.Subscribe()
	defer b.Unsubscribe(slow)

	// Fill the buffer without draining, then broadcast once more. The
	// broadcast must return instead of blocking on the stuck channel.
	for range cap(slow) {
		b.broadcast([]byte("x"))
	}
	done := make(chan struct{})
	go func() {
		b.broadcast([]byte("overflow"))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}
	assert.Equal(t, cap(slow), len(slow))
}

func TestBrokerUnsubscribeClosesChannel(t *testing.T) {
	b := testBroker()
	ch := b.Subscribe()
	b.Unsubscribe(ch)

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed")

	// Broadcasting after unsubscribe must not panic on the closed channel.
	b.broadcast([]byte("late"))
}

func TestFormatSSE(t *testing.T) {
	got := formatSSE("interview_ended", `{"player":"Steve_1"}`)
	assert.Equal(t, "event: interview_ended\ndata: {\"player\":\"Steve_1\"}\n\n", string(got))
}

func TestHandleEventsStreams(t *testing.T) {
	b := testBroker()
	h := &Handlers{broker: b, logger: slog.New(slog.DiscardHandler)}

	srv := httptest.NewServer(http.HandlerFunc(h.HandleEvents))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	// Wait for the subscription to be registered before publishing.
	require.Eventually(t, func() bool {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return len(b.subscribers) == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, b.OnInterviewEnded(ctx, model.AuditRecord{
		ID:     uuid.New(),
		Player: "Xray_7",
		Passed: false,
		Reason: model.ReasonTimeout,
	}))

	deadline := time.After(3 * time.Second)
	var sawEvent, sawData bool
	for !(sawEvent && sawData) {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before event arrived")
			}
			if line == "event: interview_ended" {
				sawEvent = true
			}
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, "Xray_7") {
				sawData = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for event on stream")
		}
	}
}

func TestHandleEventsWithoutBroker(t *testing.T) {
	h := &Handlers{logger: slog.New(slog.DiscardHandler)}
	r := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	w := httptest.NewRecorder()
	h.HandleEvents(w, r)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
