package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncRecorder guards the recorder body, which ServeHTTP writes from
// another goroutine.
type syncRecorder struct {
	*httptest.ResponseRecorder
	mu sync.Mutex
}

func (r *syncRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ResponseRecorder.Write(p)
}

func (r *syncRecorder) body() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Body.String()
}

func drain(ch chan []byte) []string {
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(ch)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
}

func TestPublishRunCompleted(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeRunCompleted, Data: map[string]any{"id": "r1", "accepted": 3}})

	select {
	case msg := <-ch:
		s := string(msg)
		if !strings.Contains(s, "event: run.completed") {
			t.Errorf("missing event type in %q", s)
		}
		if !strings.Contains(s, `"accepted":3`) {
			t.Errorf("missing data in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
	}
}

func TestPublishDocumentEvent_IndexThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.PublishDocumentEvent("changed", "a.md")
	b.PublishDocumentEvent("linked", "b.md")
	b.PublishDocumentEvent("bogus", "c.md")

	time.Sleep(50 * time.Millisecond)
	indexCount, docCount := 0, 0
	for _, s := range drain(ch) {
		if strings.Contains(s, TypeIndexUpdated) {
			indexCount++
		} else {
			docCount++
		}
	}

	if docCount != 2 {
		t.Errorf("document events = %d, want 2", docCount)
	}
	if indexCount != 1 {
		t.Errorf("index events = %d, want 1 (throttled)", indexCount)
	}
}

func TestSSEHandler(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	req = req.WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client from handler")
	}

	b.PublishDocumentEvent("linked", "x.md")
	time.Sleep(50 * time.Millisecond)

	cancel()
	<-done

	if body := w.body(); !strings.Contains(body, "event: document.linked") {
		t.Errorf("handler output missing event: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if b.ClientCount() != 0 {
		t.Errorf("client not cleaned up after disconnect")
	}
}

func TestPublishDropsOnFullBuffer(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Buffer holds 64; the rest must be dropped without blocking.
	for i := 0; i < 70; i++ {
		b.Publish(Event{Type: "test", Data: map[string]string{"i": "x"}})
	}
}

func TestCloseClosesSubscribersAndStopsOperations(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe()
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected subscriber channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for channel close")
	}

	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}

	b.Publish(Event{Type: TypeRunCompleted, Data: map[string]string{}})
	b.PublishDocumentEvent("linked", "x.md")
}

func TestFramesCarrySequentialIDs(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	b.Publish(Event{Type: TypeRunStarted, Data: map[string]string{"id": "r1"}})
	b.Publish(Event{Type: TypeRunCompleted, Data: map[string]string{"id": "r1"}})

	for _, want := range []string{"id: 1\n", "id: 2\n"} {
		select {
		case msg := <-ch:
			if !strings.HasPrefix(string(msg), want) {
				t.Errorf("frame = %q, want prefix %q", msg, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}
}

func TestSubscribeFromReplaysMissedFrames(t *testing.T) {
	b := NewBroker(time.Second, WithReplay(2))
	defer b.Close()

	sink := b.Subscribe()
	for _, id := range []string{"a", "b", "c"} {
		b.Publish(Event{Type: TypeRunCompleted, Data: map[string]string{"id": id}})
	}
	// Once the sink has all three frames the ring holds them too.
	for i := 0; i < 3; i++ {
		select {
		case <-sink:
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	}
	b.Unsubscribe(sink)

	ch := b.SubscribeFrom(1)
	defer b.Unsubscribe(ch)

	got := drain(ch)
	if len(got) != 2 {
		t.Fatalf("replayed %d frames, want 2: %q", len(got), got)
	}
	if !strings.Contains(got[0], `"id":"b"`) || !strings.Contains(got[1], `"id":"c"`) {
		t.Errorf("replayed frames = %q", got)
	}

	fresh := b.Subscribe()
	defer b.Unsubscribe(fresh)
	if n := len(drain(fresh)); n != 0 {
		t.Errorf("new subscriber got %d replayed frames, want 0", n)
	}
}

func TestSSEHandler_HeartbeatAndRetry(t *testing.T) {
	b := NewBroker(time.Second, WithHeartbeat(20*time.Millisecond))
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := &syncRecorder{ResponseRecorder: httptest.NewRecorder()}

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(80 * time.Millisecond)
	cancel()
	<-done

	body := w.body()
	if !strings.HasPrefix(body, "retry: 3000\n\n") {
		t.Errorf("body should start with retry hint: %q", body)
	}
	if !strings.Contains(body, ": keepalive\n\n") {
		t.Errorf("no keepalive comment in %q", body)
	}
}
