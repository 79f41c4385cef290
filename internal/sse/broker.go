// Package sse implements a Server-Sent Events broker that announces linking
// runs and document changes.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/crosslink/internal/metrics"
)

// Event types emitted by the broker.
const (
	TypeRunStarted      = "run.started"
	TypeRunCompleted    = "run.completed"
	TypeRunFailed       = "run.failed"
	TypeDocumentChanged = "document.changed"
	TypeDocumentLinked  = "document.linked"
	TypeIndexUpdated    = "index.updated"
)

const (
	clientBuffer     = 64
	defaultReplay    = 128
	defaultHeartbeat = 25 * time.Second
	retryMillis      = 3000
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// envelope is what travels to the event loop. Document events carry
// touchesIndex so the loop can follow them with a throttled index.updated.
type envelope struct {
	event        Event
	touchesIndex bool
}

type subscription struct {
	ch    chan []byte
	after uint64
}

type frame struct {
	id  uint64
	raw []byte
}

// BrokerOption tunes a Broker.
type BrokerOption func(*Broker)

// WithReplay keeps the last n frames for clients reconnecting with
// Last-Event-ID. Zero disables replay.
func WithReplay(n int) BrokerOption {
	return func(b *Broker) {
		if n >= 0 {
			b.replay = n
		}
	}
}

// WithHeartbeat sets the interval of keep-alive comments on open streams.
func WithHeartbeat(d time.Duration) BrokerOption {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// Broker fans events out to SSE clients.
//
// One loop goroutine owns the client set, the replay ring, the event
// sequence and the index throttle. Public methods only talk to it over
// channels.
type Broker struct {
	indexMin  time.Duration
	replay    int
	heartbeat time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan envelope
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits index.updated at most once per
// indexThrottle.
func NewBroker(indexThrottle time.Duration, opts ...BrokerOption) *Broker {
	if indexThrottle <= 0 {
		indexThrottle = 2 * time.Second
	}

	b := &Broker{
		indexMin:      indexThrottle,
		replay:        defaultReplay,
		heartbeat:     defaultHeartbeat,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan envelope, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq       uint64
		ring      []frame
		lastIndex time.Time
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		if b.replay > 0 {
			ring = append(ring, frame{id: seq, raw: raw})
			if len(ring) > b.replay {
				ring = ring[len(ring)-b.replay:]
			}
		}

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				metrics.EventsDropped.Inc()
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			if sub.after > 0 {
				for _, f := range ring {
					if f.id <= sub.after {
						continue
					}
					select {
					case sub.ch <- f.raw:
					default:
						metrics.EventsDropped.Inc()
					}
				}
			}
			clients[sub.ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case env := <-b.publishCh:
			broadcast(env.event)
			if !env.touchesIndex {
				continue
			}
			if now := time.Now(); now.Sub(lastIndex) >= b.indexMin {
				lastIndex = now
				broadcast(Event{Type: TypeIndexUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeFrom(0)
}

// SubscribeFrom adds a client that first receives the retained frames with
// an id greater than lastID.
func (b *Broker) SubscribeFrom(lastID uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, after: lastID}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

func (b *Broker) send(env envelope) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- env:
	case <-b.stopped:
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.send(envelope{event: event})
}

// PublishDocumentEvent announces a document that changed on disk ("changed")
// or was rewritten by a run ("linked"), followed by a throttled
// index.updated event. Other kinds are ignored.
func (b *Broker) PublishDocumentEvent(kind, path string) {
	var typ string
	switch kind {
	case "changed":
		typ = TypeDocumentChanged
	case "linked":
		typ = TypeDocumentLinked
	default:
		return
	}
	b.send(envelope{
		event:        Event{Type: typ, Data: map[string]string{"path": path}},
		touchesIndex: true,
	})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). Clients that
// reconnect with a Last-Event-ID header get the frames they missed, as far
// as the replay ring reaches.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	lastID, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.SubscribeFrom(lastID)
	defer b.Unsubscribe(ch)

	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": keepalive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
