package hub

import (
	"context"
	"log"
	"sync"

	"pollroom/pkg/interfaces"
)

// EventKind discriminates the events the dispatch loop consumes.
type EventKind int

const (
	// ClientMessage is a raw frame read from a connection.
	ClientMessage EventKind = iota
	// Disconnect signals a connection's read pump exited.
	Disconnect
	// PollExpired fires when a poll's duration timer elapses.
	PollExpired
	// TeacherRelease fires when the teacher grace period elapses without a
	// reconnect.
	TeacherRelease
)

// Event is the unit of work the hub serializes. Which fields are set depends
// on the kind: ClientMessage carries Conn and Data, Disconnect carries Conn,
// PollExpired carries PollID, TeacherRelease carries Handle.
type Event struct {
	Kind   EventKind
	Conn   interfaces.Conn
	Data   []byte
	PollID string
	Handle string
}

// Dispatcher consumes events one at a time on the hub goroutine. All
// coordinator state transitions happen inside Dispatch; nothing else runs
// concurrently with it.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event)
}

// Hub funnels events from connection read pumps and expiry timers into a
// single dispatch goroutine. Producers enqueue without blocking; a full
// queue drops the event and reports ErrQueueFull.
type Hub struct {
	events   chan Event
	stopOnce sync.Once
	stopped  chan struct{}
	wg       sync.WaitGroup
}

// NewHub creates a hub with the given event queue depth.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Hub{
		events:  make(chan Event, queueSize),
		stopped: make(chan struct{}),
	}
}

// Run starts the dispatch loop. It returns when ctx is canceled or Stop is
// called. Call at most once.
func (h *Hub) Run(ctx context.Context, dispatcher Dispatcher) {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		for {
			select {
			case ev := <-h.events:
				dispatcher.Dispatch(ctx, ev)
			case <-ctx.Done():
				return
			case <-h.stopped:
				return
			}
		}
	}()
}

// Enqueue offers an event to the dispatch loop without blocking.
func (h *Hub) Enqueue(ev Event) error {
	select {
	case <-h.stopped:
		return ErrHubStopped
	default:
	}

	select {
	case h.events <- ev:
		return nil
	default:
		log.Printf("Hub queue full, dropping event kind=%d", ev.Kind)
		return ErrQueueFull
	}
}

// EnqueueMessage submits a frame read from conn.
func (h *Hub) EnqueueMessage(conn interfaces.Conn, data []byte) error {
	return h.Enqueue(Event{Kind: ClientMessage, Conn: conn, Data: data})
}

// EnqueueDisconnect submits a connection teardown.
func (h *Hub) EnqueueDisconnect(conn interfaces.Conn) error {
	return h.Enqueue(Event{Kind: Disconnect, Conn: conn})
}

// EnqueuePollExpired submits a poll timer expiry.
func (h *Hub) EnqueuePollExpired(pollID string) error {
	return h.Enqueue(Event{Kind: PollExpired, PollID: pollID})
}

// EnqueueTeacherRelease submits a teacher grace period expiry.
func (h *Hub) EnqueueTeacherRelease(handle string) error {
	return h.Enqueue(Event{Kind: TeacherRelease, Handle: handle})
}

// Stop shuts the dispatch loop down and waits for it to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopped)
	})
	h.wg.Wait()
}
