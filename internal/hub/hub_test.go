package hub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []Event
	seen   chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{seen: make(chan struct{}, 64)}
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev Event) {
	d.mu.Lock()
	d.events = append(d.events, ev)
	d.mu.Unlock()
	d.seen <- struct{}{}
}

func (d *recordingDispatcher) snapshot() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Event, len(d.events))
	copy(out, d.events)
	return out
}

func waitFor(t *testing.T, d *recordingDispatcher, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-d.seen:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
}

func TestHubDeliversEventsInOrder(t *testing.T) {
	h := NewHub(16)
	d := newRecordingDispatcher()
	h.Run(context.Background(), d)
	defer h.Stop()

	if err := h.EnqueuePollExpired("p1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if err := h.EnqueueTeacherRelease("h1"); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	waitFor(t, d, 2)

	events := d.snapshot()
	if events[0].Kind != PollExpired || events[0].PollID != "p1" {
		t.Errorf("unexpected first event: %+v", events[0])
	}
	if events[1].Kind != TeacherRelease || events[1].Handle != "h1" {
		t.Errorf("unexpected second event: %+v", events[1])
	}
}

func TestHubEnqueueAfterStop(t *testing.T) {
	h := NewHub(16)
	h.Run(context.Background(), newRecordingDispatcher())
	h.Stop()

	if err := h.EnqueuePollExpired("p1"); !errors.Is(err, ErrHubStopped) {
		t.Errorf("expected ErrHubStopped, got %v", err)
	}
}

func TestHubQueueFullDropsEvent(t *testing.T) {
	// No Run, so nothing drains the queue.
	h := NewHub(1)

	if err := h.EnqueuePollExpired("p1"); err != nil {
		t.Fatalf("first enqueue must fit: %v", err)
	}
	if err := h.EnqueuePollExpired("p2"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestHubStopsOnContextCancel(t *testing.T) {
	h := NewHub(16)
	d := newRecordingDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	h.Run(ctx, d)

	cancel()
	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop after context cancel")
	}
}
