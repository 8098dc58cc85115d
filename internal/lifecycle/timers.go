package lifecycle

import (
	"sync"
	"time"
)

// timerTable maps poll ids to cancelable scheduled callbacks. Scheduling
// for an id that already has a timer cancels the old one first, so a stale
// expiry can never fire for a replaced schedule.
type timerTable struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerTable() *timerTable {
	return &timerTable{
		timers: make(map[string]*time.Timer),
	}
}

func (t *timerTable) schedule(id string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.timers[id]; ok {
		existing.Stop()
	}
	t.timers[id] = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
		fn()
	})
}

// cancel stops and discards the timer for an id. Unknown ids are a no-op.
func (t *timerTable) cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if timer, ok := t.timers[id]; ok {
		timer.Stop()
		delete(t.timers, id)
	}
}

func (t *timerTable) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}

// size is used by recovery tests to assert no double-scheduling.
func (t *timerTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}
