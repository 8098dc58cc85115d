package coordinator

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !rl.Allow("c1") {
			t.Fatalf("call %d must be allowed", i+1)
		}
	}
	if rl.Allow("c1") {
		t.Error("fourth call must be rejected")
	}
	// Other keys are unaffected.
	if !rl.Allow("c2") {
		t.Error("different key must be allowed")
	}
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	current := time.Now()
	rl.now = func() time.Time { return current }

	if !rl.Allow("c1") || !rl.Allow("c1") {
		t.Fatal("first two calls must be allowed")
	}
	if rl.Allow("c1") {
		t.Fatal("third call must be rejected")
	}

	current = current.Add(61 * time.Second)
	if !rl.Allow("c1") {
		t.Error("call after the window slid must be allowed")
	}
}

func TestRateLimiterForget(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	if !rl.Allow("c1") {
		t.Fatal("first call must be allowed")
	}
	if rl.Allow("c1") {
		t.Fatal("second call must be rejected")
	}

	rl.Forget("c1")
	if !rl.Allow("c1") {
		t.Error("history must reset after Forget")
	}
}
