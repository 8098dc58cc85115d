package types

import (
	"encoding/json"
	"testing"
	"time"
)

func TestPollJSONUsesEpochMillis(t *testing.T) {
	started := time.UnixMilli(1700000000123)
	poll := Poll{
		ID:        "p1",
		Question:  "Q?",
		Options:   []Option{{ID: "o1", Text: "a"}},
		Duration:  60,
		StartedAt: started,
		Status:    PollStatusActive,
	}

	data, err := json.Marshal(poll)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if got := int64(raw["startedAt"].(float64)); got != 1700000000123 {
		t.Errorf("startedAt must be epoch millis, got %d", got)
	}

	var back Poll
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal into Poll failed: %v", err)
	}
	if !back.StartedAt.Equal(started) {
		t.Errorf("startedAt did not round-trip: %v vs %v", back.StartedAt, started)
	}
	if back.ID != "p1" || back.Status != PollStatusActive || len(back.Options) != 1 {
		t.Errorf("poll did not round-trip: %+v", back)
	}
}

func TestRemaining(t *testing.T) {
	started := time.Now()
	poll := Poll{Duration: 60, StartedAt: started}

	cases := []struct {
		name    string
		elapsed time.Duration
		want    int
	}{
		{"just started", 0, 60},
		{"mid flight", 30 * time.Second, 30},
		{"floors partial seconds", 30*time.Second + 400*time.Millisecond, 29},
		{"exactly over", 60 * time.Second, 0},
		{"long past", time.Hour, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := poll.Remaining(started.Add(tc.elapsed)); got != tc.want {
				t.Errorf("Remaining after %v = %d, want %d", tc.elapsed, got, tc.want)
			}
		})
	}
}

func TestHasOption(t *testing.T) {
	poll := Poll{Options: []Option{{ID: "o1"}, {ID: "o2"}}}
	if !poll.HasOption("o2") {
		t.Error("expected o2 to be found")
	}
	if poll.HasOption("o3") {
		t.Error("o3 must not be found")
	}
}
