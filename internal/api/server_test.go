package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pollroom/internal/config"
	"pollroom/pkg/types"
)

// stubStore implements the store surface the endpoints read from.
type stubStore struct {
	active     *types.Poll
	votes      []*types.Vote
	healthErr  error
	activeErr  error
	availFalse bool
}

func (s *stubStore) CreatePoll(context.Context, *types.Poll) error { return nil }
func (s *stubStore) FindActivePoll(context.Context) (*types.Poll, error) {
	return s.active, s.activeErr
}
func (s *stubStore) FindPollByID(context.Context, string) (*types.Poll, error) { return nil, nil }
func (s *stubStore) UpdatePollStatus(context.Context, string, string) (*types.Poll, error) {
	return nil, nil
}
func (s *stubStore) FindEndedPolls(context.Context) ([]*types.Poll, error) { return nil, nil }
func (s *stubStore) CreateVote(context.Context, *types.Vote) error         { return nil }
func (s *stubStore) FindVotesByPoll(context.Context, string) ([]*types.Vote, error) {
	return s.votes, nil
}
func (s *stubStore) CountVotesByPoll(context.Context, string) (int, error) { return len(s.votes), nil }
func (s *stubStore) FindVote(context.Context, string, string) (*types.Vote, error) {
	return nil, nil
}
func (s *stubStore) Available() bool                      { return !s.availFalse }
func (s *stubStore) HealthCheck(context.Context) error    { return s.healthErr }
func (s *stubStore) Close() error                         { return nil }

type stubPolls struct {
	history []types.PollHistoryEntry
	err     error
}

func (p *stubPolls) HistoryWithResults(context.Context) ([]types.PollHistoryEntry, error) {
	return p.history, p.err
}

func (p *stubPolls) Remaining(poll *types.Poll) int {
	return poll.Remaining(time.Now())
}

func newTestServer(store *stubStore, polls *stubPolls) *Server {
	cfg := config.Default().HTTP
	cfg.PublicURL = "http://classroom.local/join"
	stats := func() map[string]int { return map[string]int{"total_connections": 3} }
	return NewServer(cfg, store, polls, stats, http.NotFoundHandler())
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHistoryEndpoint(t *testing.T) {
	polls := &stubPolls{history: []types.PollHistoryEntry{
		{
			Poll: &types.Poll{
				ID:        "p1",
				Question:  "Q?",
				Options:   []types.Option{{ID: "o1", Text: "a"}},
				Duration:  60,
				StartedAt: time.Now(),
				Status:    types.PollStatusEnded,
			},
			Results: map[string]int{"o1": 2},
		},
	}}
	s := newTestServer(&stubStore{}, polls)

	rec := get(t, s, "/api/polls/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var body struct {
		Polls []types.PollHistoryEntry `json:"polls"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(body.Polls) != 1 || body.Polls[0].Poll.ID != "p1" || body.Polls[0].Results["o1"] != 2 {
		t.Errorf("unexpected history payload: %+v", body.Polls)
	}
}

func TestHistoryEndpointError(t *testing.T) {
	s := newTestServer(&stubStore{}, &stubPolls{err: errors.New("boom")})
	rec := get(t, s, "/api/polls/history")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("unexpected status %d", rec.Code)
	}
}

func TestActiveEndpointNoPoll(t *testing.T) {
	s := newTestServer(&stubStore{}, &stubPolls{})
	rec := get(t, s, "/api/polls/active")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var payload types.PollStatePayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if payload.Poll != nil {
		t.Errorf("expected null poll, got %+v", payload.Poll)
	}
}

func TestActiveEndpointWithPoll(t *testing.T) {
	store := &stubStore{
		active: &types.Poll{
			ID:        "p1",
			Question:  "Q?",
			Options:   []types.Option{{ID: "o1", Text: "a"}, {ID: "o2", Text: "b"}},
			Duration:  60,
			StartedAt: time.Now(),
			Status:    types.PollStatusActive,
		},
		votes: []*types.Vote{
			{PollID: "p1", SessionID: "s1", OptionID: "o1"},
			{PollID: "p1", SessionID: "s2", OptionID: "o1"},
		},
	}
	s := newTestServer(store, &stubPolls{})

	rec := get(t, s, "/api/polls/active")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var payload types.PollStatePayload
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if payload.Poll == nil || payload.Poll.ID != "p1" {
		t.Fatalf("expected active poll, got %+v", payload.Poll)
	}
	if payload.Results["o1"] != 2 {
		t.Errorf("unexpected tally: %+v", payload.Results)
	}
	if payload.RemainingTime <= 0 || payload.RemainingTime > 60 {
		t.Errorf("unexpected remaining time %d", payload.RemainingTime)
	}
}

func TestJoinQREndpoint(t *testing.T) {
	s := newTestServer(&stubStore{}, &stubPolls{})
	rec := get(t, s, "/api/join-qr")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("unexpected content type %s", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected PNG bytes")
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(&stubStore{}, &stubPolls{})
	rec := get(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if payload["status"] != "ok" {
		t.Errorf("unexpected status field %v", payload["status"])
	}
}

func TestHealthEndpointDegraded(t *testing.T) {
	s := newTestServer(&stubStore{healthErr: errors.New("disk gone")}, &stubPolls{})
	rec := get(t, s, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("unexpected status %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(&stubStore{}, &stubPolls{})
	req := httptest.NewRequest(http.MethodPost, "/api/polls/history", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("unexpected status %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(&stubStore{}, &stubPolls{})
	req := httptest.NewRequest(http.MethodOptions, "/api/polls/history", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("unexpected status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
