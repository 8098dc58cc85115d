package types

import (
	"encoding/json"
	"time"
)

// Poll status values. The transition is one-way: ACTIVE -> ENDED.
const (
	PollStatusActive = "ACTIVE"
	PollStatusEnded  = "ENDED"
)

// Inbound event types sent by clients over the WebSocket.
const (
	EventJoinStudent      = "join_student"
	EventJoinTeacher      = "join_teacher"
	EventCreatePoll       = "create_poll"
	EventSubmitVote       = "submit_vote"
	EventRequestPollState = "request_poll_state"
)

// Outbound event types pushed to clients.
const (
	EventPollState        = "poll_state"
	EventPollStarted      = "poll_started"
	EventVoteUpdate       = "vote_update"
	EventPollEnded        = "poll_ended"
	EventAllStudentsVoted = "all_students_voted"
	EventError            = "error"
)

// Option is a single answer choice. Options are immutable once their poll
// is created and are identified by an id that is stable within the poll.
type Option struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// Poll is the durable poll record. Only the lifecycle component mutates it,
// and the only mutation is the terminal ACTIVE -> ENDED status transition.
type Poll struct {
	ID        string
	Question  string
	Options   []Option
	Duration  int // seconds
	StartedAt time.Time
	Status    string
}

// pollWire is the JSON shape of a poll. startedAt travels as epoch
// milliseconds so browser clients can feed it straight into Date().
type pollWire struct {
	ID        string   `json:"id"`
	Question  string   `json:"question"`
	Options   []Option `json:"options"`
	Duration  int      `json:"duration"`
	StartedAt int64    `json:"startedAt"`
	Status    string   `json:"status"`
}

func (p Poll) MarshalJSON() ([]byte, error) {
	return json.Marshal(pollWire{
		ID:        p.ID,
		Question:  p.Question,
		Options:   p.Options,
		Duration:  p.Duration,
		StartedAt: p.StartedAt.UnixMilli(),
		Status:    p.Status,
	})
}

func (p *Poll) UnmarshalJSON(data []byte) error {
	var w pollWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.ID = w.ID
	p.Question = w.Question
	p.Options = w.Options
	p.Duration = w.Duration
	p.StartedAt = time.UnixMilli(w.StartedAt)
	p.Status = w.Status
	return nil
}

// HasOption reports whether optionID belongs to this poll's option set.
func (p *Poll) HasOption(optionID string) bool {
	for _, opt := range p.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// Remaining returns the poll's remaining time in whole seconds, floored
// and clamped at zero. It never goes negative no matter how stale the poll.
func (p *Poll) Remaining(now time.Time) int {
	elapsed := now.Sub(p.StartedAt)
	remaining := time.Duration(p.Duration)*time.Second - elapsed
	if remaining <= 0 {
		return 0
	}
	return int(remaining / time.Second)
}

// Vote is the durable vote record. Votes are never mutated or deleted.
// At most one vote exists per (poll, student session) pair; the store's
// primary key enforces this beyond the in-process pre-check.
type Vote struct {
	PollID      string    `json:"pollId"`
	SessionID   string    `json:"studentSessionId"`
	StudentName string    `json:"studentName"`
	OptionID    string    `json:"optionId"`
	CreatedAt   time.Time `json:"timestamp"`
}

// PollHistoryEntry pairs an ended poll with its final tally for the
// history endpoint.
type PollHistoryEntry struct {
	Poll    *Poll          `json:"poll"`
	Results map[string]int `json:"results"`
}
