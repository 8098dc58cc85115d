package types

import "encoding/json"

// Envelope is the type-tagged frame for every client -> server message.
// The payload stays raw until the event type is known.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ServerEvent is the frame for every server -> client message.
type ServerEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// JoinStudentPayload identifies a student joining the session. The session
// id is a client-generated opaque token that survives reconnects within a
// browser session.
type JoinStudentPayload struct {
	StudentSessionID string `json:"studentSessionId"`
	StudentName      string `json:"studentName"`
}

// CreatePollPayload is the teacher's poll creation request.
type CreatePollPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Duration int      `json:"duration"`
}

// SubmitVotePayload is a student's vote for one option of one poll.
type SubmitVotePayload struct {
	PollID   string `json:"pollId"`
	OptionID string `json:"optionId"`
}

// PollStatePayload is the reconciliation snapshot delivered to a client on
// join, refresh, or explicit request. Poll is null when there is nothing
// relevant to show. StudentCount and VoteCount are only set for teachers.
type PollStatePayload struct {
	Poll          *Poll          `json:"poll"`
	RemainingTime int            `json:"remainingTime"`
	Results       map[string]int `json:"results"`
	HasVoted      bool           `json:"hasVoted"`
	StudentCount  *int           `json:"studentCount,omitempty"`
	VoteCount     *int           `json:"voteCount,omitempty"`
}

// PollStartedPayload announces a freshly created poll to its room.
type PollStartedPayload struct {
	Poll          *Poll          `json:"poll"`
	RemainingTime int            `json:"remainingTime"`
	Results       map[string]int `json:"results"`
}

// VoteUpdatePayload carries the recomputed tally after every accepted vote.
type VoteUpdatePayload struct {
	PollID       string         `json:"pollId"`
	Results      map[string]int `json:"results"`
	VoteCount    int            `json:"voteCount"`
	StudentCount int            `json:"studentCount"`
}

// PollEndedPayload announces the terminal tally of a poll.
type PollEndedPayload struct {
	PollID  string         `json:"pollId"`
	Results map[string]int `json:"results"`
}

// AllStudentsVotedPayload is informational only; it never ends the poll by
// itself.
type AllStudentsVotedPayload struct {
	PollID string `json:"pollId"`
}

// ErrorPayload carries a user-facing rejection message.
type ErrorPayload struct {
	Message string `json:"message"`
}
