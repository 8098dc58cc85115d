package interfaces

import (
	"context"

	"pollroom/pkg/types"
)

// Store handles all durable poll and vote operations. A single interface
// for the persistence collaborator keeps transaction handling and the
// single-writer discipline in one implementation.
type Store interface {
	// CreatePoll persists a new poll with status ACTIVE.
	CreatePoll(ctx context.Context, poll *types.Poll) error

	// FindActivePoll returns the poll with status ACTIVE, or nil when no
	// poll is active. At most one active poll exists at any instant.
	FindActivePoll(ctx context.Context) (*types.Poll, error)

	// FindPollByID returns ErrPollNotFound when the id is unknown.
	FindPollByID(ctx context.Context, id string) (*types.Poll, error)

	// UpdatePollStatus performs the conditional ACTIVE -> ENDED transition.
	// It returns the updated poll, or nil when the poll is missing or was
	// already ended (a no-op, never an error).
	UpdatePollStatus(ctx context.Context, id string, status string) (*types.Poll, error)

	// FindEndedPolls returns ended polls newest-first.
	FindEndedPolls(ctx context.Context) ([]*types.Poll, error)

	// CreateVote inserts a vote. It returns ErrDuplicateVote when the
	// (poll_id, session_id) uniqueness constraint is violated.
	CreateVote(ctx context.Context, vote *types.Vote) error

	// FindVotesByPoll returns all votes recorded for a poll.
	FindVotesByPoll(ctx context.Context, pollID string) ([]*types.Vote, error)

	// CountVotesByPoll returns the number of votes recorded for a poll.
	CountVotesByPoll(ctx context.Context, pollID string) (int, error)

	// FindVote returns the vote for a (poll, session) pair, or nil when
	// the student has not voted.
	FindVote(ctx context.Context, pollID, sessionID string) (*types.Vote, error)

	// Available reports the last known health of the store. Writers consult
	// it to fail fast with a service-unavailable rejection instead of
	// hanging while background reconnection continues.
	Available() bool

	// HealthCheck verifies connectivity and basic read access.
	HealthCheck(ctx context.Context) error

	// Close shuts the store down after pending writes complete.
	Close() error
}
