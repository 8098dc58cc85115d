package interfaces

import "errors"

// Store errors shared across implementations and their callers.
var (
	ErrPollNotFound = errors.New("poll not found")

	// ErrDuplicateVote is the storage-level uniqueness violation on
	// (poll_id, session_id). The ledger translates it to a user-facing
	// "already voted" rejection; callers never see a raw driver error.
	ErrDuplicateVote = errors.New("duplicate vote")
)
