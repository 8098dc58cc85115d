// Package ledger validates and records votes: one vote per (poll, student
// session) pair, enforced by a pre-check and by the store's uniqueness
// constraint as the race-safety backstop.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pollroom/internal/results"
	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// Ledger owns duplicate-vote rejection and vote counting.
type Ledger struct {
	store interfaces.Store
	now   func() time.Time
}

// NewLedger creates a vote ledger backed by the given store.
func NewLedger(store interfaces.Store) *Ledger {
	return &Ledger{
		store: store,
		now:   time.Now,
	}
}

// SubmitVote validates and records one vote, then returns the recomputed
// tally and total vote count for the poll.
//
// Validation order: the poll must exist, be ACTIVE, and still have clock
// time remaining (a poll whose timer has not fired yet but whose clock has
// expired rejects late votes); the option must belong to the poll. A
// duplicate on (poll, session) - caught by the pre-check or by the store
// constraint - is reported uniformly as an "already voted" conflict.
func (l *Ledger) SubmitVote(ctx context.Context, pollID, sessionID, studentName, optionID string) (map[string]int, int, error) {
	if !types.IsValidSessionID(sessionID) {
		return nil, 0, types.Validation("Student not identified")
	}

	poll, err := l.store.FindPollByID(ctx, pollID)
	if err != nil {
		if errors.Is(err, interfaces.ErrPollNotFound) {
			return nil, 0, types.NotFound("Poll not found")
		}
		return nil, 0, fmt.Errorf("failed to load poll: %w", err)
	}

	if poll.Status != types.PollStatusActive {
		return nil, 0, types.State("Poll is not active")
	}
	if poll.Remaining(l.now()) <= 0 {
		return nil, 0, types.State("Voting time is over")
	}
	if !poll.HasOption(optionID) {
		return nil, 0, types.State("Invalid option")
	}

	existing, err := l.store.FindVote(ctx, pollID, sessionID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to check existing vote: %w", err)
	}
	if existing != nil {
		return nil, 0, types.Conflict("Already voted")
	}

	vote := &types.Vote{
		PollID:      pollID,
		SessionID:   sessionID,
		StudentName: studentName,
		OptionID:    optionID,
		CreatedAt:   l.now(),
	}
	if err := l.store.CreateVote(ctx, vote); err != nil {
		// Concurrent submissions from the same session can slip past the
		// pre-check; the constraint violation gets the same user-facing
		// rejection, never a generic failure.
		if errors.Is(err, interfaces.ErrDuplicateVote) {
			return nil, 0, types.Conflict("Already voted")
		}
		return nil, 0, fmt.Errorf("failed to record vote: %w", err)
	}

	votes, err := l.store.FindVotesByPoll(ctx, pollID)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load votes: %w", err)
	}
	return results.Tally(votes), len(votes), nil
}

// HasVoted reports whether a student session has a vote recorded for a poll.
func (l *Ledger) HasVoted(ctx context.Context, pollID, sessionID string) (bool, error) {
	vote, err := l.store.FindVote(ctx, pollID, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to check vote: %w", err)
	}
	return vote != nil, nil
}

// VoteCount returns the total number of votes recorded for a poll.
func (l *Ledger) VoteCount(ctx context.Context, pollID string) (int, error) {
	count, err := l.store.CountVotesByPoll(ctx, pollID)
	if err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return count, nil
}
