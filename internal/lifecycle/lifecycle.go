// Package lifecycle owns poll creation eligibility, expiry timer
// scheduling and recovery, and the terminal ACTIVE -> ENDED transition.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"pollroom/internal/results"
	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// Presence is the view of connected students the lifecycle needs for
// creation eligibility.
type Presence interface {
	Count() int
	SessionIDs() map[string]struct{}
}

// EndResult carries an ended poll with its final tally. It is produced at
// most once per poll: the conditional status update is the serialization
// point.
type EndResult struct {
	Poll    *types.Poll
	Results map[string]int
}

// Decision is the outcome of a creation eligibility check. Ended is
// non-nil when an expired or fully-voted poll was closed on the way to
// allowing creation; the caller is responsible for announcing it.
type Decision struct {
	Allowed bool
	Reason  string
	Ended   *EndResult
}

// Lifecycle is the sole writer of poll records. Creation checks and the
// check-and-create sequence are expected to run on the coordinator's single
// dispatch goroutine; the timer table has its own lock because expiry
// callbacks fire on timer goroutines.
type Lifecycle struct {
	store     interfaces.Store
	presence  Presence
	onExpired func(pollID string)
	now       func() time.Time

	timers *timerTable
}

// NewLifecycle creates a poll lifecycle. onExpired is invoked from a timer
// goroutine when a poll's clock runs out; it must only enqueue work, never
// mutate shared state directly.
func NewLifecycle(store interfaces.Store, presence Presence, onExpired func(pollID string)) *Lifecycle {
	return &Lifecycle{
		store:     store,
		presence:  presence,
		onExpired: onExpired,
		now:       time.Now,
		timers:    newTimerTable(),
	}
}

// CanCreate decides whether a new poll may be created right now.
//
// No active poll: allowed. Active poll with no clock time left: end it,
// then allowed. Otherwise at least one student must be connected, and every
// connected student must have voted; anything less is denied with a
// progress message.
func (l *Lifecycle) CanCreate(ctx context.Context) (Decision, error) {
	active, err := l.store.FindActivePoll(ctx)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to find active poll: %w", err)
	}
	if active == nil {
		return Decision{Allowed: true}, nil
	}

	if active.Remaining(l.now()) <= 0 {
		ended, err := l.EndPoll(ctx, active.ID)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: true, Ended: ended}, nil
	}

	total := l.presence.Count()
	if total == 0 {
		return Decision{Reason: "Cannot create a new poll yet: wait for the timer to finish"}, nil
	}

	voted, err := l.connectedVoters(ctx, active.ID)
	if err != nil {
		return Decision{}, err
	}
	if voted >= total {
		ended, err := l.EndPoll(ctx, active.ID)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: true, Ended: ended}, nil
	}

	return Decision{Reason: fmt.Sprintf("%d/%d students have voted", voted, total)}, nil
}

// connectedVoters counts distinct connected students with a vote recorded
// against the poll. Votes from students who have since disconnected do not
// count toward the all-voted condition.
func (l *Lifecycle) connectedVoters(ctx context.Context, pollID string) (int, error) {
	votes, err := l.store.FindVotesByPoll(ctx, pollID)
	if err != nil {
		return 0, fmt.Errorf("failed to load votes: %w", err)
	}
	connected := l.presence.SessionIDs()
	voted := 0
	for _, vote := range votes {
		if _, ok := connected[vote.SessionID]; ok {
			voted++
		}
	}
	return voted, nil
}

// Create validates input, re-checks eligibility, persists the poll with
// status ACTIVE, and schedules its expiry timer. The eligibility re-check
// runs immediately before the write; together with single-goroutine
// dispatch this closes the double-submit race. The returned EndResult, if
// any, is the previously active poll that was auto-ended on the way.
func (l *Lifecycle) Create(ctx context.Context, question string, options []string, duration int) (*types.Poll, *EndResult, error) {
	if err := types.ValidateCreatePoll(question, options, duration); err != nil {
		return nil, nil, err
	}

	decision, err := l.CanCreate(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !decision.Allowed {
		return nil, decision.Ended, types.Conflict(decision.Reason)
	}

	poll := &types.Poll{
		ID:        uuid.New().String(),
		Question:  question,
		Duration:  duration,
		StartedAt: l.now(),
		Status:    types.PollStatusActive,
	}
	for _, text := range options {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			poll.Options = append(poll.Options, types.Option{
				ID:   uuid.New().String(),
				Text: trimmed,
			})
		}
	}

	if err := l.store.CreatePoll(ctx, poll); err != nil {
		return nil, decision.Ended, fmt.Errorf("failed to persist poll: %w", err)
	}

	l.ScheduleTimer(poll.ID, time.Duration(poll.Duration)*time.Second)
	log.Printf("Created poll: id=%s duration=%ds options=%d", poll.ID, poll.Duration, len(poll.Options))

	return poll, decision.Ended, nil
}

// ScheduleTimer schedules the expiry notification for a poll, replacing
// any timer already tracked for that poll id. The callback fires at most
// once per scheduling; EndPoll stays idempotent against an already-ended
// poll, so a stale callback is harmless.
func (l *Lifecycle) ScheduleTimer(pollID string, d time.Duration) {
	l.timers.schedule(pollID, d, func() {
		if l.onExpired != nil {
			l.onExpired(pollID)
		}
	})
}

// CancelTimer discards the timer for a poll id. Canceling a nonexistent
// timer is a no-op.
func (l *Lifecycle) CancelTimer(pollID string) {
	l.timers.cancel(pollID)
}

// EndPoll performs the conditional ACTIVE -> ENDED transition and returns
// the final tally. A missing or already-ended poll returns (nil, nil):
// callers must not double-announce. Store failures leave the poll ACTIVE
// and propagate as retryable errors.
func (l *Lifecycle) EndPoll(ctx context.Context, pollID string) (*EndResult, error) {
	// Tally before the transition: all vote writes are serialized behind
	// the same dispatch goroutine, so nothing lands in between.
	votes, err := l.store.FindVotesByPoll(ctx, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to load votes: %w", err)
	}

	updated, err := l.store.UpdatePollStatus(ctx, pollID, types.PollStatusEnded)
	if err != nil {
		return nil, fmt.Errorf("failed to end poll: %w", err)
	}
	if updated == nil {
		return nil, nil
	}

	l.timers.cancel(pollID)
	log.Printf("Ended poll: id=%s votes=%d", pollID, len(votes))

	return &EndResult{Poll: updated, Results: results.Tally(votes)}, nil
}

// RecoverTimers reconstructs in-memory timer state after a restart. An
// active poll with time remaining gets its timer rescheduled for the
// remainder; one whose clock already ran out is ended immediately and
// returned so the caller can log it. Calling this twice in a row neither
// ends a still-valid poll nor double-schedules its timer.
func (l *Lifecycle) RecoverTimers(ctx context.Context) (*EndResult, error) {
	active, err := l.store.FindActivePoll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to find active poll: %w", err)
	}
	if active == nil {
		return nil, nil
	}

	remaining := active.Remaining(l.now())
	if remaining <= 0 {
		return l.EndPoll(ctx, active.ID)
	}

	l.ScheduleTimer(active.ID, time.Duration(remaining)*time.Second)
	log.Printf("Recovered timer: poll=%s remaining=%ds", active.ID, remaining)
	return nil, nil
}

// Remaining returns the poll's remaining seconds, floored at zero.
func (l *Lifecycle) Remaining(poll *types.Poll) int {
	return poll.Remaining(l.now())
}

// HistoryWithResults returns ended polls newest-first, each paired with
// its final tally.
func (l *Lifecycle) HistoryWithResults(ctx context.Context) ([]types.PollHistoryEntry, error) {
	ended, err := l.store.FindEndedPolls(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ended polls: %w", err)
	}

	history := make([]types.PollHistoryEntry, 0, len(ended))
	for _, poll := range ended {
		votes, err := l.store.FindVotesByPoll(ctx, poll.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load votes for poll %s: %w", poll.ID, err)
		}
		history = append(history, types.PollHistoryEntry{
			Poll:    poll,
			Results: results.Tally(votes),
		})
	}
	return history, nil
}

// Stop cancels all outstanding timers.
func (l *Lifecycle) Stop() {
	l.timers.stopAll()
}
