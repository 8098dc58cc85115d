// Package database implements the durable poll/vote store on SQLite.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"

	dbconfig "pollroom/pkg/database"
	"pollroom/pkg/interfaces"
	"pollroom/pkg/types"
)

// Manager implements interfaces.Store. All writes funnel through a single
// goroutine because SQLite serializes writers anyway; reads run
// concurrently against the pool. A background probe keeps the availability
// flag fresh so request paths can fail fast instead of hanging on a broken
// store.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	available    atomic.Bool
	closed       bool
	mu           sync.RWMutex // protects closed
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the SQLite database, applies the schema, and starts the
// writer and health-probe goroutines.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.CreateSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	m := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}
	m.available.Store(true)

	m.wg.Add(2)
	go m.writeLoop()
	go m.healthLoop()

	return m, nil
}

// writeLoop processes all write operations in a single goroutine, retrying
// each failed write exactly once after a short delay.
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			err := op.operation(m.db)
			if err != nil && !isConstraintViolation(err) {
				log.Printf("Database write failed, retrying in 5 seconds: %v", err)
				time.Sleep(5 * time.Second)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			return
		}
	}
}

// healthLoop refreshes the availability flag consulted by Available().
func (m *Manager) healthLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := m.HealthCheck(ctx)
			cancel()

			wasAvailable := m.available.Swap(err == nil)
			if err != nil && wasAvailable {
				log.Printf("Store became unavailable: %v", err)
			} else if err == nil && !wasAvailable {
				log.Printf("Store connection recovered")
			}

		case <-m.shutdown:
			return
		}
	}
}

// executeWrite queues a write and waits for completion with a bounded
// timeout so no request path can block indefinitely.
func (m *Manager) executeWrite(operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
		select {
		case err := <-result:
			return err
		case <-time.After(m.config.WriteTimeout):
			return fmt.Errorf("write operation timeout")
		}
	case <-time.After(m.config.WriteTimeout):
		return fmt.Errorf("write operation timeout")
	case <-m.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// isConstraintViolation reports whether an error is a SQLite uniqueness or
// primary-key violation. Those are caller bugs or deliberate duplicate
// checks, never worth a retry.
func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// CreatePoll persists a new poll. Options are serialized to JSON on the row.
func (m *Manager) CreatePoll(ctx context.Context, poll *types.Poll) error {
	return m.executeWrite(func(db *sql.DB) error {
		optionsJSON, err := json.Marshal(poll.Options)
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}

		query := `
			INSERT INTO polls (id, question, options, duration, started_at, status)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err = db.ExecContext(ctx, query,
			poll.ID,
			poll.Question,
			string(optionsJSON),
			poll.Duration,
			poll.StartedAt,
			poll.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to insert poll: %w", err)
		}
		return nil
	})
}

const pollColumns = "id, question, options, duration, started_at, status"

func scanPoll(row interface{ Scan(...interface{}) error }) (*types.Poll, error) {
	var poll types.Poll
	var optionsJSON string

	err := row.Scan(
		&poll.ID,
		&poll.Question,
		&optionsJSON,
		&poll.Duration,
		&poll.StartedAt,
		&poll.Status,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(optionsJSON), &poll.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	return &poll, nil
}

// FindActivePoll returns the single ACTIVE poll, or nil when none exists.
func (m *Manager) FindActivePoll(ctx context.Context) (*types.Poll, error) {
	query := `SELECT ` + pollColumns + ` FROM polls WHERE status = 'ACTIVE' LIMIT 1`

	poll, err := scanPoll(m.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active poll: %w", err)
	}
	return poll, nil
}

// FindPollByID retrieves a poll by id.
func (m *Manager) FindPollByID(ctx context.Context, id string) (*types.Poll, error) {
	query := `SELECT ` + pollColumns + ` FROM polls WHERE id = ?`

	poll, err := scanPoll(m.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrPollNotFound
		}
		return nil, fmt.Errorf("failed to query poll: %w", err)
	}
	return poll, nil
}

// UpdatePollStatus performs the conditional ACTIVE -> ENDED transition.
// The WHERE clause on the current status makes the transition atomic: a
// second caller sees zero affected rows and gets nil back, never a
// double-fired end.
func (m *Manager) UpdatePollStatus(ctx context.Context, id, status string) (*types.Poll, error) {
	var affected int64
	err := m.executeWrite(func(db *sql.DB) error {
		result, err := db.ExecContext(ctx,
			`UPDATE polls SET status = ? WHERE id = ? AND status = 'ACTIVE'`,
			status, id,
		)
		if err != nil {
			return fmt.Errorf("failed to update poll status: %w", err)
		}
		affected, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, nil
	}
	return m.FindPollByID(ctx, id)
}

// FindEndedPolls returns ended polls newest-first.
func (m *Manager) FindEndedPolls(ctx context.Context) ([]*types.Poll, error) {
	query := `SELECT ` + pollColumns + ` FROM polls WHERE status = 'ENDED' ORDER BY started_at DESC`

	rows, err := m.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query ended polls: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var polls []*types.Poll
	for rows.Next() {
		poll, err := scanPoll(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan poll row: %w", err)
		}
		polls = append(polls, poll)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating poll rows: %w", err)
	}
	return polls, nil
}

// CreateVote inserts a vote record. The (poll_id, session_id) primary key
// is the storage-level backstop against duplicate votes; violations are
// translated to ErrDuplicateVote so callers never see a raw driver error.
func (m *Manager) CreateVote(ctx context.Context, vote *types.Vote) error {
	err := m.executeWrite(func(db *sql.DB) error {
		query := `
			INSERT INTO votes (poll_id, session_id, student_name, option_id, created_at)
			VALUES (?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			vote.PollID,
			vote.SessionID,
			vote.StudentName,
			vote.OptionID,
			vote.CreatedAt,
		)
		return err
	})
	if err != nil {
		if isConstraintViolation(err) {
			return interfaces.ErrDuplicateVote
		}
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

// FindVotesByPoll returns all votes for a poll.
func (m *Manager) FindVotesByPoll(ctx context.Context, pollID string) ([]*types.Vote, error) {
	query := `
		SELECT poll_id, session_id, student_name, option_id, created_at
		FROM votes
		WHERE poll_id = ?
	`
	rows, err := m.db.QueryContext(ctx, query, pollID)
	if err != nil {
		return nil, fmt.Errorf("failed to query votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var votes []*types.Vote
	for rows.Next() {
		var vote types.Vote
		err := rows.Scan(
			&vote.PollID,
			&vote.SessionID,
			&vote.StudentName,
			&vote.OptionID,
			&vote.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vote row: %w", err)
		}
		votes = append(votes, &vote)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating vote rows: %w", err)
	}
	return votes, nil
}

// CountVotesByPoll returns the number of votes recorded for a poll.
func (m *Manager) CountVotesByPoll(ctx context.Context, pollID string) (int, error) {
	var count int
	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM votes WHERE poll_id = ?`, pollID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count votes: %w", err)
	}
	return count, nil
}

// FindVote returns the vote for a (poll, session) pair, or nil when the
// student has not voted.
func (m *Manager) FindVote(ctx context.Context, pollID, sessionID string) (*types.Vote, error) {
	query := `
		SELECT poll_id, session_id, student_name, option_id, created_at
		FROM votes
		WHERE poll_id = ? AND session_id = ?
	`
	var vote types.Vote
	err := m.db.QueryRowContext(ctx, query, pollID, sessionID).Scan(
		&vote.PollID,
		&vote.SessionID,
		&vote.StudentName,
		&vote.OptionID,
		&vote.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query vote: %w", err)
	}
	return &vote, nil
}

// Available reports the last probed health state.
func (m *Manager) Available() bool {
	return m.available.Load()
}

// HealthCheck validates connectivity and basic read access.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM polls").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close shuts down the writer and health goroutines and closes the pool.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.shutdown)
	m.wg.Wait()
	return m.db.Close()
}
