package database

import (
	"database/sql"
	"fmt"
)

// CreateSchema creates all tables needed by the store. Safe to call on
// every startup - uses IF NOT EXISTS throughout.
func CreateSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Options are stored as a JSON array on the poll row; they are immutable
// after creation so there is nothing to join against. The votes primary
// key is the race-safety backstop for duplicate submissions: two votes
// from the same student session can interleave past the in-process
// pre-check, but only one insert survives.
const schema = `
CREATE TABLE IF NOT EXISTS polls (
    id         TEXT PRIMARY KEY,
    question   TEXT NOT NULL,
    options    TEXT NOT NULL,
    duration   INTEGER NOT NULL,
    started_at TIMESTAMP NOT NULL,
    status     TEXT NOT NULL CHECK (status IN ('ACTIVE', 'ENDED'))
);

CREATE INDEX IF NOT EXISTS idx_polls_status ON polls(status);
CREATE INDEX IF NOT EXISTS idx_polls_started_at ON polls(started_at);

CREATE TABLE IF NOT EXISTS votes (
    poll_id      TEXT NOT NULL REFERENCES polls(id),
    session_id   TEXT NOT NULL,
    student_name TEXT NOT NULL,
    option_id    TEXT NOT NULL,
    created_at   TIMESTAMP NOT NULL,
    PRIMARY KEY (poll_id, session_id)
);

CREATE INDEX IF NOT EXISTS idx_votes_poll_id ON votes(poll_id);
`
