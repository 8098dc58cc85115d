package database

import "time"

// Config holds SQLite connection settings for the store manager.
type Config struct {
	DatabasePath    string
	MaxConnections  int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// WriteTimeout bounds how long a caller waits for the single-writer
	// loop to take and finish an operation.
	WriteTimeout time.Duration

	// HealthInterval is how often the background health probe runs to
	// refresh the availability flag.
	HealthInterval time.Duration
}

// DefaultConfig returns settings suitable for a single classroom process.
func DefaultConfig(path string) *Config {
	return &Config{
		DatabasePath:    path,
		MaxConnections:  10,
		ConnMaxLifetime: 30 * time.Second,
		ConnMaxIdleTime: 10 * time.Second,
		WriteTimeout:    10 * time.Second,
		HealthInterval:  15 * time.Second,
	}
}
