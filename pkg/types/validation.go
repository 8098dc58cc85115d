package types

import (
	"fmt"
	"regexp"
	"strings"
)

// Poll creation bounds, applied when a create request enters the lifecycle.
const (
	MinPollOptions  = 2
	MinPollDuration = 5   // seconds
	MaxPollDuration = 300 // seconds
	MaxNameLength   = 50
	MaxQuestionLen  = 500
)

var sessionIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidateCreatePoll checks a poll creation request: a non-empty question,
// at least two non-empty options, and a duration inside [5, 300] seconds.
func ValidateCreatePoll(question string, options []string, duration int) error {
	if strings.TrimSpace(question) == "" {
		return Validation("Question is required")
	}
	if len(question) > MaxQuestionLen {
		return Validation(fmt.Sprintf("Question must be at most %d characters", MaxQuestionLen))
	}
	nonEmpty := 0
	for _, opt := range options {
		if strings.TrimSpace(opt) != "" {
			nonEmpty++
		}
	}
	if nonEmpty < MinPollOptions {
		return Validation(fmt.Sprintf("At least %d non-empty options are required", MinPollOptions))
	}
	if duration < MinPollDuration || duration > MaxPollDuration {
		return Validation(fmt.Sprintf("Duration must be between %d and %d seconds", MinPollDuration, MaxPollDuration))
	}
	return nil
}

// IsValidStudentName reports whether a display name is usable: non-blank
// after trimming and within the length bound.
func IsValidStudentName(name string) bool {
	trimmed := strings.TrimSpace(name)
	return trimmed != "" && len(trimmed) <= MaxNameLength
}

// IsValidSessionID reports whether a client-generated session token has an
// acceptable shape. The token is opaque; only length and charset matter.
func IsValidSessionID(id string) bool {
	if len(id) < 1 || len(id) > 100 {
		return false
	}
	return sessionIDRegex.MatchString(id)
}
