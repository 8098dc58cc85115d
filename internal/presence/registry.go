// Package presence tracks currently-connected student identities in process
// memory. The registry vanishes on restart; only durable poll and vote state
// is recovered.
package presence

import (
	"strings"
	"sync"
)

// Student is an ephemeral connected-student record keyed by connection
// handle. It is removed on disconnect or replaced on re-join under a new
// handle.
type Student struct {
	Handle    string
	SessionID string
	Name      string
}

// Registry is the connected-student table. Registry size is bounded by
// concurrent classroom size, so every operation is a plain O(n) or O(1)
// in-memory pass.
type Registry struct {
	mu       sync.RWMutex
	students map[string]*Student // connection handle -> student
}

// NewRegistry creates an empty presence registry.
func NewRegistry() *Registry {
	return &Registry{
		students: make(map[string]*Student),
	}
}

// AddStudent registers a student under a connection handle, replacing any
// identity previously held by that handle.
func (r *Registry) AddStudent(handle, sessionID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.students[handle] = &Student{
		Handle:    handle,
		SessionID: sessionID,
		Name:      name,
	}
}

// RemoveStudent drops the student registered under a handle and returns the
// removed record. Removing an unknown handle is a no-op.
func (r *Registry) RemoveStudent(handle string) (*Student, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	student, exists := r.students[handle]
	if exists {
		delete(r.students, handle)
	}
	return student, exists
}

// Get returns the student registered under a handle.
func (r *Registry) Get(handle string) (*Student, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	student, exists := r.students[handle]
	return student, exists
}

// IsNameTaken reports whether a display name is already held by a connected
// student on a different connection. Comparison is case-insensitive. The
// excluded handle lets a student re-join on the same connection without
// colliding with themselves.
func (r *Registry) IsNameTaken(name, excludeHandle string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for handle, student := range r.students {
		if handle == excludeHandle {
			continue
		}
		if strings.EqualFold(student.Name, name) {
			return true
		}
	}
	return false
}

// Count returns the number of currently-connected students.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.students)
}

// SessionIDs returns the set of connected student session ids.
func (r *Registry) SessionIDs() map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make(map[string]struct{}, len(r.students))
	for _, student := range r.students {
		ids[student.SessionID] = struct{}{}
	}
	return ids
}

// Handles returns the connection handles of all connected students.
func (r *Registry) Handles() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handles := make([]string, 0, len(r.students))
	for handle := range r.students {
		handles = append(handles, handle)
	}
	return handles
}
