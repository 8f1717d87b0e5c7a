// Package session implements the server-side mapping from an
// UploadIdentifier to its pending transfer. The store is concurrent-safe;
// entries are created by the pre-request handler (C2) and removed
// atomically with get-then-delete by the upload handler (C3) on
// completion or session loss.
package session

import (
	"sync"
	"time"

	"github.com/sensorvault/upload-gateway/internal/authn"
	"github.com/sensorvault/upload-gateway/internal/uploadable"
	"github.com/sensorvault/upload-gateway/internal/uploadid"
)

// Entry is the server-side record bound to one UploadIdentifier: the
// immutable Uploadable metadata from pre-request, the authenticated
// principal that created it, and a per-session mutex serializing chunk
// appends to the same temporary file.
type Entry struct {
	Uploadable uploadable.Uploadable
	User       authn.User
	CreatedAt  time.Time

	// appendMu serializes chunk appends within this session, per the
	// concurrency model's per-session mutual exclusion requirement.
	appendMu sync.Mutex
}

// Lock acquires the per-session append lock. Callers must Unlock before
// returning, including on error paths.
func (e *Entry) Lock() {
	e.appendMu.Lock()
}

// Unlock releases the per-session append lock.
func (e *Entry) Unlock() {
	e.appendMu.Unlock()
}

// Store is a concurrent-safe map of UploadIdentifier to Entry. At most one
// active session exists per UploadIdentifier (global invariant 3).
type Store struct {
	mu       sync.RWMutex
	sessions map[uploadid.UploadIdentifier]*Entry
}

// New returns an empty Store.
func New() *Store {
	return &Store{sessions: make(map[uploadid.UploadIdentifier]*Entry)}
}

// Create allocates a new session for id. It is an error to call Create
// twice for the same id without an intervening Delete; callers (C2) only
// ever pass freshly generated identifiers, so this should never collide.
func (s *Store) Create(id uploadid.UploadIdentifier, u uploadable.Uploadable, user authn.User, now time.Time) *Entry {
	entry := &Entry{Uploadable: u, User: user, CreatedAt: now}

	s.mu.Lock()
	s.sessions[id] = entry
	s.mu.Unlock()

	return entry
}

// Get returns the session for id, or (nil, false) if absent. A nil,false
// result means the session is "absent" per invariant 3 — its chunk file,
// if any, is subject to reaping.
func (s *Store) Get(id uploadid.UploadIdentifier) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.sessions[id]

	return entry, ok
}

// Delete removes and returns the session for id atomically (get-then-delete
// under one lock acquisition), so a concurrent Get from another goroutine
// can never observe a session that is mid-removal.
func (s *Store) Delete(id uploadid.UploadIdentifier) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}

	return entry, ok
}

// Len reports the number of active sessions. Used by diagnostics/metrics,
// never by protocol logic.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions)
}
