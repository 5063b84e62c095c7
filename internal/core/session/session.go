// Package session holds per-user conversational state and the gate every
// inbound action must pass.
package session

import "sync"

// Mode is the user's current conversational mode.
type Mode string

const (
	ModeNotes              Mode = "notes"
	ModeChat               Mode = "chat"
	ModeSearch             Mode = "search"
	ModeSubscriptionChoice Mode = "subscription_choice"
	ModeWaitForPayment     Mode = "wait_for_payment"
	ModeWaitForJSON        Mode = "wait_for_json"
)

// State is ephemeral per-user session data. ThreadID refers to an open
// chat thread; PendingInvoice and PendingDiscount belong to the
// subscription flow.
type State struct {
	Mode            Mode
	ThreadID        string
	PendingInvoice  string
	PendingDiscount bool
}

// Store keeps session state per user. Created lazily on first
// interaction; callers mutate via Update so access stays serialized.
type Store struct {
	mu       sync.Mutex
	sessions map[int64]*State
}

func NewStore() *Store {
	return &Store{sessions: make(map[int64]*State)}
}

// Get returns a snapshot of the user's session, creating the default
// notes-mode session on first use.
func (s *Store) Get(userID int64) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.get(userID)
}

// Update applies fn to the user's session under the store lock.
func (s *Store) Update(userID int64, fn func(*State)) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.get(userID)
	fn(st)
	return *st
}

// Reset drops the user's session entirely; the next interaction starts
// fresh in notes mode.
func (s *Store) Reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
}

func (s *Store) get(userID int64) *State {
	st, ok := s.sessions[userID]
	if !ok {
		st = &State{Mode: ModeNotes}
		s.sessions[userID] = st
	}
	return st
}
