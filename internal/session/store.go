// Package session holds the process-wide authentication state: the current
// access credential, whether the initial session resolution is still in
// flight, and the cached profile of the signed-in user.
//
// The Store is the single source of truth. Components that only read the
// session depend on Reader; the refresher and the login/logout actions are
// handed a Writer.
package session

import (
	"sync"

	"github.com/stockpile-dev/stockpile/internal/models"
)

// Snapshot is a point-in-time copy of the session state. User is shared
// between snapshots and must be treated as read-only.
type Snapshot struct {
	AccessToken string
	IsLoading   bool
	User        *models.User

	// Version increases by one on every mutation of the store
	Version uint64
}

// Authenticated reports whether the session has resolved to a held credential
func (s Snapshot) Authenticated() bool {
	return !s.IsLoading && s.AccessToken != ""
}

// Reader is the read side of the store
type Reader interface {
	Snapshot() Snapshot
	Token() string
	Subscribe(fn func(Snapshot)) (unsubscribe func())
}

// Writer is handed only to the components allowed to mutate the session
type Writer interface {
	Reader
	Set(token string)
	SetUser(token string, user *models.User) bool
	Clear()
	ClearIfCurrent(token string) bool
	FinishLoading()
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Store is the in-memory Token Store. Reads are non-blocking snapshot reads;
// every mutation is visible to readers before the mutating call returns and
// observers are notified synchronously, in commit order.
//
// Observers must not write to the store from inside their callback.
type Store struct {
	// notifyMu serializes mutate+notify so observers see commits in order
	notifyMu sync.Mutex

	mu     sync.RWMutex
	snap   Snapshot
	subs   []subscriber
	nextID int
}

// New returns a store in its bootstrap state: loading, no credential
func New() *Store {
	return &Store{
		snap: Snapshot{IsLoading: true},
	}
}

// Snapshot returns the current session state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Token returns the current access credential, or "" when absent
func (s *Store) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.AccessToken
}

// Subscribe registers fn to be called after every mutation. The returned
// function removes the registration.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Set replaces the access credential. The cached user survives a rotation
// of an existing credential; it is dropped when a session starts from none.
// An empty token is equivalent to Clear.
func (s *Store) Set(token string) {
	if token == "" {
		s.Clear()
		return
	}

	s.mutate(func(snap *Snapshot) bool {
		if snap.AccessToken == token {
			return false
		}
		if snap.AccessToken == "" {
			snap.User = nil
		}
		snap.AccessToken = token
		return true
	})
}

// SetUser caches the profile fetched with token. It is a no-op returning
// false when token is no longer the current credential.
func (s *Store) SetUser(token string, user *models.User) bool {
	return s.mutate(func(snap *Snapshot) bool {
		if token == "" || snap.AccessToken != token {
			return false
		}
		snap.User = user
		return true
	})
}

// Clear removes the credential and the cached user
func (s *Store) Clear() {
	s.mutate(func(snap *Snapshot) bool {
		if snap.AccessToken == "" && snap.User == nil {
			return false
		}
		snap.AccessToken = ""
		snap.User = nil
		return true
	})
}

// ClearIfCurrent clears the session only if token is still the current
// credential, so a stale rejection cannot stomp a newer credential.
// It reports whether the session was cleared.
func (s *Store) ClearIfCurrent(token string) bool {
	return s.mutate(func(snap *Snapshot) bool {
		if token == "" || snap.AccessToken != token {
			return false
		}
		snap.AccessToken = ""
		snap.User = nil
		return true
	})
}

// FinishLoading ends the bootstrap window. It takes effect once; the store
// never returns to the loading state.
func (s *Store) FinishLoading() {
	s.mutate(func(snap *Snapshot) bool {
		if !snap.IsLoading {
			return false
		}
		snap.IsLoading = false
		return true
	})
}

// mutate applies fn under the write lock and, if fn reports a change,
// bumps the version and notifies observers with the new snapshot
func (s *Store) mutate(fn func(*Snapshot) bool) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if !fn(&s.snap) {
		s.mu.Unlock()
		return false
	}
	s.snap.Version++
	snap := s.snap
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
	return true
}
