package queue

import "sync"

// PendingRetry identifies the audio an owner may resubmit after a busy
// rejection.
type PendingRetry struct {
	JobID      string
	SourcePath string
}

// PendingRetryStore keeps at most one pending retry per owner. A newer
// busy job supersedes an unused older one.
type PendingRetryStore struct {
	mu      sync.Mutex
	entries map[int64]PendingRetry
}

func NewPendingRetryStore() *PendingRetryStore {
	return &PendingRetryStore{entries: make(map[int64]PendingRetry)}
}

func (s *PendingRetryStore) Set(ownerID int64, entry PendingRetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[ownerID] = entry
}

// Take consumes and removes the owner's pending entry. The second call
// for the same owner reports nothing pending, which makes the retry
// action idempotent.
func (s *PendingRetryStore) Take(ownerID int64) (PendingRetry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[ownerID]
	if ok {
		delete(s.entries, ownerID)
	}
	return entry, ok
}

// Drop removes the owner's entry without consuming it, used when the
// underlying audio file is gone.
func (s *PendingRetryStore) Drop(ownerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, ownerID)
}
