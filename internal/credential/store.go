// Package credential holds the workspace token captured from observed
// Slack traffic. The store is owned by the page context: it is created
// when the context starts and cleared on teardown, and it is never
// written to durable storage.
package credential

import (
	"sync"
	"time"
)

// Credential is a bearer token for the Slack private API together with
// the time it was observed. Last write wins.
type Credential struct {
	Token      string
	CapturedAt time.Time
}

// Store is the single live credential for a browser tab session. The
// interception layer is the sole writer; readers must tolerate "no
// credential yet" by aborting their operation, never by blocking.
type Store struct {
	mu   sync.RWMutex
	cred *Credential
}

// NewStore creates an empty credential store.
func NewStore() *Store {
	return &Store{}
}

// Set overwrites any prior credential.
func (s *Store) Set(token string, capturedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = &Credential{Token: token, CapturedAt: capturedAt}
}

// Get returns the current credential. ok is false when no credential
// has been captured yet.
func (s *Store) Get() (cred Credential, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return Credential{}, false
	}
	return *s.cred, true
}

// Clear drops the credential. Called on context teardown.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
}
