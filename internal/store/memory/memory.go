// Package memory is the in-process credential store used by tests and dev
// mode. It implements the same contract as the Postgres adapter.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/weddary/weddary/internal/credential"
	"github.com/weddary/weddary/internal/oauth/provider"
)

type key struct {
	eventID  int64
	provider provider.ID
}

// Store holds credentials and known events in maps.
type Store struct {
	mu     sync.RWMutex
	creds  map[key]*credential.TenantCredential
	events map[int64]struct{}
}

// New builds an empty Store.
func New() *Store {
	return &Store{
		creds:  make(map[key]*credential.TenantCredential),
		events: make(map[int64]struct{}),
	}
}

// AddEvent registers an event so EventExists answers true.
func (s *Store) AddEvent(eventID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[eventID] = struct{}{}
}

// EventExists implements credential.EventResolver.
func (s *Store) EventExists(_ context.Context, eventID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.events[eventID]
	return ok, nil
}

// Get implements credential.Store.
func (s *Store) Get(_ context.Context, eventID int64, p provider.ID) (*credential.TenantCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[key{eventID, p}]
	if !ok {
		return nil, credential.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// Merge implements credential.Store. The whole patch lands under one lock so
// readers never observe a half-applied token pair.
func (s *Store) Merge(_ context.Context, eventID int64, p provider.ID, patch credential.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{eventID, p}
	c, ok := s.creds[k]
	if !ok {
		c = &credential.TenantCredential{EventID: eventID, Provider: p}
		s.creds[k] = c
	}
	if patch.ClientID != nil {
		c.ClientID = *patch.ClientID
	}
	if patch.ClientSecret != nil {
		c.ClientSecret = *patch.ClientSecret
	}
	if patch.RedirectURI != nil {
		c.RedirectURI = *patch.RedirectURI
	}
	if patch.AccessToken != nil {
		c.AccessToken = *patch.AccessToken
	}
	if patch.RefreshToken != nil {
		c.RefreshToken = *patch.RefreshToken
	}
	if patch.TokenExpiry != nil {
		t := *patch.TokenExpiry
		c.TokenExpiry = &t
	}
	if patch.AccountEmail != nil {
		c.AccountEmail = *patch.AccountEmail
	}
	if patch.Enabled != nil {
		c.Enabled = *patch.Enabled
	}
	c.UpdatedAt = time.Now()
	return nil
}
