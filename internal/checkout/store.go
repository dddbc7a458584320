package checkout

import (
	"context"
	"errors"
	"sync"
)

var ErrAlreadyClaimed = errors.New("checkout session already claimed")

// EventStore records processed webhook event ids.
type EventStore interface {
	// Begin records id and reports whether this is its first delivery.
	Begin(ctx context.Context, id, eventType string) (bool, error)
	// Forget drops id so a later redelivery is processed again.
	Forget(ctx context.Context, id string) error
}

// ClaimStore binds completed checkout sessions to accounts.
type ClaimStore interface {
	// Claim binds sessionID to userID. It reports false when userID already
	// holds the claim and fails with ErrAlreadyClaimed for any other user.
	Claim(ctx context.Context, sessionID, userID, customerID string) (bool, error)
}

// MemoryStore implements EventStore and ClaimStore in process.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]string
	claims map[string]string
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: map[string]string{}, claims: map[string]string{}}
}

func (m *MemoryStore) Begin(ctx context.Context, id, eventType string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; ok {
		return false, nil
	}
	m.events[id] = eventType
	return true, nil
}

func (m *MemoryStore) Forget(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.events, id)
	return nil
}

func (m *MemoryStore) Claim(ctx context.Context, sessionID, userID, customerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.claims[sessionID]; ok {
		if owner == userID {
			return false, nil
		}
		return false, ErrAlreadyClaimed
	}
	m.claims[sessionID] = userID
	return true, nil
}

var (
	_ EventStore = (*MemoryStore)(nil)
	_ ClaimStore = (*MemoryStore)(nil)
)
