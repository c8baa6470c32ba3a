package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. Documents are stored
// encoded so callers never share mutable state with the store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string, dst any) error {
	s.mu.RLock()
	raw, ok := s.docs[key]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *MemoryStore) Put(_ context.Context, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	s.docs[key] = raw
	s.mu.Unlock()
	return nil
}

// MemoryLocker grants leases within one process.
type MemoryLocker struct {
	mu     sync.Mutex
	leases map[string]Lease
	now    func() time.Time
}

// NewMemoryLocker creates a locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{leases: make(map[string]Lease), now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, name string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.leases[name]; ok && now.Before(held.ExpiresAt) {
		return Lease{}, ErrLeaseHeld
	}
	lease := Lease{Name: name, Owner: uuid.NewString(), ExpiresAt: now.Add(ttl)}
	l.leases[name] = lease
	return lease, nil
}

func (l *MemoryLocker) Extend(_ context.Context, lease Lease, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	held, ok := l.leases[lease.Name]
	if !ok || held.Owner != lease.Owner || !now.Before(held.ExpiresAt) {
		return Lease{}, ErrLeaseLost
	}
	held.ExpiresAt = now.Add(ttl)
	l.leases[lease.Name] = held
	return held, nil
}

func (l *MemoryLocker) Release(_ context.Context, lease Lease) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.leases[lease.Name]; ok && held.Owner == lease.Owner {
		delete(l.leases, lease.Name)
	}
	return nil
}
