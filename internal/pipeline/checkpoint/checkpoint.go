// Package checkpoint persists pipeline documents and the single-writer lease.
// Documents are JSON values overwritten whole; there are no partial updates.
package checkpoint

import (
	"context"
	"errors"
	"time"
)

// Document keys.
const (
	KeyDashboard       = "dashboard-data.json"
	KeyLedger          = "sent-status.json"
	KeyStatus          = "pipeline-status.json"
	KeyOpportunities   = "pipeline-opportunities.json"
	KeyConversations   = "pipeline-conversations.json"
	KeyEnriched        = "pipeline-enriched.json"
	KeyRecommendations = "pipeline-recommendations.json"
	KeyCRMTokens       = "crm-tokens.json"

	// LeaseName guards every pipeline step.
	LeaseName = "pipeline-lock"
)

var (
	// ErrNotFound is returned by Get for a key that was never written.
	ErrNotFound = errors.New("checkpoint: document not found")
	// ErrLeaseHeld is returned by Acquire while another owner holds the lease.
	ErrLeaseHeld = errors.New("checkpoint: lease held by another owner")
	// ErrLeaseLost is returned by Extend once the lease expired or changed hands.
	ErrLeaseLost = errors.New("checkpoint: lease no longer held")
)

// Store reads and overwrites JSON documents.
type Store interface {
	// Get decodes the document at key into dst, or returns ErrNotFound.
	Get(ctx context.Context, key string, dst any) error
	// Put encodes doc and overwrites key.
	Put(ctx context.Context, key string, doc any) error
}

// Lease is a held lock. Owner is a random token; only the owner can release.
type Lease struct {
	Name      string
	Owner     string
	ExpiresAt time.Time
}

// Locker grants TTL-bound exclusive leases.
type Locker interface {
	// Acquire takes name for ttl, or returns ErrLeaseHeld.
	Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error)
	// Extend pushes the expiry of a still-held lease to now+ttl, or returns
	// ErrLeaseLost.
	Extend(ctx context.Context, lease Lease, ttl time.Duration) (Lease, error)
	// Release frees the lease if it is still held by lease.Owner.
	Release(ctx context.Context, lease Lease) error
}
