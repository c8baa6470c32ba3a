package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps documents in the pipeline_documents table.
type PostgresStore struct {
	pool   *pgxpool.Pool
	prefix string
}

// NewPostgresStore creates a store over pool.
func NewPostgresStore(pool *pgxpool.Pool, prefix string) *PostgresStore {
	return &PostgresStore{pool: pool, prefix: prefix}
}

func (s *PostgresStore) Get(ctx context.Context, key string, dst any) error {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT body FROM pipeline_documents WHERE key = $1`, s.prefix+key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO pipeline_documents (key, body, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		s.prefix+key, raw)
	if err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// PostgresLocker keeps leases in pipeline_leases. An expired row is taken over
// in the same statement that would insert a fresh one.
type PostgresLocker struct {
	pool *pgxpool.Pool
}

// NewPostgresLocker creates a locker over pool.
func NewPostgresLocker(pool *pgxpool.Pool) *PostgresLocker {
	return &PostgresLocker{pool: pool}
}

func (l *PostgresLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (Lease, error) {
	owner := uuid.NewString()
	var expiresAt time.Time
	err := l.pool.QueryRow(ctx, `
		INSERT INTO pipeline_leases (name, owner, expires_at)
		VALUES ($1, $2, now() + $3::interval)
		ON CONFLICT (name) DO UPDATE SET owner = EXCLUDED.owner, expires_at = EXCLUDED.expires_at
		WHERE pipeline_leases.expires_at <= now()
		RETURNING expires_at`,
		name, owner, fmt.Sprintf("%d milliseconds", ttl.Milliseconds())).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lease{}, ErrLeaseHeld
	}
	if err != nil {
		return Lease{}, fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return Lease{Name: name, Owner: owner, ExpiresAt: expiresAt}, nil
}

func (l *PostgresLocker) Extend(ctx context.Context, lease Lease, ttl time.Duration) (Lease, error) {
	var expiresAt time.Time
	err := l.pool.QueryRow(ctx, `
		UPDATE pipeline_leases SET expires_at = now() + $3::interval
		WHERE name = $1 AND owner = $2 AND expires_at > now()
		RETURNING expires_at`,
		lease.Name, lease.Owner, fmt.Sprintf("%d milliseconds", ttl.Milliseconds())).Scan(&expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lease{}, ErrLeaseLost
	}
	if err != nil {
		return Lease{}, fmt.Errorf("extend lease %s: %w", lease.Name, err)
	}
	lease.ExpiresAt = expiresAt
	return lease, nil
}

func (l *PostgresLocker) Release(ctx context.Context, lease Lease) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM pipeline_leases WHERE name = $1 AND owner = $2`, lease.Name, lease.Owner)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", lease.Name, err)
	}
	return nil
}
