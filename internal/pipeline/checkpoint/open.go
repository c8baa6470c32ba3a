package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"lead_triage_backend/internal/adapters/storage"
	"lead_triage_backend/platform/config"
	"lead_triage_backend/platform/db"
	"lead_triage_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

// Backend is an opened store and its matching locker.
type Backend struct {
	Store   Store
	Locker  Locker
	closers []func()
	pingers []func(ctx context.Context) error
}

// Ping checks every connection the backend holds. The memory backend has
// nothing to check.
func (b *Backend) Ping(ctx context.Context) error {
	for _, ping := range b.pingers {
		if err := ping(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the backend's connections.
func (b *Backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

// Open builds the backend selected by DOCUMENT_STORE. Object storage has no
// atomic compare-and-set, so it takes its lease from Redis when REDIS_URL is
// set and from process memory otherwise.
func Open(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (*Backend, error) {
	prefix := cfg.GetDocumentKeyPrefix()
	b := &Backend{}

	switch cfg.GetDocumentStore() {
	case "", "memory":
		b.Store = NewMemoryStore()
		b.Locker = NewMemoryLocker()

	case "redis":
		client, err := newRedisClient(cfg.GetRedisURL())
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() { _ = client.Close() })
		b.pingers = append(b.pingers, func(ctx context.Context) error { return client.Ping(ctx).Err() })
		b.Store = NewRedisStore(client, prefix)
		b.Locker = NewRedisLocker(client, prefix)

	case "postgres":
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, pool.Close)
		b.pingers = append(b.pingers, pool.Ping)
		if err := db.RunMigrations(ctx, pool); err != nil {
			b.Close()
			return nil, err
		}
		b.Store = NewPostgresStore(pool, prefix)
		b.Locker = NewPostgresLocker(pool)

	case "minio":
		objects, err := storage.NewMinIOService(cfg)
		if err != nil {
			return nil, err
		}
		bucket := cfg.GetMinioBucketPipeline()
		if err := objects.EnsureBucketExists(ctx, bucket); err != nil {
			return nil, err
		}
		b.pingers = append(b.pingers, func(ctx context.Context) error { return objects.EnsureBucketExists(ctx, bucket) })
		b.Store = NewObjectStore(objects, bucket, prefix)
		if url := cfg.GetRedisURL(); url != "" {
			client, err := newRedisClient(url)
			if err != nil {
				return nil, err
			}
			b.closers = append(b.closers, func() { _ = client.Close() })
			b.pingers = append(b.pingers, func(ctx context.Context) error { return client.Ping(ctx).Err() })
			b.Locker = NewRedisLocker(client, prefix)
		} else {
			log.Warn("checkpoint: object store without REDIS_URL, lease is process-local")
			b.Locker = NewMemoryLocker()
		}

	default:
		return nil, fmt.Errorf("unknown document store %q", cfg.GetDocumentStore())
	}

	b.Store = NewLoggingStore(b.Store, log)
	log.Info("checkpoint: document store ready", "backend", cfg.GetDocumentStore(), "prefix", prefix)
	return b, nil
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opt), nil
}

// LoggingStore logs failed reads and writes. ErrNotFound is not a failure.
type LoggingStore struct {
	next Store
	log  *logger.Logger
}

// NewLoggingStore wraps next.
func NewLoggingStore(next Store, log *logger.Logger) *LoggingStore {
	return &LoggingStore{next: next, log: log}
}

func (s *LoggingStore) Get(ctx context.Context, key string, dst any) error {
	err := s.next.Get(ctx, key, dst)
	if err != nil && !errors.Is(err, ErrNotFound) {
		s.log.StoreError("get", key, err)
	}
	return err
}

func (s *LoggingStore) Put(ctx context.Context, key string, doc any) error {
	err := s.next.Put(ctx, key, doc)
	if err != nil {
		s.log.StoreError("put", key, err)
	}
	return err
}
