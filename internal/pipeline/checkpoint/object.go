package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"

	"lead_triage_backend/internal/adapters/storage"
)

// ObjectStore keeps documents as JSON objects in one bucket.
type ObjectStore struct {
	objects storage.ObjectStorage
	bucket  string
	prefix  string
}

// NewObjectStore creates a store writing under prefix in bucket.
func NewObjectStore(objects storage.ObjectStorage, bucket, prefix string) *ObjectStore {
	return &ObjectStore{objects: objects, bucket: bucket, prefix: prefix}
}

func (s *ObjectStore) key(key string) string {
	if s.prefix == "" {
		return key
	}
	return path.Join(s.prefix, key)
}

func (s *ObjectStore) Get(ctx context.Context, key string, dst any) error {
	raw, err := s.objects.GetObject(ctx, s.bucket, s.key(key))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func (s *ObjectStore) Put(ctx context.Context, key string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.objects.PutObject(ctx, s.bucket, s.key(key), "application/json", raw)
}
