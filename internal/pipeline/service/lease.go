package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"lead_triage_backend/internal/pipeline/checkpoint"
	"lead_triage_backend/platform/apperr"
	"lead_triage_backend/platform/logger"
)

// leaseKeeper renews the pipeline lease while a step runs and confirms it
// is still held before every checkpoint write.
type leaseKeeper struct {
	locker checkpoint.Locker
	ttl    time.Duration
	log    *logger.Logger

	mu    sync.Mutex
	lease checkpoint.Lease
}

func newLeaseKeeper(locker checkpoint.Locker, lease checkpoint.Lease, ttl time.Duration, log *logger.Logger) *leaseKeeper {
	return &leaseKeeper{locker: locker, lease: lease, ttl: ttl, log: log}
}

// current is the latest renewal of the lease.
func (k *leaseKeeper) current() checkpoint.Lease {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lease
}

// confirm extends the lease by a full TTL. A lost lease is a Conflict.
func (k *leaseKeeper) confirm(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	lease, err := k.locker.Extend(ctx, k.lease, k.ttl)
	if err != nil {
		if errors.Is(err, checkpoint.ErrLeaseLost) {
			return apperr.Wrap(apperr.KindConflict, "pipeline lease lost", err).WithOp("pipeline.lease")
		}
		return apperr.Unavailable("lease renewal failed", err).WithOp("pipeline.lease")
	}
	k.lease = lease
	return nil
}

// hold renews the lease every third of its TTL until ctx ends. Losing the
// lease cancels the step through cancel.
func (k *leaseKeeper) hold(ctx context.Context, cancel context.CancelCauseFunc) {
	ticker := time.NewTicker(max(k.ttl/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := k.confirm(ctx)
			if err == nil {
				continue
			}
			if apperr.Is(err, apperr.KindConflict) {
				k.log.Warn("pipeline: lease lost mid-step", "error", err)
				cancel(err)
				return
			}
			k.log.Warn("pipeline: lease renewal failed, retrying", "error", err)
		}
	}
}

// fencedStore refuses writes once the lease is gone.
type fencedStore struct {
	checkpoint.Store
	keeper *leaseKeeper
}

func (s fencedStore) Put(ctx context.Context, key string, doc any) error {
	if err := s.keeper.confirm(ctx); err != nil {
		return err
	}
	return s.Store.Put(ctx, key, doc)
}
