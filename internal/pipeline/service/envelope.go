package service

import (
	"context"
	"errors"

	"lead_triage_backend/internal/pipeline/checkpoint"
	"lead_triage_backend/platform/apperr"
)

// Envelope tags an intermediate checkpoint with the run that wrote it.
type Envelope[T any] struct {
	RunID string `json:"runId"`
	Data  T      `json:"data"`
}

const (
	msgNoOpportunities = "No opportunity data found"
	msgNoConversations = "No conversation data found"
	msgNoEnriched      = "No enriched lead data found"
	msgStaleRun        = "stale run"
)

// getRunDoc reads key and rejects documents written by another run.
// A missing document is reported as NotFound with missingMsg.
func getRunDoc[T any](ctx context.Context, store checkpoint.Store, key, runID, missingMsg string) (T, error) {
	var env Envelope[T]
	if err := store.Get(ctx, key, &env); err != nil {
		var zero T
		if errors.Is(err, checkpoint.ErrNotFound) {
			return zero, apperr.NotFound(missingMsg).WithOp("checkpoint.Get")
		}
		return zero, apperr.Unavailable("checkpoint read failed", err).WithOp("checkpoint.Get")
	}
	if env.RunID != runID {
		var zero T
		return zero, apperr.Conflict(msgStaleRun).
			WithOp("checkpoint.Get").
			WithDetails(map[string]string{"key": key, "runId": env.RunID, "expected": runID})
	}
	return env.Data, nil
}

// getPartial is getRunDoc for documents that may legitimately be absent.
func getPartial[T any](ctx context.Context, store checkpoint.Store, key, runID string) (T, bool, error) {
	v, err := getRunDoc[T](ctx, store, key, runID, key)
	if apperr.Is(err, apperr.KindNotFound) {
		return v, false, nil
	}
	return v, err == nil, err
}

func putRunDoc[T any](ctx context.Context, store checkpoint.Store, key, runID string, data T) error {
	if err := store.Put(ctx, key, Envelope[T]{RunID: runID, Data: data}); err != nil {
		return writeErr(err, "checkpoint write failed", "checkpoint.Put")
	}
	return nil
}
