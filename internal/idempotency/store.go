// Package idempotency implements the idempotency store: deduplication of
// mutating requests carrying a client-supplied key, per spec.md §4.9.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/eventbooking-core/internal/apperr"
	"github.com/iliyamo/eventbooking-core/internal/repository"
)

type Store struct {
	repo *repository.IdempotencyRepo
	ttl  time.Duration
}

func New(repo *repository.IdempotencyRepo, ttl time.Duration) *Store {
	return &Store{repo: repo, ttl: ttl}
}

// Outcome is returned by Begin to tell the caller whether to proceed, replay
// a stored response, or report a conflicting in-flight request.
type Outcome struct {
	Proceed  bool
	Snapshot []byte
}

// Begin attempts to claim a key for a new operation. If the key already
// exists and is in_flight, it returns ErrInFlight. If completed, it returns
// the stored response snapshot for the caller to replay verbatim.
func (s *Store) Begin(ctx context.Context, key, operationType string, userID uint64) (Outcome, error) {
	err := s.repo.CreateInFlight(ctx, key, operationType, userID, time.Now().UTC().Add(s.ttl))
	if err == nil {
		return Outcome{Proceed: true}, nil
	}
	if !errors.Is(err, repository.ErrIdempotencyKeyExists) {
		return Outcome{}, apperr.Wrap(apperr.Internal, "claim idempotency key", err)
	}

	existing, getErr := s.repo.GetByKey(ctx, key)
	if getErr != nil {
		return Outcome{}, apperr.Wrap(apperr.Internal, "load idempotency key", getErr)
	}
	switch existing.Status {
	case "completed":
		return Outcome{Proceed: false, Snapshot: existing.ResponseSnapshot}, nil
	case "failed":
		// A prior attempt failed outright; allow a clean retry under the same key.
		return Outcome{Proceed: true}, nil
	default: // in_flight
		return Outcome{}, apperr.ErrInFlight
	}
}

// Complete stores the final response body and marks the key completed so
// replays can be answered without redoing the underlying operation.
func (s *Store) Complete(ctx context.Context, key, resourceID string, snapshot []byte) error {
	if err := s.repo.CompleteWithSnapshot(ctx, key, resourceID, snapshot); err != nil {
		return apperr.Wrap(apperr.Internal, "complete idempotency key", err)
	}
	return nil
}

// Fail marks the key failed, allowing a subsequent Begin with the same key
// to proceed rather than being stuck in_flight until expiry.
func (s *Store) Fail(ctx context.Context, key string) error {
	if err := s.repo.MarkFailed(ctx, key); err != nil {
		return apperr.Wrap(apperr.Internal, "mark idempotency key failed", err)
	}
	return nil
}
