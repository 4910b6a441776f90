package out

import (
	"context"
	"errors"

	"booking_server/core/domain"

	"github.com/google/uuid"
)

// ErrLockBusy is returned by SyncLocker when the lock could not be taken before ctx ended.
var ErrLockBusy = errors.New("sync lock busy")

// SyncLocker serializes sync passes and disconnects per business across processes.
// Acquire blocks until the lock is held or ctx is done; release is safe to call once.
type SyncLocker interface {
	Acquire(ctx context.Context, businessID uuid.UUID) (release func(), err error)
}

// EventBatchCache keeps the last fetched batch of a business for resuming a suspended pass.
type EventBatchCache interface {
	// LoadBatch returns (nil, nil) on a miss.
	LoadBatch(ctx context.Context, businessID uuid.UUID) (*domain.FetchedBatch, error)
	StoreBatch(ctx context.Context, batch *domain.FetchedBatch) error
	PurgeBatch(ctx context.Context, businessID uuid.UUID) error
}
