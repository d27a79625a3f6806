package storage

import (
	"context"
	"errors"
	"time"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
)

var (
	// ErrItemNotFound is returned when a queue item doesn't exist
	ErrItemNotFound = errors.New("queue item not found")

	// ErrDuplicateActive is returned when an insert would violate the
	// one-active-item-per-(user, wallet, type) invariant
	ErrDuplicateActive = errors.New("active queue item already exists")
)

// QueueRepository handles durable queue item storage.
//
// The Claim and CancelIfPending transitions are conditional updates at the
// storage layer so two concurrent workers never both claim the same item.
type QueueRepository interface {
	// Create persists a new item
	Create(ctx context.Context, item *domain.QueueItem) error

	// GetByID retrieves an item by id
	GetByID(ctx context.Context, id string) (*domain.QueueItem, error)

	// FindActive finds the Pending or Processing item for the dedup triple,
	// or nil when none exists
	FindActive(ctx context.Context, userID, walletAddress string, mintType domain.MintType) (*domain.QueueItem, error)

	// ListByUser retrieves all items for a user, newest first
	ListByUser(ctx context.Context, userID string) ([]*domain.QueueItem, error)

	// ListByWallet retrieves all items for a wallet address, newest first
	ListByWallet(ctx context.Context, walletAddress string) ([]*domain.QueueItem, error)

	// PickEligible selects up to limit Pending items whose process_after has
	// elapsed, ordered by (priority ASC, created_at ASC)
	PickEligible(ctx context.Context, limit int, now time.Time) ([]*domain.QueueItem, error)

	// Claim transitions Pending -> Processing atomically; false when the
	// item was not Pending anymore
	Claim(ctx context.Context, id string, now time.Time) (bool, error)

	// MarkCompleted transitions Processing -> Completed
	MarkCompleted(ctx context.Context, id, txHash string, now time.Time) error

	// MarkFailed transitions Processing -> Failed
	MarkFailed(ctx context.Context, id, errorMsg string, now time.Time) error

	// Requeue transitions Processing -> Pending with updated retry count and
	// backoff deadline
	Requeue(ctx context.Context, id string, retryCount int, processAfter time.Time) error

	// CancelIfPending transitions Pending -> Cancelled atomically; false
	// when the item was not Pending
	CancelIfPending(ctx context.Context, id string, now time.Time) (bool, error)

	// ReleaseStale returns Processing items started before cutoff back to
	// Pending without consuming retry budget, and reports how many
	ReleaseStale(ctx context.Context, cutoff time.Time) (int, error)

	// CountByStatus returns item counts per status
	CountByStatus(ctx context.Context) (map[domain.QueueStatus]int, error)
}
