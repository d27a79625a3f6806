package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/storage"
)

// QueueRepo is an in-memory implementation of storage.QueueRepository,
// used when no database is configured and by tests.
type QueueRepo struct {
	mu    sync.RWMutex
	items map[string]*domain.QueueItem
}

func NewQueueRepo() *QueueRepo {
	return &QueueRepo{items: make(map[string]*domain.QueueItem)}
}

func (r *QueueRepo) Create(ctx context.Context, item *domain.QueueItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.items {
		if existing.UserID == item.UserID &&
			existing.WalletAddress == item.WalletAddress &&
			existing.Type == item.Type &&
			(existing.Status == domain.StatusPending || existing.Status == domain.StatusProcessing) {
			return storage.ErrDuplicateActive
		}
	}

	cp := *item
	r.items[item.ID] = &cp
	return nil
}

func (r *QueueRepo) GetByID(ctx context.Context, id string) (*domain.QueueItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return nil, storage.ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

func (r *QueueRepo) FindActive(
	ctx context.Context,
	userID, walletAddress string,
	mintType domain.MintType,
) (*domain.QueueItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, item := range r.items {
		if item.UserID == userID && item.WalletAddress == walletAddress && item.Type == mintType &&
			(item.Status == domain.StatusPending || item.Status == domain.StatusProcessing) {
			cp := *item
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *QueueRepo) ListByUser(ctx context.Context, userID string) ([]*domain.QueueItem, error) {
	return r.list(func(i *domain.QueueItem) bool { return i.UserID == userID })
}

func (r *QueueRepo) ListByWallet(
	ctx context.Context,
	walletAddress string,
) ([]*domain.QueueItem, error) {
	return r.list(func(i *domain.QueueItem) bool { return i.WalletAddress == walletAddress })
}

func (r *QueueRepo) list(match func(*domain.QueueItem) bool) ([]*domain.QueueItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var res []*domain.QueueItem
	for _, item := range r.items {
		if match(item) {
			cp := *item
			res = append(res, &cp)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return res, nil
}

func (r *QueueRepo) PickEligible(
	ctx context.Context,
	limit int,
	now time.Time,
) ([]*domain.QueueItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var eligible []*domain.QueueItem
	for _, item := range r.items {
		if item.Eligible(now) {
			cp := *item
			eligible = append(eligible, &cp)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].Priority != eligible[j].Priority {
			return eligible[i].Priority < eligible[j].Priority
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})

	if len(eligible) > limit {
		eligible = eligible[:limit]
	}
	return eligible, nil
}

func (r *QueueRepo) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Status != domain.StatusPending {
		return false, nil
	}
	item.Status = domain.StatusProcessing
	started := now
	item.ProcessingStartedAt = &started
	return true, nil
}

func (r *QueueRepo) MarkCompleted(ctx context.Context, id, txHash string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Status != domain.StatusProcessing {
		return storage.ErrItemNotFound
	}
	item.Status = domain.StatusCompleted
	item.TransactionHash = txHash
	ts := now
	item.CompletedAt = &ts
	item.ProcessedAt = &ts
	return nil
}

func (r *QueueRepo) MarkFailed(ctx context.Context, id, errorMsg string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Status != domain.StatusProcessing {
		return storage.ErrItemNotFound
	}
	item.Status = domain.StatusFailed
	item.ErrorMessage = errorMsg
	ts := now
	item.ProcessedAt = &ts
	return nil
}

func (r *QueueRepo) Requeue(
	ctx context.Context,
	id string,
	retryCount int,
	processAfter time.Time,
) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Status != domain.StatusProcessing {
		return storage.ErrItemNotFound
	}
	item.Status = domain.StatusPending
	item.RetryCount = retryCount
	after := processAfter
	item.ProcessAfter = &after
	item.ProcessingStartedAt = nil
	return nil
}

func (r *QueueRepo) CancelIfPending(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok || item.Status != domain.StatusPending {
		return false, nil
	}
	item.Status = domain.StatusCancelled
	ts := now
	item.ProcessedAt = &ts
	return true, nil
}

func (r *QueueRepo) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	released := 0
	for _, item := range r.items {
		if item.Status == domain.StatusProcessing &&
			item.ProcessingStartedAt != nil &&
			item.ProcessingStartedAt.Before(cutoff) {
			item.Status = domain.StatusPending
			item.ProcessingStartedAt = nil
			released++
		}
	}
	return released, nil
}

func (r *QueueRepo) CountByStatus(ctx context.Context) (map[domain.QueueStatus]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.QueueStatus]int)
	for _, item := range r.items {
		counts[item.Status]++
	}
	return counts, nil
}
