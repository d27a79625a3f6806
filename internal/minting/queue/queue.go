// Package queue implements the durable minting queue: it enqueues, dedups
// and prioritizes mint requests, drains them against the chain client, and
// applies bounded retries with exponential backoff.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/storage"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/chain"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/events"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/metrics"
)

// ErrDrainInProgress is returned when a drain is requested while another is
// still running. A skipped overlapping cycle costs throughput, not
// correctness; the queue itself is the source of truth.
var ErrDrainInProgress = errors.New("drain already in progress")

// DrainLocker extends the single-process drain guard across instances.
// Optional; nil means in-process guarding only.
type DrainLocker interface {
	AcquireDrainLock(ctx context.Context, ttl time.Duration) (bool, error)
	ReleaseDrainLock(ctx context.Context) error
}

// Config holds queue behavior settings.
type Config struct {
	BatchSize       int
	MaxRetries      int
	BaseDelay       time.Duration // backoff base for scheduled drains
	RapidBaseDelay  time.Duration // backoff base for manual drains
	ProcessingLease time.Duration // Processing items older than this are released
}

// EnqueueRequest is a request to queue one mint operation.
type EnqueueRequest struct {
	UserID        string // empty for system-initiated admin mints
	WalletAddress string
	DeviceID      string
	Type          domain.MintType
	Payload       json.RawMessage
	MaxRetries    int // 0 means the configured default
}

// DrainSummary reports what one drain cycle did.
type DrainSummary struct {
	Picked    int  `json:"picked"`
	Completed int  `json:"completed"`
	Retried   int  `json:"retried"`
	Failed    int  `json:"failed"`
	Skipped   int  `json:"skipped"`
	Released  int  `json:"released"`
	Rapid     bool `json:"rapid"`
}

// Service owns queue item lifecycle transitions. No other component
// mutates item status.
type Service struct {
	repo    storage.QueueRepository
	chain   chain.Submitter
	emitter events.Emitter
	locker  DrainLocker
	cfg     Config
	log     *slog.Logger

	draining atomic.Bool
	now      func() time.Time
}

// Option configures optional service behavior.
type Option func(*Service)

// WithDrainLocker sets the cross-process drain lock.
func WithDrainLocker(l DrainLocker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates the queue service.
func New(
	repo storage.QueueRepository,
	submitter chain.Submitter,
	emitter events.Emitter,
	cfg Config,
	log *slog.Logger,
	opts ...Option,
) *Service {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 5 * time.Minute
	}
	if cfg.RapidBaseDelay == 0 {
		cfg.RapidBaseDelay = 30 * time.Second
	}
	if cfg.ProcessingLease == 0 {
		cfg.ProcessingLease = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	if emitter == nil {
		emitter = &events.LogEmitter{Log: log}
	}

	s := &Service{
		repo:    repo,
		chain:   submitter,
		emitter: emitter,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue accepts a mint request. It is idempotent: when a Pending or
// Processing item already exists for the same (user, wallet, type) triple,
// that item is returned and no second row is created.
func (s *Service) Enqueue(ctx context.Context, req EnqueueRequest) (*domain.QueueItem, error) {
	if !req.Type.Valid() {
		return nil, fmt.Errorf("unknown mint type %q", req.Type)
	}
	if req.WalletAddress == "" {
		return nil, errors.New("wallet address is required")
	}

	existing, err := s.repo.FindActive(ctx, req.UserID, req.WalletAddress, req.Type)
	if err != nil {
		return nil, fmt.Errorf("check for active item: %w", err)
	}
	if existing != nil {
		metrics.DuplicateEnqueues.WithLabelValues(string(req.Type)).Inc()
		return existing, nil
	}

	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = s.cfg.MaxRetries
	}

	item := &domain.QueueItem{
		ID:            uuid.NewString(),
		UserID:        req.UserID,
		WalletAddress: req.WalletAddress,
		DeviceID:      req.DeviceID,
		Type:          req.Type,
		Status:        domain.StatusPending,
		Priority:      req.Type.Priority(),
		Payload:       req.Payload,
		MaxRetries:    maxRetries,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.repo.Create(ctx, item); err != nil {
		// Lost a race with a concurrent enqueue of the same triple; the
		// winner's item satisfies the caller.
		if errors.Is(err, storage.ErrDuplicateActive) {
			existing, ferr := s.repo.FindActive(ctx, req.UserID, req.WalletAddress, req.Type)
			if ferr == nil && existing != nil {
				metrics.DuplicateEnqueues.WithLabelValues(string(req.Type)).Inc()
				return existing, nil
			}
		}
		return nil, fmt.Errorf("persist queue item: %w", err)
	}

	metrics.ItemsEnqueued.WithLabelValues(string(req.Type)).Inc()
	s.emit(ctx, domain.EventQueued, item, "", "")

	s.log.Info("Mint request queued",
		"queue_item", item.ID, "type", item.Type, "wallet", item.WalletAddress,
		"priority", item.Priority)
	return item, nil
}

// Cancel transitions a Pending item to Cancelled. Any other status returns
// an InvalidStateError and leaves the item unchanged.
func (s *Service) Cancel(ctx context.Context, id string) (*domain.QueueItem, error) {
	item, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ok, err := s.repo.CancelIfPending(ctx, id, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("cancel queue item: %w", err)
	}
	if !ok {
		// Re-read for the status the conditional update observed.
		if current, gerr := s.repo.GetByID(ctx, id); gerr == nil {
			item = current
		}
		return nil, &domain.InvalidStateError{ID: id, Status: item.Status, Op: "cancel"}
	}

	return s.repo.GetByID(ctx, id)
}

// GetByID retrieves one item.
func (s *Service) GetByID(ctx context.Context, id string) (*domain.QueueItem, error) {
	return s.repo.GetByID(ctx, id)
}

// ListByUser retrieves a user's items, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*domain.QueueItem, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListByWallet retrieves a wallet's items, newest first.
func (s *Service) ListByWallet(ctx context.Context, walletAddress string) ([]*domain.QueueItem, error) {
	return s.repo.ListByWallet(ctx, walletAddress)
}

// Statistics returns item counts per status, consistent with persisted
// state at call time.
func (s *Service) Statistics(ctx context.Context) (map[domain.QueueStatus]int, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	for _, status := range []domain.QueueStatus{
		domain.StatusPending, domain.StatusProcessing, domain.StatusCompleted,
		domain.StatusFailed, domain.StatusCancelled,
	} {
		metrics.QueueDepth.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	return counts, nil
}

// Drain runs one batch-processing cycle. Only one drain runs at a time
// process-wide; both the scheduled timer and the manual trigger call this
// same entry point. rapid selects the shorter backoff base used for
// manually triggered cycles.
func (s *Service) Drain(ctx context.Context, rapid bool) (*DrainSummary, error) {
	if !s.draining.CompareAndSwap(false, true) {
		return nil, ErrDrainInProgress
	}
	defer s.draining.Store(false)

	if s.locker != nil {
		ok, err := s.locker.AcquireDrainLock(ctx, s.cfg.ProcessingLease)
		if err != nil {
			return nil, fmt.Errorf("acquire drain lock: %w", err)
		}
		if !ok {
			return nil, ErrDrainInProgress
		}
		defer func() {
			if err := s.locker.ReleaseDrainLock(ctx); err != nil {
				s.log.Warn("Failed to release drain lock", "error", err)
			}
		}()
	}

	now := s.now().UTC()
	summary := &DrainSummary{Rapid: rapid}

	// Items stuck in Processing past their lease (crashed worker) go back
	// to Pending without consuming retry budget.
	released, err := s.repo.ReleaseStale(ctx, now.Add(-s.cfg.ProcessingLease))
	if err != nil {
		s.log.Warn("Failed to release stale items", "error", err)
	}
	summary.Released = released
	if released > 0 {
		s.log.Warn("Released stale processing items", "count", released)
	}

	items, err := s.repo.PickEligible(ctx, s.cfg.BatchSize, now)
	if err != nil {
		return summary, fmt.Errorf("pick eligible items: %w", err)
	}
	summary.Picked = len(items)

	baseDelay := s.cfg.BaseDelay
	if rapid {
		baseDelay = s.cfg.RapidBaseDelay
	}

	// Each item's outcome is independent; one failure never aborts the
	// rest of the batch.
	for _, item := range items {
		s.processItem(ctx, item, baseDelay, summary)
	}

	if summary.Picked > 0 {
		s.log.Info("Drain cycle finished",
			"picked", summary.Picked, "completed", summary.Completed,
			"retried", summary.Retried, "failed", summary.Failed,
			"skipped", summary.Skipped, "rapid", rapid)
	}
	return summary, nil
}

func (s *Service) processItem(
	ctx context.Context,
	item *domain.QueueItem,
	baseDelay time.Duration,
	summary *DrainSummary,
) {
	claimed, err := s.repo.Claim(ctx, item.ID, s.now().UTC())
	if err != nil {
		s.log.Error("Failed to claim queue item", "queue_item", item.ID, "error", err)
		summary.Skipped++
		metrics.DrainOutcomes.WithLabelValues("skipped").Inc()
		return
	}
	if !claimed {
		// Another worker won the claim, or the item was cancelled between
		// pick and claim.
		summary.Skipped++
		metrics.DrainOutcomes.WithLabelValues("skipped").Inc()
		return
	}

	receipt, err := s.chain.Submit(ctx, item)
	now := s.now().UTC()

	switch {
	case err == nil:
		if merr := s.repo.MarkCompleted(ctx, item.ID, receipt.TransactionHash, now); merr != nil {
			s.log.Error("Failed to mark item completed", "queue_item", item.ID, "error", merr)
			summary.Skipped++
			return
		}
		summary.Completed++
		metrics.DrainOutcomes.WithLabelValues("completed").Inc()
		s.emit(ctx, domain.EventCompleted, item, receipt.TransactionHash, "")
		s.log.Info("Mint completed",
			"queue_item", item.ID, "type", item.Type, "tx_hash", receipt.TransactionHash)

	case domain.Retryable(err) && item.RetryCount < item.MaxRetries:
		delay := Backoff(item.RetryCount, baseDelay)
		if rerr := s.repo.Requeue(ctx, item.ID, item.RetryCount+1, now.Add(delay)); rerr != nil {
			s.log.Error("Failed to requeue item", "queue_item", item.ID, "error", rerr)
			summary.Skipped++
			return
		}
		summary.Retried++
		metrics.DrainOutcomes.WithLabelValues("retried").Inc()
		s.log.Warn("Mint attempt failed, requeued",
			"queue_item", item.ID, "retry_count", item.RetryCount+1,
			"max_retries", item.MaxRetries, "next_attempt_in", delay, "error", err)

	default:
		// Terminal error, or retry budget exhausted.
		if merr := s.repo.MarkFailed(ctx, item.ID, err.Error(), now); merr != nil {
			s.log.Error("Failed to mark item failed", "queue_item", item.ID, "error", merr)
			summary.Skipped++
			return
		}
		summary.Failed++
		metrics.DrainOutcomes.WithLabelValues("failed").Inc()
		s.emit(ctx, domain.EventFailed, item, "", err.Error())
		s.log.Error("Mint failed permanently",
			"queue_item", item.ID, "type", item.Type,
			"retry_count", item.RetryCount, "error", err)
	}
}

func (s *Service) emit(ctx context.Context, t domain.EventType, item *domain.QueueItem, txHash, errMsg string) {
	event := &domain.Event{
		Type:            t,
		MintType:        item.Type,
		UserID:          item.UserID,
		WalletAddress:   item.WalletAddress,
		QueueItemID:     item.ID,
		TransactionHash: txHash,
		Error:           errMsg,
		EmittedAt:       s.now().UTC(),
	}
	if err := s.emitter.Emit(ctx, event); err != nil {
		s.log.Warn("Failed to emit queue event",
			"event", t, "queue_item", item.ID, "error", err)
	}
}

// Backoff returns the delay before the next attempt for an item that has
// already failed retryCount times: 2^retryCount * base.
func Backoff(retryCount int, base time.Duration) time.Duration {
	if retryCount > 20 {
		retryCount = 20
	}
	return base * time.Duration(1<<retryCount)
}
