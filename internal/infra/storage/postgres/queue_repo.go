package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/storage"
)

const itemColumns = `id, user_id, wallet_address, device_id, type, status, priority, payload,
	retry_count, max_retries, process_after, transaction_hash, error_message,
	created_at, processing_started_at, completed_at, processed_at`

// QueueRepo is the PostgreSQL implementation of storage.QueueRepository.
type QueueRepo struct {
	db *DB
}

func NewQueueRepo(db *DB) *QueueRepo {
	return &QueueRepo{db: db}
}

func (r *QueueRepo) Create(ctx context.Context, item *domain.QueueItem) error {
	query := `
		INSERT INTO mint_queue (id, user_id, wallet_address, device_id, type, status, priority,
			payload, retry_count, max_retries, process_after, created_at)
		VALUES (:id, :user_id, :wallet_address, :device_id, :type, :status, :priority,
			:payload, :retry_count, :max_retries, :process_after, :created_at)
	`
	_, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		// 23505 = unique_violation on the active-item partial index
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return storage.ErrDuplicateActive
		}
		return fmt.Errorf("insert queue item: %w", err)
	}
	return nil
}

func (r *QueueRepo) GetByID(ctx context.Context, id string) (*domain.QueueItem, error) {
	var item domain.QueueItem
	query := fmt.Sprintf(`SELECT %s FROM mint_queue WHERE id = $1`, itemColumns)
	err := r.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *QueueRepo) FindActive(
	ctx context.Context,
	userID, walletAddress string,
	mintType domain.MintType,
) (*domain.QueueItem, error) {
	var item domain.QueueItem
	query := fmt.Sprintf(`
		SELECT %s FROM mint_queue
		WHERE user_id = $1 AND wallet_address = $2 AND type = $3
			AND status IN ('pending', 'processing')
		LIMIT 1
	`, itemColumns)
	err := r.db.GetContext(ctx, &item, query, userID, walletAddress, mintType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *QueueRepo) ListByUser(ctx context.Context, userID string) ([]*domain.QueueItem, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM mint_queue WHERE user_id = $1 ORDER BY created_at DESC`,
		itemColumns,
	)
	var items []*domain.QueueItem
	if err := r.db.SelectContext(ctx, &items, query, userID); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *QueueRepo) ListByWallet(
	ctx context.Context,
	walletAddress string,
) ([]*domain.QueueItem, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM mint_queue WHERE wallet_address = $1 ORDER BY created_at DESC`,
		itemColumns,
	)
	var items []*domain.QueueItem
	if err := r.db.SelectContext(ctx, &items, query, walletAddress); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *QueueRepo) PickEligible(
	ctx context.Context,
	limit int,
	now time.Time,
) ([]*domain.QueueItem, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM mint_queue
		WHERE status = 'pending' AND (process_after IS NULL OR process_after <= $1)
		ORDER BY priority ASC, created_at ASC
		LIMIT $2
	`, itemColumns)
	var items []*domain.QueueItem
	if err := r.db.SelectContext(ctx, &items, query, now, limit); err != nil {
		return nil, err
	}
	return items, nil
}

// Claim is a compare-and-swap at the storage layer: the WHERE clause on
// status guarantees only one worker wins when the queue is scaled out.
func (r *QueueRepo) Claim(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mint_queue
		SET status = 'processing', processing_started_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *QueueRepo) MarkCompleted(ctx context.Context, id, txHash string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mint_queue
		SET status = 'completed', transaction_hash = $2, completed_at = $3, processed_at = $3
		WHERE id = $1 AND status = 'processing'
	`, id, txHash, now)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *QueueRepo) MarkFailed(ctx context.Context, id, errorMsg string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mint_queue
		SET status = 'failed', error_message = $2, processed_at = $3
		WHERE id = $1 AND status = 'processing'
	`, id, errorMsg, now)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *QueueRepo) Requeue(
	ctx context.Context,
	id string,
	retryCount int,
	processAfter time.Time,
) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mint_queue
		SET status = 'pending', retry_count = $2, process_after = $3, processing_started_at = NULL
		WHERE id = $1 AND status = 'processing'
	`, id, retryCount, processAfter)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *QueueRepo) CancelIfPending(ctx context.Context, id string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mint_queue
		SET status = 'cancelled', processed_at = $2
		WHERE id = $1 AND status = 'pending'
	`, id, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *QueueRepo) ReleaseStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mint_queue
		SET status = 'pending', processing_started_at = NULL
		WHERE status = 'processing' AND processing_started_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *QueueRepo) CountByStatus(ctx context.Context) (map[domain.QueueStatus]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT status, count(*) FROM mint_queue GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.QueueStatus]int)
	for rows.Next() {
		var status domain.QueueStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrItemNotFound
	}
	return nil
}
