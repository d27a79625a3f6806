package domain

import (
	"encoding/json"
	"time"
)

// MintType identifies the kind of on-chain mint operation a queue item
// represents.
type MintType string

const (
	MintTypeFirstTime MintType = "first_time_mint"
	MintTypeAnnual    MintType = "annual_mint"
	MintTypeAdmin     MintType = "admin_mint"
)

// Priorities per mint type. Lower value is served first; system/admin
// operations jump the line, first-time mints beat annual renewals.
const (
	PriorityAdmin     = 1
	PriorityFirstTime = 5
	PriorityAnnual    = 10
)

// Priority returns the scheduling priority for the mint type.
func (t MintType) Priority() int {
	switch t {
	case MintTypeAdmin:
		return PriorityAdmin
	case MintTypeFirstTime:
		return PriorityFirstTime
	default:
		return PriorityAnnual
	}
}

// Valid reports whether t is a known mint type.
func (t MintType) Valid() bool {
	switch t {
	case MintTypeFirstTime, MintTypeAnnual, MintTypeAdmin:
		return true
	}
	return false
}

// QueueStatus is the lifecycle state of a queue item.
type QueueStatus string

const (
	StatusPending    QueueStatus = "pending"
	StatusProcessing QueueStatus = "processing"
	StatusCompleted  QueueStatus = "completed"
	StatusFailed     QueueStatus = "failed"
	StatusCancelled  QueueStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s QueueStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// QueueItem is one durable unit of requested on-chain work.
//
// At most one Pending or Processing item may exist for the same
// (UserID, WalletAddress, Type) triple; the queue repository enforces this.
type QueueItem struct {
	ID            string   `db:"id"             json:"id"`
	UserID        string   `db:"user_id"        json:"user_id,omitempty"` // empty for system-initiated admin mints
	WalletAddress string   `db:"wallet_address" json:"wallet_address"`
	DeviceID      string   `db:"device_id"      json:"device_id,omitempty"`
	Type          MintType `db:"type"           json:"type"`

	Status   QueueStatus `db:"status"   json:"status"`
	Priority int         `db:"priority" json:"priority"`

	// Payload carries type-specific proof material: an eligibility proof for
	// first-time mints, a pre-generated signature for annual mints, an amount
	// for admin mints. The queue never interprets it.
	Payload json.RawMessage `db:"payload" json:"payload,omitempty"`

	RetryCount   int        `db:"retry_count"   json:"retry_count"`
	MaxRetries   int        `db:"max_retries"   json:"max_retries"`
	ProcessAfter *time.Time `db:"process_after" json:"process_after,omitempty"`

	TransactionHash string `db:"transaction_hash" json:"transaction_hash,omitempty"`
	ErrorMessage    string `db:"error_message"    json:"error_message,omitempty"`

	CreatedAt           time.Time  `db:"created_at"            json:"created_at"`
	ProcessingStartedAt *time.Time `db:"processing_started_at" json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time `db:"completed_at"          json:"completed_at,omitempty"`
	ProcessedAt         *time.Time `db:"processed_at"          json:"processed_at,omitempty"`
}

// Eligible reports whether the item may be picked by a drain cycle at now.
func (i *QueueItem) Eligible(now time.Time) bool {
	if i.Status != StatusPending {
		return false
	}
	return i.ProcessAfter == nil || !i.ProcessAfter.After(now)
}
