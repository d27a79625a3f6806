package domain

import "time"

// EventType identifies a queue lifecycle notification.
type EventType string

const (
	EventQueued    EventType = "queued"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
)

// Event is emitted at queue lifecycle transitions. The queue has no
// knowledge of who consumes these; the notification layer subscribes.
type Event struct {
	Type            EventType `json:"type"`
	MintType        MintType  `json:"mint_type"`
	UserID          string    `json:"user_id,omitempty"`
	WalletAddress   string    `json:"wallet_address"`
	QueueItemID     string    `json:"queue_item_id"`
	TransactionHash string    `json:"transaction_hash,omitempty"`
	Error           string    `json:"error,omitempty"`
	EmittedAt       time.Time `json:"emitted_at"`
}
