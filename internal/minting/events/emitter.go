package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
)

// Emitter publishes queue lifecycle events. The queue does not know who
// consumes them.
type Emitter interface {
	// Emit sends a single event
	Emit(ctx context.Context, event *domain.Event) error
}

// LogEmitter writes events to the structured log. Used when no notification
// transport is configured.
type LogEmitter struct {
	Log *slog.Logger
}

func (e *LogEmitter) Emit(ctx context.Context, event *domain.Event) error {
	log := e.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("Queue event",
		"event", event.Type,
		"mint_type", event.MintType,
		"queue_item", event.QueueItemID,
		"wallet", event.WalletAddress,
		"tx_hash", event.TransactionHash,
		"error", event.Error)
	return nil
}

// MemoryEmitter records events in memory for tests.
type MemoryEmitter struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (e *MemoryEmitter) Emit(ctx context.Context, event *domain.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *event
	e.events = append(e.events, &cp)
	return nil
}

// Events returns a copy of everything emitted so far.
func (e *MemoryEmitter) Events() []*domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]*domain.Event, len(e.events))
	copy(out, e.events)
	return out
}

// ByType returns emitted events matching the given type.
func (e *MemoryEmitter) ByType(t domain.EventType) []*domain.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*domain.Event
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
