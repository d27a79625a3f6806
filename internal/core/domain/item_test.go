package domain

import (
	"testing"
	"time"
)

func TestMintTypePriority(t *testing.T) {
	tests := []struct {
		typ  MintType
		want int
	}{
		{MintTypeAdmin, 1},
		{MintTypeFirstTime, 5},
		{MintTypeAnnual, 10},
	}
	for _, tt := range tests {
		if got := tt.typ.Priority(); got != tt.want {
			t.Errorf("%s.Priority() = %d, want %d", tt.typ, got, tt.want)
		}
	}
}

func TestMintTypeValid(t *testing.T) {
	for _, typ := range []MintType{MintTypeFirstTime, MintTypeAnnual, MintTypeAdmin} {
		if !typ.Valid() {
			t.Errorf("%s should be valid", typ)
		}
	}
	if MintType("something_else").Valid() {
		t.Error("unknown type should be invalid")
	}
}

func TestStatusTerminal(t *testing.T) {
	terminal := map[QueueStatus]bool{
		StatusPending:    false,
		StatusProcessing: false,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusCancelled:  true,
	}
	for status, want := range terminal {
		if got := status.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", status, got, want)
		}
	}
}

func TestEligible(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name string
		item QueueItem
		want bool
	}{
		{"pending no delay", QueueItem{Status: StatusPending}, true},
		{"pending elapsed delay", QueueItem{Status: StatusPending, ProcessAfter: &past}, true},
		{"pending future delay", QueueItem{Status: StatusPending, ProcessAfter: &future}, false},
		{"processing", QueueItem{Status: StatusProcessing}, false},
		{"completed", QueueItem{Status: StatusCompleted}, false},
		{"cancelled", QueueItem{Status: StatusCancelled}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.Eligible(now); got != tt.want {
				t.Errorf("Eligible() = %v, want %v", got, tt.want)
			}
		})
	}
}
