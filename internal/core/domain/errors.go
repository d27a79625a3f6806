package domain

import (
	"errors"
	"fmt"
)

// ErrorClass tags a chain-facing failure with its retry semantics. The tag
// is assigned once where the error originates (endpoint pool or chain
// client) and carried as data; callers never inspect message text.
type ErrorClass string

const (
	// ClassConnectivity covers timeouts, refused connections, rate limits
	// and 5xx responses. Retryable: drives both endpoint failover and
	// queue backoff.
	ClassConnectivity ErrorClass = "connectivity"

	// ClassTerminal covers invalid signatures/proofs, contract reverts and
	// failed eligibility. No amount of retrying helps.
	ClassTerminal ErrorClass = "terminal"

	// ClassConfiguration covers startup/config defects such as a network
	// with zero endpoints. Fatal at first use, never retried.
	ClassConfiguration ErrorClass = "configuration"
)

// ChainError is a classified failure from the chain boundary.
type ChainError struct {
	Class    ErrorClass
	Network  string
	Endpoint string // endpoint name, empty when not endpoint-specific
	Op       string // e.g. "eth_sendRawTransaction"
	Err      error
}

func (e *ChainError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("%s: %s %s via %s: %v", e.Class, e.Network, e.Op, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("%s: %s %s: %v", e.Class, e.Network, e.Op, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

// NewChainError wraps err with a class. If err already carries a class it
// is preserved; classification happens exactly once.
func NewChainError(class ErrorClass, network, endpoint, op string, err error) *ChainError {
	var ce *ChainError
	if errors.As(err, &ce) {
		class = ce.Class
	}
	return &ChainError{Class: class, Network: network, Endpoint: endpoint, Op: op, Err: err}
}

// Retryable reports whether err should consume retry budget rather than
// fail the item permanently. Unclassified errors default to retryable,
// matching the transport-level default: losing work that would have
// succeeded is the worse misclassification.
func Retryable(err error) bool {
	var ce *ChainError
	if errors.As(err, &ce) {
		return ce.Class == ClassConnectivity
	}
	return true
}

// ConfigurationError reports a network with no usable endpoint
// configuration. Not runtime-recoverable.
type ConfigurationError struct {
	Network string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("network %q: %s", e.Network, e.Reason)
}

// InvalidStateError is returned when an operation is attempted against an
// item whose status does not admit it, e.g. cancelling a Processing item.
type InvalidStateError struct {
	ID     string
	Status QueueStatus
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s queue item %s in status %s", e.Op, e.ID, e.Status)
}
