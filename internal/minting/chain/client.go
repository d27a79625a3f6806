// Package chain submits signed mint operations to a blockchain network
// through the endpoint pool. Signing, gas estimation and contract encoding
// happen upstream; the payload arriving here already carries a signed
// transaction.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/rpc/pool"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/metrics"
)

// Receipt is the on-chain confirmation of a submitted operation.
type Receipt struct {
	TransactionHash string
	BlockNumber     uint64
	GasUsed         uint64
}

// Submitter executes one queue item against the chain. Errors returned
// carry the retryable/terminal taxonomy the queue consumes.
type Submitter interface {
	Submit(ctx context.Context, item *domain.QueueItem) (*Receipt, error)
}

// Client is a Submitter built on top of the endpoint pool, so a single
// unhealthy RPC node never stalls the minting pipeline.
type Client struct {
	pool           *pool.Pool
	network        string
	receiptTimeout time.Duration
	pollInterval   time.Duration
	log            *slog.Logger
}

// NewClient creates a chain client for one network.
func NewClient(p *pool.Pool, network string, receiptTimeout time.Duration, log *slog.Logger) *Client {
	if receiptTimeout == 0 {
		receiptTimeout = 90 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		pool:           p,
		network:        network,
		receiptTimeout: receiptTimeout,
		pollInterval:   3 * time.Second,
		log:            log,
	}
}

// payload is the part of the queue item payload the client interprets. The
// rest (eligibility proof, amount) is consumed upstream when the
// transaction is built and signed.
type payload struct {
	SignedTx string `json:"signed_tx"`
}

// Submit sends the item's signed transaction and blocks until a receipt is
// available or the bounded wait elapses. Resubmitting the same signed
// transaction is hash-idempotent on-chain, so a timed-out wait is safe to
// retry.
func (c *Client) Submit(ctx context.Context, item *domain.QueueItem) (*Receipt, error) {
	start := time.Now()

	var p payload
	if err := json.Unmarshal(item.Payload, &p); err != nil {
		return nil, domain.NewChainError(domain.ClassTerminal, c.network, "", "submit",
			fmt.Errorf("invalid payload: %w", err))
	}
	if p.SignedTx == "" {
		return nil, domain.NewChainError(domain.ClassTerminal, c.network, "", "submit",
			errors.New("payload has no signed transaction"))
	}

	txHash, err := c.sendRawTransaction(ctx, p.SignedTx)
	if err != nil {
		return nil, err
	}

	c.log.Debug("Transaction submitted, waiting for receipt",
		"network", c.network, "tx_hash", txHash, "queue_item", item.ID)

	receipt, err := c.waitForReceipt(ctx, txHash)
	if err != nil {
		return nil, err
	}

	metrics.SubmitDuration.WithLabelValues(c.network, string(item.Type)).
		Observe(time.Since(start).Seconds())
	return receipt, nil
}

func (c *Client) sendRawTransaction(ctx context.Context, signedTx string) (string, error) {
	var txHash string
	err := c.pool.ExecuteWithFallback(ctx, c.network, func(ctx context.Context, ep *pool.Endpoint) error {
		raw, err := ep.Call(ctx, "eth_sendRawTransaction", []any{signedTx})
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, &txHash)
	})
	if err != nil {
		return "", err
	}
	return txHash, nil
}

// rpcReceipt mirrors the fields of eth_getTransactionReceipt we consume.
type rpcReceipt struct {
	TransactionHash string `json:"transactionHash"`
	BlockNumber     string `json:"blockNumber"`
	GasUsed         string `json:"gasUsed"`
	Status          string `json:"status"`
}

// waitForReceipt polls for the receipt until the bounded wait elapses.
// Confirmation cannot be aborted mid-flight, so the timeout surfaces as a
// retryable error rather than cancelling anything on-chain.
func (c *Client) waitForReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	deadline := time.Now().Add(c.receiptTimeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := c.fetchReceipt(ctx, txHash)
		if err != nil && !domain.Retryable(err) {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		if time.Now().After(deadline) {
			return nil, domain.NewChainError(domain.ClassConnectivity, c.network, "", "eth_getTransactionReceipt",
				fmt.Errorf("no receipt for %s after %s", txHash, c.receiptTimeout))
		}

		select {
		case <-ctx.Done():
			return nil, domain.NewChainError(domain.ClassConnectivity, c.network, "", "eth_getTransactionReceipt", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchReceipt(ctx context.Context, txHash string) (*Receipt, error) {
	var raw json.RawMessage
	err := c.pool.ExecuteWithFallback(ctx, c.network, func(ctx context.Context, ep *pool.Endpoint) error {
		res, err := ep.Call(ctx, "eth_getTransactionReceipt", []any{txHash})
		if err != nil {
			return err
		}
		raw = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Not mined yet
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var r rpcReceipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, domain.NewChainError(domain.ClassConnectivity, c.network, "", "eth_getTransactionReceipt",
			fmt.Errorf("parse receipt: %w", err))
	}

	if r.Status == "0x0" {
		return nil, domain.NewChainError(domain.ClassTerminal, c.network, "", "eth_getTransactionReceipt",
			fmt.Errorf("transaction %s reverted", txHash))
	}

	return &Receipt{
		TransactionHash: r.TransactionHash,
		BlockNumber:     parseHexUint(r.BlockNumber),
		GasUsed:         parseHexUint(r.GasUsed),
	}, nil
}

func parseHexUint(s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
	if err != nil {
		return 0
	}
	return v
}
