package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/rpc/pool"
)

const testTxHash = "0x9fc76417374aa880d4449a1f7f31ec597f00b1f6f3dd2d66f4c9c6c445836d8b"

// rpcServer fakes the two JSON-RPC methods the client uses.
type rpcServer struct {
	receiptAfter int64 // getTransactionReceipt calls returning null before a receipt
	receiptCalls atomic.Int64
	status       string // receipt status field
	sendError    *struct {
		code int
		msg  string
	}
}

func (s *rpcServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string `json:"method"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")

		switch req.Method {
		case "eth_sendRawTransaction":
			if s.sendError != nil {
				fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"error":{"code":%d,"message":%q}}`,
					s.sendError.code, s.sendError.msg)
				return
			}
			fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%q}`, testTxHash)

		case "eth_getTransactionReceipt":
			if s.receiptCalls.Add(1) <= s.receiptAfter {
				fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":null}`)
				return
			}
			fmt.Fprintf(w,
				`{"jsonrpc":"2.0","id":1,"result":{"transactionHash":%q,"blockNumber":"0x1b4","gasUsed":"0x5208","status":%q}}`,
				testTxHash, s.status)

		default:
			fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`)
		}
	}
}

func newTestClient(t *testing.T, srv *rpcServer, receiptTimeout time.Duration) *Client {
	t.Helper()

	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	p, err := pool.New([]pool.NetworkSpec{{
		Name:      "testnet",
		Endpoints: []pool.EndpointSpec{{Name: "primary", URL: ts.URL}},
	}}, slog.Default())
	if err != nil {
		t.Fatalf("pool.New failed: %v", err)
	}
	t.Cleanup(p.Close)

	c := NewClient(p, "testnet", receiptTimeout, slog.Default())
	c.pollInterval = 10 * time.Millisecond
	return c
}

func testItem(payload string) *domain.QueueItem {
	return &domain.QueueItem{
		ID:            "item-1",
		WalletAddress: "0xabc",
		Type:          domain.MintTypeFirstTime,
		Status:        domain.StatusProcessing,
		Payload:       json.RawMessage(payload),
	}
}

func TestSubmit_Success(t *testing.T) {
	c := newTestClient(t, &rpcServer{status: "0x1"}, 5*time.Second)

	receipt, err := c.Submit(context.Background(), testItem(`{"signed_tx":"0xdeadbeef"}`))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if receipt.TransactionHash != testTxHash {
		t.Errorf("expected tx hash %s, got %s", testTxHash, receipt.TransactionHash)
	}
	if receipt.BlockNumber != 0x1b4 {
		t.Errorf("expected block number 436, got %d", receipt.BlockNumber)
	}
	if receipt.GasUsed != 0x5208 {
		t.Errorf("expected gas used 21000, got %d", receipt.GasUsed)
	}
}

func TestSubmit_WaitsForReceipt(t *testing.T) {
	srv := &rpcServer{status: "0x1", receiptAfter: 2}
	c := newTestClient(t, srv, 5*time.Second)

	if _, err := c.Submit(context.Background(), testItem(`{"signed_tx":"0xdeadbeef"}`)); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if calls := srv.receiptCalls.Load(); calls < 3 {
		t.Errorf("expected at least 3 receipt polls, got %d", calls)
	}
}

func TestSubmit_RevertedReceiptIsTerminal(t *testing.T) {
	c := newTestClient(t, &rpcServer{status: "0x0"}, 5*time.Second)

	_, err := c.Submit(context.Background(), testItem(`{"signed_tx":"0xdeadbeef"}`))
	if err == nil {
		t.Fatal("expected error for reverted transaction")
	}
	if domain.Retryable(err) {
		t.Errorf("reverted transaction must be terminal, got %v", err)
	}
}

func TestSubmit_ReceiptTimeoutIsRetryable(t *testing.T) {
	// Receipt never appears within the bounded wait.
	srv := &rpcServer{status: "0x1", receiptAfter: 1 << 30}
	c := newTestClient(t, srv, 50*time.Millisecond)

	_, err := c.Submit(context.Background(), testItem(`{"signed_tx":"0xdeadbeef"}`))
	if err == nil {
		t.Fatal("expected timeout error")
	}
	// Resubmitting an identical signed transaction is safe, so the bounded
	// wait stays retryable.
	if !domain.Retryable(err) {
		t.Errorf("receipt timeout must be retryable, got %v", err)
	}
}

func TestSubmit_SendErrorClassified(t *testing.T) {
	srv := &rpcServer{status: "0x1"}
	srv.sendError = &struct {
		code int
		msg  string
	}{code: 3, msg: "execution reverted: already minted this year"}
	c := newTestClient(t, srv, 5*time.Second)

	_, err := c.Submit(context.Background(), testItem(`{"signed_tx":"0xdeadbeef"}`))
	if err == nil {
		t.Fatal("expected send error")
	}
	if domain.Retryable(err) {
		t.Errorf("revert on send must be terminal, got %v", err)
	}
}

func TestSubmit_InvalidPayloadIsTerminal(t *testing.T) {
	srv := &rpcServer{status: "0x1"}
	c := newTestClient(t, srv, 5*time.Second)

	tests := []struct {
		name    string
		payload string
	}{
		{"malformed json", `{not json`},
		{"missing signed tx", `{"amount":"100"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Submit(context.Background(), testItem(tt.payload))
			if err == nil {
				t.Fatal("expected error")
			}
			if domain.Retryable(err) {
				t.Errorf("bad payload must be terminal, got %v", err)
			}
		})
	}
	if srv.receiptCalls.Load() != 0 {
		t.Error("bad payload must not reach the chain")
	}
}
