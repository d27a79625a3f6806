package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/rpc/pool"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/storage/memory"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/chain"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/queue"
)

type okSubmitter struct{}

func (okSubmitter) Submit(ctx context.Context, item *domain.QueueItem) (*chain.Receipt, error) {
	return &chain.Receipt{TransactionHash: "0xdone"}, nil
}

func newTestServer(t *testing.T) (*Server, *queue.Service) {
	t.Helper()

	rpc := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":"0x10"}`)
	}))
	t.Cleanup(rpc.Close)

	p, err := pool.New([]pool.NetworkSpec{{
		Name:      "testnet",
		Endpoints: []pool.EndpointSpec{{Name: "primary", URL: rpc.URL}},
	}}, slog.Default())
	if err != nil {
		t.Fatalf("pool.New failed: %v", err)
	}
	t.Cleanup(p.Close)

	q := queue.New(memory.NewQueueRepo(), okSubmitter{}, nil, queue.Config{}, slog.Default())
	return NewServer(q, p, nil, 0), q
}

func do(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body["status"] != StatusHealthy {
		t.Errorf("expected healthy, got %s", body["status"])
	}
}

func TestDetailedEndpointIncludesQueueCounts(t *testing.T) {
	s, q := newTestServer(t)

	if _, err := q.Enqueue(context.Background(), queue.EnqueueRequest{
		UserID:        "u1",
		WalletAddress: "0xabc",
		Type:          domain.MintTypeFirstTime,
		Payload:       json.RawMessage(`{"signed_tx":"0x1"}`),
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	rec := do(t, s, http.MethodGet, "/health/detailed")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Status    string                           `json:"status"`
		Queue     map[string]int                   `json:"queue"`
		Endpoints map[string][]pool.EndpointHealth `json:"endpoints"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Queue["pending"] != 1 {
		t.Errorf("expected 1 pending in report, got %+v", body.Queue)
	}
	if len(body.Endpoints["testnet"]) != 1 {
		t.Errorf("expected endpoint report for testnet, got %+v", body.Endpoints)
	}
}

func TestAdminDrain(t *testing.T) {
	s, q := newTestServer(t)

	if rec := do(t, s, http.MethodGet, "/admin/drain"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for GET, got %d", rec.Code)
	}

	if _, err := q.Enqueue(context.Background(), queue.EnqueueRequest{
		UserID:        "u1",
		WalletAddress: "0xabc",
		Type:          domain.MintTypeFirstTime,
		Payload:       json.RawMessage(`{"signed_tx":"0x1"}`),
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	rec := do(t, s, http.MethodPost, "/admin/drain")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var summary queue.DrainSummary
	if err := json.NewDecoder(rec.Body).Decode(&summary); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !summary.Rapid || summary.Completed != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	item, err := q.ListByUser(context.Background(), "u1")
	if err != nil || len(item) != 1 {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if item[0].Status != domain.StatusCompleted {
		t.Errorf("expected completed after manual drain, got %s", item[0].Status)
	}
}
