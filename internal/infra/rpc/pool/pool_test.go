package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
)

// rpcHandler builds an http.HandlerFunc for a JSON-RPC test server.
func rpcHandler(hits *atomic.Int64, respond func(w http.ResponseWriter)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		respond(w)
	}
}

func respondResult(result string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":%q}`, result)
	}
}

func respondRPCError(code int, message string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"error":{"code":%d,"message":%q}}`, code, message)
	}
}

func respondStatus(status int) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.WriteHeader(status)
	}
}

func newTestPool(t *testing.T, urls ...string) *Pool {
	t.Helper()

	spec := NetworkSpec{
		Name:        "testnet",
		CallTimeout: 5 * time.Second,
	}
	for i, u := range urls {
		spec.Endpoints = append(spec.Endpoints, EndpointSpec{
			Name: fmt.Sprintf("ep%d", i),
			URL:  u,
		})
	}

	p, err := New([]NetworkSpec{spec}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(p.Close)
	return p
}

func callBlockNumber(ctx context.Context, ep *Endpoint) error {
	_, err := ep.Call(ctx, "eth_blockNumber", nil)
	return err
}

func TestExecuteWithFallback_FailsOverToNextEndpoint(t *testing.T) {
	var hits0, hits1 atomic.Int64

	bad := httptest.NewServer(rpcHandler(&hits0, respondStatus(http.StatusInternalServerError)))
	defer bad.Close()
	good := httptest.NewServer(rpcHandler(&hits1, respondResult("0x10")))
	defer good.Close()

	p := newTestPool(t, bad.URL, good.URL)

	err := p.ExecuteWithFallback(context.Background(), "testnet", callBlockNumber)
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}

	if hits0.Load() != 1 || hits1.Load() != 1 {
		t.Errorf("expected one hit per endpoint, got %d and %d", hits0.Load(), hits1.Load())
	}

	active, err := p.ActiveEndpoint("testnet")
	if err != nil {
		t.Fatalf("ActiveEndpoint failed: %v", err)
	}
	if active.Name() != "ep1" {
		t.Errorf("expected active endpoint ep1, got %s", active.Name())
	}
	if got := p.HealthyCount("testnet"); got != 1 {
		t.Errorf("expected 1 healthy endpoint, got %d", got)
	}
}

func TestExecuteWithFallback_TerminalErrorStopsImmediately(t *testing.T) {
	var hits0, hits1 atomic.Int64

	reverting := httptest.NewServer(rpcHandler(&hits0, respondRPCError(3, "execution reverted: not eligible")))
	defer reverting.Close()
	unused := httptest.NewServer(rpcHandler(&hits1, respondResult("0x10")))
	defer unused.Close()

	p := newTestPool(t, reverting.URL, unused.URL)

	err := p.ExecuteWithFallback(context.Background(), "testnet", callBlockNumber)
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if domain.Retryable(err) {
		t.Errorf("expected non-retryable error, got %v", err)
	}
	if hits1.Load() != 0 {
		t.Errorf("terminal error must not trigger failover, second endpoint got %d hits", hits1.Load())
	}
	// No endpoint was marked unhealthy: the request reached the chain.
	if got := p.HealthyCount("testnet"); got != 2 {
		t.Errorf("expected 2 healthy endpoints, got %d", got)
	}
}

func TestExecuteWithFallback_ExhaustionResetsOptimistically(t *testing.T) {
	var hits0, hits1 atomic.Int64

	bad0 := httptest.NewServer(rpcHandler(&hits0, respondStatus(http.StatusServiceUnavailable)))
	defer bad0.Close()
	bad1 := httptest.NewServer(rpcHandler(&hits1, respondStatus(http.StatusServiceUnavailable)))
	defer bad1.Close()

	p := newTestPool(t, bad0.URL, bad1.URL)

	err := p.ExecuteWithFallback(context.Background(), "testnet", callBlockNumber)
	if err == nil {
		t.Fatal("expected error when every endpoint fails")
	}
	if !domain.Retryable(err) {
		t.Errorf("connectivity exhaustion should stay retryable, got %v", err)
	}

	// All candidates failed; the pool resets to healthy rather than
	// locking itself out permanently.
	if got := p.HealthyCount("testnet"); got != 2 {
		t.Errorf("expected optimistic reset to 2 healthy endpoints, got %d", got)
	}
	active, _ := p.ActiveEndpoint("testnet")
	if active.Name() != "ep0" {
		t.Errorf("expected reset to select ep0, got %s", active.Name())
	}
}

func TestExecuteWithFallback_RateLimitFailsOver(t *testing.T) {
	var hits0, hits1 atomic.Int64

	limited := httptest.NewServer(rpcHandler(&hits0, respondStatus(http.StatusTooManyRequests)))
	defer limited.Close()
	good := httptest.NewServer(rpcHandler(&hits1, respondResult("0x10")))
	defer good.Close()

	p := newTestPool(t, limited.URL, good.URL)

	if err := p.ExecuteWithFallback(context.Background(), "testnet", callBlockNumber); err != nil {
		t.Fatalf("expected rate-limited endpoint to fail over, got %v", err)
	}
	if hits1.Load() != 1 {
		t.Errorf("expected second endpoint to serve the call, got %d hits", hits1.Load())
	}
}

func TestUnknownNetworkIsConfigurationError(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondResult("0x10")(w)
	}))
	defer good.Close()

	p := newTestPool(t, good.URL)

	err := p.ExecuteWithFallback(context.Background(), "no-such-network", callBlockNumber)
	if err == nil {
		t.Fatal("expected error for unknown network")
	}
	var cfgErr *domain.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Errorf("expected configuration error, got %T: %v", err, err)
	}
}

func TestNew_DedupsEndpointURLs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondResult("0x10")(w)
	}))
	defer srv.Close()

	p := newTestPool(t, srv.URL, srv.URL, srv.URL)

	snap := p.Snapshot()
	if got := len(snap["testnet"]); got != 1 {
		t.Errorf("expected duplicate URLs collapsed to 1 candidate, got %d", got)
	}
}

func TestNew_ZeroEndpointsFails(t *testing.T) {
	_, err := New([]NetworkSpec{{Name: "empty"}}, slog.Default())
	if err == nil {
		t.Fatal("expected error for network with no endpoints")
	}
}

func TestNew_AppendsKnownFallbacks(t *testing.T) {
	spec := NetworkSpec{
		Name:      "polygon",
		Endpoints: []EndpointSpec{{Name: "primary", URL: "http://localhost:1"}},
	}
	p, err := New([]NetworkSpec{spec}, slog.Default())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer p.Close()

	want := 1 + len(defaultFallbacks["polygon"])
	if got := len(p.Snapshot()["polygon"]); got != want {
		t.Errorf("expected %d candidates (primary + fallbacks), got %d", want, got)
	}
	active, _ := p.ActiveEndpoint("polygon")
	if active.Name() != "primary" {
		t.Errorf("expected configured primary first, got %s", active.Name())
	}
}

func TestSnapshotMarksActive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondResult("0x10")(w)
	}))
	defer srv.Close()

	p := newTestPool(t, srv.URL)

	snap := p.Snapshot()["testnet"]
	if len(snap) != 1 || !snap[0].Active || !snap[0].Healthy {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}
