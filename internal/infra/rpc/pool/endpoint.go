package pool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
)

type endpointKind int

const (
	kindHTTP endpointKind = iota
	kindGRPC
)

// Endpoint is one candidate connection handle for a logical network. The
// health flag is read lock-free on request paths; index movement is
// serialized per network by the pool.
type Endpoint struct {
	name    string
	network string
	url     string
	kind    endpointKind

	healthy atomic.Bool

	connMu     sync.Mutex
	httpClient *http.Client
	grpcConn   *grpc.ClientConn
}

func newEndpoint(network, name, url string, timeout time.Duration) *Endpoint {
	kind := kindHTTP
	if strings.HasPrefix(url, "grpc://") {
		kind = kindGRPC
	}
	e := &Endpoint{
		name:    name,
		network: network,
		url:     url,
		kind:    kind,
	}
	if kind == kindHTTP {
		// Handle for HTTP endpoints is a pooled client, created eagerly.
		e.httpClient = &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	// All candidates start healthy (optimistic).
	e.healthy.Store(true)
	return e
}

// Name returns the endpoint identifier used in logs and metrics.
func (e *Endpoint) Name() string { return e.name }

// URL returns the endpoint address.
func (e *Endpoint) URL() string { return e.url }

// Healthy reports the last known health state.
func (e *Endpoint) Healthy() bool { return e.healthy.Load() }

func (e *Endpoint) setHealthy(v bool) { e.healthy.Store(v) }

// establish makes sure a usable connection handle exists. For HTTP the
// client is pre-built and this is a no-op; for gRPC it dials once and
// caches the connection.
func (e *Endpoint) establish(ctx context.Context) error {
	if e.kind == kindHTTP {
		return nil
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()

	if e.grpcConn != nil {
		return nil
	}

	target := strings.TrimPrefix(e.url, "grpc://")
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return domain.NewChainError(domain.ClassConnectivity, e.network, e.name, "dial",
			fmt.Errorf("dial grpc endpoint %s: %w", target, err))
	}
	e.grpcConn = conn
	return nil
}

// Conn returns the cached gRPC connection for generated clients. Returns an
// error for HTTP endpoints.
func (e *Endpoint) Conn(ctx context.Context) (grpc.ClientConnInterface, error) {
	if e.kind != kindGRPC {
		return nil, domain.NewChainError(domain.ClassConfiguration, e.network, e.name, "conn",
			fmt.Errorf("endpoint %s is not a grpc endpoint", e.name))
	}
	if err := e.establish(ctx); err != nil {
		return nil, err
	}
	return e.grpcConn, nil
}

// Call makes a single JSON-RPC call against the endpoint. Errors are
// classified here, at the source, and carried as *domain.ChainError.
func (e *Endpoint) Call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	if e.kind != kindHTTP {
		return nil, domain.NewChainError(domain.ClassConfiguration, e.network, e.name, method,
			fmt.Errorf("json-rpc call on grpc endpoint %s", e.name))
	}
	if params == nil {
		params = []any{}
	}

	reqBody := map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
		"id":      1,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, e.connectivityErr(method, fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, e.connectivityErr(method, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, e.connectivityErr(method, fmt.Errorf("rpc call: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, e.connectivityErr(method,
			fmt.Errorf("rate limited (429), retry after: %s", resp.Header.Get("Retry-After")))
	}
	if resp.StatusCode == http.StatusForbidden {
		return nil, e.connectivityErr(method, fmt.Errorf("blocked (403)"))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, e.connectivityErr(method, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, e.connectivityErr(method, fmt.Errorf("http %d: %s", resp.StatusCode, body))
	}

	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return nil, e.connectivityErr(method, fmt.Errorf("parse response: %w", err))
	}

	if rpcResp.Error != nil {
		class := classifyRPCError(rpcResp.Error)
		return nil, domain.NewChainError(class, e.network, e.name, method,
			fmt.Errorf("rpc error %d: %s", rpcResp.Error.Code, rpcResp.Error.Message))
	}

	return rpcResp.Result, nil
}

// HealthCheck issues a cheap read-only call to verify the endpoint is
// reachable.
func (e *Endpoint) HealthCheck(ctx context.Context, method string) error {
	if e.kind == kindGRPC {
		if err := e.establish(ctx); err != nil {
			return err
		}
		e.connMu.Lock()
		state := e.grpcConn.GetState()
		e.connMu.Unlock()
		if state == connectivity.Ready || state == connectivity.Idle {
			return nil
		}
		return domain.NewChainError(domain.ClassConnectivity, e.network, e.name, "healthcheck",
			fmt.Errorf("grpc connection state %s", state))
	}

	_, err := e.Call(ctx, method, nil)
	return err
}

// Close releases connection resources.
func (e *Endpoint) Close() error {
	if e.httpClient != nil {
		e.httpClient.CloseIdleConnections()
	}
	e.connMu.Lock()
	defer e.connMu.Unlock()
	if e.grpcConn != nil {
		err := e.grpcConn.Close()
		e.grpcConn = nil
		return err
	}
	return nil
}

func (e *Endpoint) connectivityErr(op string, err error) error {
	return domain.NewChainError(domain.ClassConnectivity, e.network, e.name, op, err)
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
