// Package pool provides resilient outbound connectivity to blockchain RPC
// endpoints. Each logical network owns an ordered candidate list, an active
// index and per-candidate health flags; requests transparently route around
// endpoints that are down, rate-limited or slow.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/HumansWindow/lastproject-sub008/internal/core/domain"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/metrics"
)

// EndpointSpec configures one candidate endpoint.
type EndpointSpec struct {
	Name string
	URL  string
}

// NetworkSpec configures one logical network.
type NetworkSpec struct {
	Name          string
	Endpoints     []EndpointSpec
	ProbeInterval time.Duration
	ProbeMethod   string
	CallTimeout   time.Duration
}

// Operation is executed against a connection handle by ExecuteWithFallback.
type Operation func(ctx context.Context, ep *Endpoint) error

// network holds all mutable state for one logical network behind a single
// mutex, so the candidate list, index and switch timestamp cannot drift
// apart under concurrent callers.
type network struct {
	mu sync.Mutex

	name          string
	candidates    []*Endpoint
	active        int
	lastSwitch    time.Time
	probeInterval time.Duration
	probeMethod   string
}

// Pool hands out usable connection handles per network. The network map is
// fixed at startup; only per-network state mutates afterwards.
type Pool struct {
	networks map[string]*network
	log      *slog.Logger
}

// New builds a pool from network specs. Configured endpoints come first,
// static fallbacks for known networks are appended, duplicate URLs removed.
// A network that ends up with zero candidates is a configuration error.
func New(specs []NetworkSpec, log *slog.Logger) (*Pool, error) {
	if log == nil {
		log = slog.Default()
	}

	p := &Pool{
		networks: make(map[string]*network, len(specs)),
		log:      log,
	}

	for _, spec := range specs {
		timeout := spec.CallTimeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}

		seen := make(map[string]bool)
		var candidates []*Endpoint
		for _, es := range spec.Endpoints {
			if es.URL == "" || seen[es.URL] {
				continue
			}
			seen[es.URL] = true
			name := es.Name
			if name == "" {
				name = fmt.Sprintf("%s-%d", spec.Name, len(candidates))
			}
			candidates = append(candidates, newEndpoint(spec.Name, name, es.URL, timeout))
		}
		for i, url := range defaultFallbacks[spec.Name] {
			if seen[url] {
				continue
			}
			seen[url] = true
			name := fmt.Sprintf("%s-fallback-%d", spec.Name, i)
			candidates = append(candidates, newEndpoint(spec.Name, name, url, timeout))
		}

		if len(candidates) == 0 {
			return nil, &domain.ConfigurationError{Network: spec.Name, Reason: "no endpoints configured"}
		}

		probeInterval := spec.ProbeInterval
		if probeInterval == 0 {
			probeInterval = 5 * time.Minute
		}
		probeMethod := spec.ProbeMethod
		if probeMethod == "" {
			probeMethod = "eth_blockNumber"
		}

		p.networks[spec.Name] = &network{
			name:          spec.Name,
			candidates:    candidates,
			probeInterval: probeInterval,
			probeMethod:   probeMethod,
		}
	}

	return p, nil
}

func (p *Pool) network(name string) (*network, error) {
	n, ok := p.networks[name]
	if !ok {
		return nil, &domain.ConfigurationError{Network: name, Reason: "unknown network"}
	}
	return n, nil
}

// GetConnection returns a handle for the currently active candidate,
// establishing one if needed. Establishment failures mark the candidate
// unhealthy and move on, bounded by the pool size.
func (p *Pool) GetConnection(ctx context.Context, networkName string) (*Endpoint, error) {
	n, err := p.network(networkName)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	for attempt := 0; attempt < len(n.candidates); attempt++ {
		ep := n.candidates[n.active]
		if ep.Healthy() {
			if err := ep.establish(ctx); err == nil {
				return ep, nil
			}
			ep.setHealthy(false)
			p.log.Warn("Endpoint establish failed, marking unhealthy",
				"network", networkName, "endpoint", ep.Name())
		}
		n.advanceLocked(p.log)
	}

	// Every candidate is unhealthy. Reset optimistically: bounds worst-case
	// unavailability to one probe cycle instead of a permanent lockout.
	ep := n.resetLocked(p.log)
	if err := ep.establish(ctx); err != nil {
		return nil, err
	}
	return ep, nil
}

// Advance moves the active index to the next healthy candidate, wrapping
// around. With no healthy candidate left it resets all to healthy and
// selects index 0.
func (p *Pool) Advance(networkName string) (*Endpoint, error) {
	n, err := p.network(networkName)
	if err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.advanceLocked(p.log)
	for attempt := 0; attempt < len(n.candidates); attempt++ {
		if n.candidates[n.active].Healthy() {
			return n.candidates[n.active], nil
		}
		n.advanceLocked(p.log)
	}
	return n.resetLocked(p.log), nil
}

// ExecuteWithFallback runs op against the current connection, advancing
// through candidates on connectivity failures. Attempts are bounded by the
// pool size; terminal and configuration errors propagate immediately.
func (p *Pool) ExecuteWithFallback(ctx context.Context, networkName string, op Operation) error {
	n, err := p.network(networkName)
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < len(n.candidates); attempt++ {
		ep, err := p.GetConnection(ctx, networkName)
		if err != nil {
			if !domain.Retryable(err) {
				return err
			}
			lastErr = err
			continue
		}

		err = op(ctx, ep)
		metrics.RPCCallsTotal.WithLabelValues(networkName, ep.Name()).Inc()
		if err == nil {
			return nil
		}
		lastErr = err

		if !domain.Retryable(err) {
			metrics.RPCErrorsTotal.WithLabelValues(networkName, ep.Name(), "terminal").Inc()
			return err
		}
		metrics.RPCErrorsTotal.WithLabelValues(networkName, ep.Name(), "connectivity").Inc()

		ep.setHealthy(false)
		if _, err := p.Advance(networkName); err != nil {
			return err
		}
		metrics.RPCFailoversTotal.WithLabelValues(networkName).Inc()
	}

	return lastErr
}

// ActiveEndpoint returns the current active candidate without advancing.
func (p *Pool) ActiveEndpoint(networkName string) (*Endpoint, error) {
	n, err := p.network(networkName)
	if err != nil {
		return nil, err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.candidates[n.active], nil
}

// HealthyCount returns the number of healthy candidates for a network.
func (p *Pool) HealthyCount(networkName string) int {
	n, err := p.network(networkName)
	if err != nil {
		return 0
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	count := 0
	for _, ep := range n.candidates {
		if ep.Healthy() {
			count++
		}
	}
	return count
}

// EndpointHealth is a point-in-time view of one candidate.
type EndpointHealth struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Healthy bool   `json:"healthy"`
	Active  bool   `json:"active"`
}

// Snapshot reports per-network endpoint health for diagnostics.
func (p *Pool) Snapshot() map[string][]EndpointHealth {
	out := make(map[string][]EndpointHealth, len(p.networks))
	for name, n := range p.networks {
		n.mu.Lock()
		report := make([]EndpointHealth, 0, len(n.candidates))
		for i, ep := range n.candidates {
			report = append(report, EndpointHealth{
				Name:    ep.Name(),
				URL:     ep.URL(),
				Healthy: ep.Healthy(),
				Active:  i == n.active,
			})
		}
		n.mu.Unlock()
		out[name] = report
	}
	return out
}

// Close releases all endpoint resources.
func (p *Pool) Close() {
	for _, n := range p.networks {
		n.mu.Lock()
		for _, ep := range n.candidates {
			_ = ep.Close()
		}
		n.mu.Unlock()
	}
}

// advanceLocked moves the index one step. Caller holds n.mu. The switch
// timestamp only rate-limits log noise.
func (n *network) advanceLocked(log *slog.Logger) {
	prev := n.active
	n.active = (n.active + 1) % len(n.candidates)

	now := time.Now()
	if now.Sub(n.lastSwitch) > 30*time.Second {
		log.Info("Switched active endpoint",
			"network", n.name,
			"from", n.candidates[prev].Name(),
			"to", n.candidates[n.active].Name())
	}
	n.lastSwitch = now
}

// resetLocked marks every candidate healthy and selects index 0. Caller
// holds n.mu.
func (n *network) resetLocked(log *slog.Logger) *Endpoint {
	for _, ep := range n.candidates {
		ep.setHealthy(true)
	}
	n.active = 0
	log.Warn("All endpoints unhealthy, resetting pool optimistically", "network", n.name)
	return n.candidates[0]
}
