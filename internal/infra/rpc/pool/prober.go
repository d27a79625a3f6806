package pool

import (
	"context"
	"time"

	"github.com/HumansWindow/lastproject-sub008/internal/minting/metrics"
)

// StartProber launches one background probe loop per network. Probing never
// blocks request paths: it only flips per-candidate health flags, which the
// request path reads lock-free.
func (p *Pool) StartProber(ctx context.Context) {
	for _, n := range p.networks {
		go p.probeLoop(ctx, n)
	}
}

func (p *Pool) probeLoop(ctx context.Context, n *network) {
	ticker := time.NewTicker(n.probeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeNetwork(ctx, n)
		}
	}
}

// probeNetwork issues the cheap read-only probe against every candidate and
// updates health state. Candidates are snapshotted under the lock; network
// calls happen outside it.
func (p *Pool) probeNetwork(ctx context.Context, n *network) {
	n.mu.Lock()
	candidates := make([]*Endpoint, len(n.candidates))
	copy(candidates, n.candidates)
	method := n.probeMethod
	n.mu.Unlock()

	for _, ep := range candidates {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := ep.HealthCheck(probeCtx, method)
		cancel()

		wasHealthy := ep.Healthy()
		ep.setHealthy(err == nil)

		healthyVal := 0.0
		if err == nil {
			healthyVal = 1
		}
		metrics.EndpointHealthy.WithLabelValues(n.name, ep.Name()).Set(healthyVal)

		if err != nil && wasHealthy {
			p.log.Warn("Endpoint probe failed",
				"network", n.name, "endpoint", ep.Name(), "error", err)
		} else if err == nil && !wasHealthy {
			p.log.Info("Endpoint recovered",
				"network", n.name, "endpoint", ep.Name())
		}
	}
}
