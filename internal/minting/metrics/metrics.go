package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsEnqueued tracks accepted enqueue requests per mint type
	ItemsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_items_enqueued_total",
			Help: "Total number of queue items enqueued",
		},
		[]string{"type"},
	)

	// DuplicateEnqueues tracks enqueue calls answered with an existing item
	DuplicateEnqueues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_duplicate_enqueues_total",
			Help: "Total number of enqueue requests deduplicated against an active item",
		},
		[]string{"type"},
	)

	// DrainOutcomes tracks per-item outcomes of drain cycles
	DrainOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_drain_outcomes_total",
			Help: "Total number of drain item outcomes",
		},
		[]string{"outcome"}, // completed, retried, failed, skipped
	)

	// QueueDepth tracks the number of items per status
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minter_queue_depth",
			Help: "Number of queue items per status",
		},
		[]string{"status"},
	)

	// SubmitDuration tracks chain submission latency including receipt wait
	SubmitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minter_submit_duration_seconds",
			Help:    "Chain submission latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"network", "type"},
	)

	// RPCCallsTotal tracks RPC calls per network and endpoint
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"network", "endpoint"},
	)

	// RPCErrorsTotal tracks RPC errors per network, endpoint and class
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"network", "endpoint", "class"},
	)

	// RPCFailoversTotal tracks endpoint failovers per network
	RPCFailoversTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minter_rpc_failovers_total",
			Help: "Total number of endpoint failovers",
		},
		[]string{"network"},
	)

	// EndpointHealthy reports per-endpoint health from the background probe
	EndpointHealthy = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "minter_endpoint_healthy",
			Help: "Whether an endpoint passed its last health probe (1 = healthy)",
		},
		[]string{"network", "endpoint"},
	)
)
