// Package control wires application components together and manages their
// lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"

	"github.com/HumansWindow/lastproject-sub008/internal/core/config"
	"github.com/HumansWindow/lastproject-sub008/internal/health"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/rpc/pool"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/storage"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/storage/memory"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/storage/postgres"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/chain"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/events"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/queue"
	"github.com/HumansWindow/lastproject-sub008/internal/minting/scheduler"

	redisclient "github.com/HumansWindow/lastproject-sub008/internal/infra/redis"
)

// Minter is the main application struct that manages the minting pipeline
// lifecycle.
type Minter struct {
	cfg          *config.AppConfig
	db           *postgres.DB
	redisClient  *redisclient.Client
	pool         *pool.Pool
	queue        *queue.Service
	scheduler    *scheduler.Scheduler
	healthServer *health.Server
	log          *slog.Logger

	cancel context.CancelFunc
}

// NewMinter creates a Minter with all dependencies initialized.
func NewMinter(cfg *config.AppConfig, log *slog.Logger) (*Minter, error) {
	if log == nil {
		log = slog.Default()
	}

	// 1. Storage
	var repo storage.QueueRepository
	var db *postgres.DB

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Goose needs the *sql.DB that sqlx wraps.
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		repo = postgres.NewQueueRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		repo = memory.NewQueueRepo()
		log.Info("Using Memory storage")
	}

	// 2. Endpoint pool
	specs := make([]pool.NetworkSpec, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		spec := pool.NetworkSpec{
			Name:          n.Name,
			ProbeInterval: n.ProbeInterval,
			ProbeMethod:   n.ProbeMethod,
			CallTimeout:   cfg.Queue.SubmitTimeout,
		}
		for _, ep := range n.Endpoints {
			spec.Endpoints = append(spec.Endpoints, pool.EndpointSpec{Name: ep.Name, URL: ep.URL})
		}
		specs = append(specs, spec)
	}

	endpointPool, err := pool.New(specs, log)
	if err != nil {
		return nil, fmt.Errorf("failed to init endpoint pool: %w", err)
	}

	// 3. Redis event emitter + drain lock; log-only fallback when Redis is
	// not configured.
	var emitter events.Emitter = &events.LogEmitter{Log: log}
	var redisClient *redisclient.Client
	var queueOpts []queue.Option

	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, using log emitter", "error", err)
		} else {
			emitter = redisClient
			queueOpts = append(queueOpts, queue.WithDrainLocker(redisClient))
			log.Info("Using Redis event emitter")
		}
	}

	// 4. Chain client + queue service
	submitter := chain.NewClient(endpointPool, cfg.Queue.Network, cfg.Queue.SubmitTimeout, log)

	queueSvc := queue.New(repo, submitter, emitter, queue.Config{
		BatchSize:       cfg.Queue.BatchSize,
		MaxRetries:      cfg.Queue.MaxRetries,
		BaseDelay:       cfg.Queue.BaseDelay,
		RapidBaseDelay:  cfg.Queue.RapidBaseDelay,
		ProcessingLease: cfg.Queue.ProcessingLease,
	}, log, queueOpts...)

	sched := scheduler.New(queueSvc, cfg.Queue.DrainInterval, log)

	var pinger health.Pinger
	if db != nil {
		pinger = db
	}
	healthServer := health.NewServer(queueSvc, endpointPool, pinger, cfg.Server.Port)

	return &Minter{
		cfg:          cfg,
		db:           db,
		redisClient:  redisClient,
		pool:         endpointPool,
		queue:        queueSvc,
		scheduler:    sched,
		healthServer: healthServer,
		log:          log,
	}, nil
}

// Queue exposes the queue service for CLI subcommands.
func (m *Minter) Queue() *queue.Service { return m.queue }

// Start starts the minter and all its components.
func (m *Minter) Start(ctx context.Context) error {
	ctx, m.cancel = context.WithCancel(ctx)

	go func() {
		if err := m.healthServer.Start(); err != nil {
			m.log.Error("Health server failed", "error", err)
		}
	}()

	m.pool.StartProber(ctx)

	go m.scheduler.Start(ctx)

	m.log.Info("Minter started",
		"port", m.cfg.Server.Port,
		"network", m.cfg.Queue.Network,
		"drain_interval", m.cfg.Queue.DrainInterval)
	return nil
}

// Stop stops the minter.
func (m *Minter) Stop(ctx context.Context) error {
	m.log.Info("Stopping Minter...")

	if m.cancel != nil {
		m.cancel()
	}

	if m.redisClient != nil {
		if err := m.redisClient.Close(); err != nil {
			m.log.Warn("Failed to close Redis", "error", err)
		}
	}

	m.pool.Close()

	if m.db != nil {
		if err := m.db.Close(); err != nil {
			m.log.Warn("Failed to close database", "error", err)
		}
	}

	return m.healthServer.Stop(ctx)
}
