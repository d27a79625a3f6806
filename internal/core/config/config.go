package config

import (
	"time"

	redisclient "github.com/HumansWindow/lastproject-sub008/internal/infra/redis"
	"github.com/HumansWindow/lastproject-sub008/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Networks []NetworkConfig    `yaml:"networks"`
	Queue    QueueConfig        `yaml:"queue"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// NetworkConfig holds settings for one logical blockchain network. The
// endpoint list is ordered: the primary comes first, static fallbacks for
// known networks are appended by the pool at startup.
type NetworkConfig struct {
	Name          string           `yaml:"name"`
	Endpoints     []EndpointConfig `yaml:"endpoints"`
	ProbeInterval time.Duration    `yaml:"probe_interval"`
	ProbeMethod   string           `yaml:"probe_method"` // cheap read-only RPC, default eth_blockNumber
}

// EndpointConfig holds settings for one RPC endpoint.
type EndpointConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// QueueConfig holds minting queue settings.
type QueueConfig struct {
	Network         string        `yaml:"network"` // network the chain client submits to
	BatchSize       int           `yaml:"batch_size"`
	MaxRetries      int           `yaml:"max_retries"`
	BaseDelay       time.Duration `yaml:"base_delay"`       // backoff base for scheduled drains
	RapidBaseDelay  time.Duration `yaml:"rapid_base_delay"` // backoff base for manual drains
	ProcessingLease time.Duration `yaml:"processing_lease"` // Processing items older than this are released
	DrainInterval   time.Duration `yaml:"drain_interval"`
	SubmitTimeout   time.Duration `yaml:"submit_timeout"` // bounded wait for a receipt
}
