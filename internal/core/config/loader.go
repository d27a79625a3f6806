package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))

	var cfg AppConfig
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	for i := range cfg.Networks {
		if cfg.Networks[i].ProbeInterval == 0 {
			cfg.Networks[i].ProbeInterval = 5 * time.Minute
		}
		if cfg.Networks[i].ProbeMethod == "" {
			cfg.Networks[i].ProbeMethod = "eth_blockNumber"
		}
	}

	if cfg.Queue.Network == "" && len(cfg.Networks) > 0 {
		cfg.Queue.Network = cfg.Networks[0].Name
	}
	if cfg.Queue.BatchSize == 0 {
		cfg.Queue.BatchSize = 10
	}
	if cfg.Queue.MaxRetries == 0 {
		cfg.Queue.MaxRetries = 3
	}
	if cfg.Queue.BaseDelay == 0 {
		cfg.Queue.BaseDelay = 5 * time.Minute
	}
	if cfg.Queue.RapidBaseDelay == 0 {
		cfg.Queue.RapidBaseDelay = 30 * time.Second
	}
	if cfg.Queue.ProcessingLease == 0 {
		cfg.Queue.ProcessingLease = 15 * time.Minute
	}
	if cfg.Queue.DrainInterval == 0 {
		cfg.Queue.DrainInterval = time.Minute
	}
	if cfg.Queue.SubmitTimeout == 0 {
		cfg.Queue.SubmitTimeout = 90 * time.Second
	}
}
