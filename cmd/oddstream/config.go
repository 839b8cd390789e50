package main

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"

	configtypes "github.com/oddstream/oddstream-go/internal/config"
)

type config struct {
	LogLevel string `yaml:"log_level"` // debug, info, warn, error
	Service  struct {
		URL             string `yaml:"url"`
		SubscriptionURL string `yaml:"subscription_url"`
	} `yaml:"service"`
	Wallet struct {
		ChainID    string                        `yaml:"chain_id"`
		PrivateKey configtypes.Ed25519PrivateKey `yaml:"private_key"`
		UseFaucet  bool                          `yaml:"use_faucet"`
	} `yaml:"wallet"`
	Batch struct {
		Window   configtypes.Duration `yaml:"window"`
		FailFast *bool                `yaml:"fail_fast"`
	} `yaml:"batch"`
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Database string `yaml:"database"`
		PoolSize int    `yaml:"pool_size"`
		SSLMode  string `yaml:"ssl_mode"`
	} `yaml:"database"`
	Collector struct {
		SnapshotInterval configtypes.Duration `yaml:"snapshot_interval"`
		HistoryWindow    configtypes.Duration `yaml:"history_window"`
	} `yaml:"collector"`
	Agent struct {
		Markets           []string             `yaml:"markets"`
		Spread            configtypes.Decimal  `yaml:"spread"`
		OrderSize         configtypes.Decimal  `yaml:"order_size"`
		MaxExposure       configtypes.Decimal  `yaml:"max_exposure"`
		RebalanceInterval configtypes.Duration `yaml:"rebalance_interval"`
	} `yaml:"agent"`
}

func readConfig(configPath *string) (*config, error) {
	rawConfig, err := os.ReadFile(*configPath)
	if err != nil {
		return nil, fmt.Errorf("couldn't read file %s: %w", *configPath, err)
	}

	cfg := &config{}
	if err = yaml.Unmarshal(rawConfig, cfg); err != nil {
		return nil, fmt.Errorf("couldn't parse config: %w", err)
	}

	err = validateConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("couldn't validate config: %w", err)
	}

	return cfg, nil
}

func validateConfig(cfg *config) error {
	// Service
	if cfg.Service.URL == "" {
		return fmt.Errorf("service.url is required")
	}
	if cfg.Service.SubscriptionURL == "" {
		return fmt.Errorf("service.subscription_url is required")
	}

	// Wallet: a private key is always required; the chain id only
	// when the faucet isn't bootstrapping one.
	if cfg.Wallet.PrivateKey.PrivateKey == nil {
		return fmt.Errorf("wallet.private_key is required")
	}
	if !cfg.Wallet.UseFaucet && cfg.Wallet.ChainID == "" {
		return fmt.Errorf("wallet.chain_id is required unless wallet.use_faucet is set")
	}

	return nil
}

// validateDatabaseConfig is only enforced for the collect subcommand;
// everything else runs without a database.
func validateDatabaseConfig(cfg *config) error {
	if cfg.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535")
	}
	if cfg.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if cfg.Database.Password == "" {
		return fmt.Errorf("database.password is required")
	}
	if cfg.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if cfg.Database.PoolSize <= 0 {
		return fmt.Errorf("database.pool_size must be greater than 0")
	}
	if cfg.Database.SSLMode == "" {
		return fmt.Errorf("database.ssl_mode is required")
	}
	return nil
}

func validateAgentConfig(cfg *config) error {
	if !cfg.Agent.Spread.IsPositive() {
		return fmt.Errorf("agent.spread must be greater than 0")
	}
	if !cfg.Agent.OrderSize.IsPositive() {
		return fmt.Errorf("agent.order_size must be greater than 0")
	}
	if cfg.Agent.RebalanceInterval.Duration() <= 0 {
		return fmt.Errorf("agent.rebalance_interval is required")
	}
	return nil
}
