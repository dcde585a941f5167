package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	petname "github.com/dustinkirkland/golang-petname"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"

	"github.com/gordian-engine/godos/od/odproposal"
)

// envPrefix marks environment variables that override the config file.
// A double underscore separates levels, so GODOS_ORDERING__WINDOW_SIZE
// sets ordering.window_size.
const envPrefix = "GODOS_"

// Config is the full node configuration.
type Config struct {
	Node     NodeConfig     `koanf:"node"`
	Ordering OrderingConfig `koanf:"ordering"`
	Debug    DebugConfig    `koanf:"debug"`
	Log      LogConfig      `koanf:"log"`
	Demo     DemoConfig     `koanf:"demo"`
}

type NodeConfig struct {
	// Human-readable name used in logs. A random name is chosen if empty.
	Name string `koanf:"name"`

	ListenAddrs []string `koanf:"listen_addrs"`

	// Full multiaddrs including the /p2p/ component.
	Peers []string `koanf:"peers"`

	GossipTopic string `koanf:"gossip_topic"`
}

type OrderingConfig struct {
	WindowSize int `koanf:"window_size"`

	MaxBatchesPerProposal      int `koanf:"max_batches_per_proposal"`
	MaxTransactionsPerBatch    int `koanf:"max_transactions_per_batch"`
	MaxTransactionsPerProposal int `koanf:"max_transactions_per_proposal"`

	ExclusionMemory int `koanf:"exclusion_memory"`

	FetchTimeout     time.Duration `koanf:"fetch_timeout"`
	FetchParallelism int           `koanf:"fetch_parallelism"`

	// How many upcoming rounds' proposers receive forwarded batches.
	// Zero disables forwarding.
	ForwardRounds int `koanf:"forward_rounds"`
}

// Limits returns the proposal limits in the form the service accepts.
func (c OrderingConfig) Limits() odproposal.Limits {
	return odproposal.Limits{
		MaxBatchesPerProposal:      c.MaxBatchesPerProposal,
		MaxTransactionsPerBatch:    c.MaxTransactionsPerBatch,
		MaxTransactionsPerProposal: c.MaxTransactionsPerProposal,
	}
}

type DebugConfig struct {
	// Unix socket serving the debug HTTP routes; empty disables it.
	Socket string `koanf:"socket"`

	// Optional TCP address serving the same routes.
	HTTPAddr string `koanf:"http_addr"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DemoConfig drives a synthetic workload, for trying out a small network.
type DemoConfig struct {
	Enabled bool `koanf:"enabled"`

	BatchInterval time.Duration `koanf:"batch_interval"`
	RoundInterval time.Duration `koanf:"round_interval"`

	TxsPerBatch int `koanf:"txs_per_batch"`
}

func defaultConfigMap() map[string]any {
	return map[string]any{
		"node.listen_addrs": []string{"/ip4/127.0.0.1/tcp/0"},
		"node.gossip_topic": "godos/batches/1",

		"ordering.exclusion_memory":  1 << 16,
		"ordering.fetch_timeout":     "2s",
		"ordering.fetch_parallelism": 2,
		"ordering.forward_rounds":    2,

		"log.level":  "info",
		"log.format": "text",

		"demo.batch_interval": "250ms",
		"demo.round_interval": "2s",
		"demo.txs_per_batch":  4,
	}
}

// LoadConfig builds the configuration from defaults,
// then the YAML file at path if path is not empty,
// then GODOS_ environment variables.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaultConfigMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %q: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if cfg.Node.Name == "" {
		cfg.Node.Name = petname.Generate(2, "-")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate performs config validation.
func (cfg *Config) Validate() error {
	if err := cfg.Ordering.Validate(); err != nil {
		return fmt.Errorf("ordering: %w", err)
	}
	if err := cfg.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if cfg.Demo.Enabled {
		if err := cfg.Demo.Validate(); err != nil {
			return fmt.Errorf("demo: %w", err)
		}
	}
	if len(cfg.Node.ListenAddrs) == 0 {
		return errors.New("node: at least one listen address is required")
	}
	return nil
}

func (c OrderingConfig) Validate() error {
	var errs []error
	if c.WindowSize <= 0 {
		errs = append(errs, errors.New("window_size must be set to a positive value"))
	}
	if err := c.Limits().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.FetchTimeout <= 0 {
		errs = append(errs, errors.New("fetch_timeout must be positive"))
	}
	if c.ExclusionMemory <= 0 {
		errs = append(errs, errors.New("exclusion_memory must be positive"))
	}
	if c.ForwardRounds < 0 {
		errs = append(errs, errors.New("forward_rounds must not be negative"))
	}
	return errors.Join(errs...)
}

func (c LogConfig) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch c.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("unknown format %q (want text or json)", c.Format)
	}
}

// SlogLevel parses Level.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return 0, fmt.Errorf("invalid level %q: %w", c.Level, err)
	}
	return lvl, nil
}

func (c DemoConfig) Validate() error {
	var errs []error
	if c.BatchInterval <= 0 {
		errs = append(errs, errors.New("batch_interval must be positive"))
	}
	if c.RoundInterval <= 0 {
		errs = append(errs, errors.New("round_interval must be positive"))
	}
	if c.TxsPerBatch <= 0 {
		errs = append(errs, errors.New("txs_per_batch must be positive"))
	}
	return errors.Join(errs...)
}
