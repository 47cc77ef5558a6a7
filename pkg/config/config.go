// Package config loads node configuration for ezchaind from a YAML file with
// environment-variable substitution, following the same pattern the protocol's
// anchor-validator ancestor used for its service configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for an ezchaind process, whether it runs as
// an account node, a consensus node, or both in a single process for testing.
type Config struct {
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`

	Node      NodeSettings      `yaml:"node"`
	Crypto    CryptoSettings    `yaml:"crypto"`
	Pool      PoolSettings      `yaml:"pool"`
	Assembler AssemblerSettings `yaml:"assembler"`
	Chain     ChainSettings     `yaml:"chain"`
	Genesis   GenesisSettings   `yaml:"genesis"`
	Metrics   MetricsSettings   `yaml:"metrics"`
}

// NodeSettings controls the identity and role of this process.
type NodeSettings struct {
	ID       string `yaml:"id"`
	Role     string `yaml:"role"` // "account", "consensus", or "combined"
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`
}

// CryptoSettings controls key material location.
type CryptoSettings struct {
	KeyPath         string `yaml:"key_path"`
	ProtocolVersion uint32 `yaml:"protocol_version"`
}

// PoolSettings controls the transaction pool (C5).
type PoolSettings struct {
	MaxAge          Duration `yaml:"max_age"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
	Backend         string   `yaml:"backend"` // "memory", "kvstore", or "sqlstore"
	KVStoreDir      string   `yaml:"kvstore_dir"`
	DatabaseURL     string   `yaml:"database_url"`
}

// AssemblerSettings controls the block assembler (C6).
type AssemblerSettings struct {
	Strategy               string `yaml:"strategy"` // "fifo" or "fee"
	MaxSubmissionsPerBlock int    `yaml:"max_submissions_per_block"`
}

// ChainSettings controls the blockchain and fork engine (C7).
type ChainSettings struct {
	ConfirmationBlocks uint64   `yaml:"confirmation_blocks"`
	MaxForkHeight       uint64   `yaml:"max_fork_height"`
	StoreDir            string   `yaml:"store_dir"`
	MaxBackups           int      `yaml:"max_backups"`
	AutoSaveInterval     Duration `yaml:"auto_save_interval"`
}

// GenesisSettings controls genesis block construction (C9).
type GenesisSettings struct {
	Accounts     []string              `yaml:"accounts"`
	Denominations []GenesisDenomination `yaml:"denominations"`
	Miner        string                `yaml:"miner"`
}

// GenesisDenomination is one (amount, count) pair in the genesis schedule.
type GenesisDenomination struct {
	Amount uint64 `yaml:"amount"`
	Count  uint64 `yaml:"count"`
}

// MetricsSettings controls the prometheus exporter.
type MetricsSettings struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Duration wraps time.Duration for YAML unmarshaling as human-readable strings.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-(.*?))?\}`)

// substituteEnvVars replaces ${VAR} and ${VAR:-default} with the environment
// value, falling back to the inline default when the variable is unset.
func substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultValue := ""
		if len(groups) >= 4 {
			defaultValue = groups[3]
		}
		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}

// Load reads configuration from a YAML file, substituting ${VAR} references
// against the process environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := substituteEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns a configuration with the protocol's default tunables,
// suitable as a base for Load or for tests that don't need a file on disk.
func Default() *Config {
	return &Config{
		Environment: "devnet",
		Version:     "v1",
		Node: NodeSettings{
			ID:       "node-default",
			Role:     "combined",
			DataDir:  "./data",
			LogLevel: "info",
		},
		Crypto: CryptoSettings{
			ProtocolVersion: 1,
		},
		Pool: PoolSettings{
			MaxAge:          Duration(2 * time.Hour),
			CleanupInterval: Duration(5 * time.Minute),
			Backend:         "memory",
			KVStoreDir:      "./data/pool",
		},
		Assembler: AssemblerSettings{
			Strategy:               "fifo",
			MaxSubmissionsPerBlock: 100,
		},
		Chain: ChainSettings{
			ConfirmationBlocks: 6,
			MaxForkHeight:       50,
			StoreDir:            "./data/chain",
			MaxBackups:           10,
			AutoSaveInterval:     Duration(time.Minute),
		},
		Metrics: MetricsSettings{
			Enabled: true,
			Addr:    "0.0.0.0:9090",
		},
	}
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	var errs []string
	if c.Node.ID == "" {
		errs = append(errs, "node.id is required")
	}
	switch c.Node.Role {
	case "account", "consensus", "combined":
	default:
		errs = append(errs, fmt.Sprintf("node.role %q must be one of account/consensus/combined", c.Node.Role))
	}
	if c.Assembler.MaxSubmissionsPerBlock <= 0 {
		errs = append(errs, "assembler.max_submissions_per_block must be positive")
	}
	if c.Chain.ConfirmationBlocks == 0 {
		errs = append(errs, "chain.confirmation_blocks must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %v", errs)
	}
	return nil
}
