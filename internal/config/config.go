// Package config loads bpd's configuration from a TOML file overlaid
// with CLI flags, following the teacher's DefaultConfig + toml-tag
// convention (node/ranger/config.go).
package config

import (
	"os"
	"path/filepath"

	"github.com/naoina/toml"
	"github.com/pkg/errors"
)

// Network names bpd accepts in a provider's Hello.AgentInfo.network
// field, per original_source/src/bpd/opts.rs.
const (
	NetworkMainnet  = "mainnet"
	NetworkTestnet4 = "testnet4"
	NetworkRegtest  = "regtest"
	NetworkSignet   = "signet"
)

// IndexDirName is the fixed subdirectory name under DataDir holding the
// embedded store, per spec.md §6.3.
const IndexDirName = "bp-index"

// DbType selects the embedded key/value backend.
type DbType string

const (
	DbTypeBadger   DbType = "badger"
	DbTypeLevelDB  DbType = "leveldb"
)

// Config is the full runtime configuration for bpd.
type Config struct {
	DataDir string `toml:",omitempty"`
	Network string `toml:",omitempty"`

	ProviderListenAddr string `toml:",omitempty"`
	RpcListenAddr      string `toml:",omitempty"`
	MetricsListenAddr  string `toml:",omitempty"`

	MaxProviders   int `toml:",omitempty"`
	MaxClients     int `toml:",omitempty"`
	MaxFrameSize   int `toml:",omitempty"`
	OrphanCacheCap int `toml:",omitempty"`
	BloomFilterSize int `toml:",omitempty"`

	DbType DbType `toml:",omitempty"`

	// Optional external event sink (internal/eventsink). Empty
	// KafkaBrokers disables the sink entirely.
	KafkaBrokers []string `toml:",omitempty"`
	KafkaTopic   string   `toml:",omitempty"`

	Verbosity string `toml:",omitempty"`
}

// DefaultConfig mirrors spec.md's stated defaults (§4.3 MAX_PROVIDERS=16,
// §4.4 MAX_CLIENTS=65535, §6.2 frame max 16MiB, bloom filter 32 bytes).
var DefaultConfig = Config{
	Network:            NetworkMainnet,
	ProviderListenAddr: "127.0.0.1:8333",
	RpcListenAddr:      "127.0.0.1:8433",
	MetricsListenAddr:  "127.0.0.1:9333",
	MaxProviders:       16,
	MaxClients:         65535,
	MaxFrameSize:       16 * 1024 * 1024,
	OrphanCacheCap:     64,
	BloomFilterSize:    32,
	DbType:             DbTypeBadger,
	KafkaTopic:         "bpd.mined",
	Verbosity:          "info",
}

// IndexDir returns the data directory's index subdirectory.
func (c *Config) IndexDir() string {
	return filepath.Join(c.DataDir, IndexDirName)
}

// Load reads a TOML file at path into a copy of DefaultConfig. A
// missing file is not an error: the defaults are returned as-is so
// that a bare CLI invocation with flags alone still works.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig
	if path == "" {
		return &cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, errors.Wrap(err, "config: open")
	}
	defer f.Close()
	if err := toml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	return &cfg, nil
}

// Validate checks the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("config: data-dir is required")
	}
	switch c.Network {
	case NetworkMainnet, NetworkTestnet4, NetworkRegtest, NetworkSignet:
	default:
		return errors.Errorf("config: unknown network %q", c.Network)
	}
	if c.MaxProviders <= 0 {
		return errors.New("config: max-providers must be positive")
	}
	if c.MaxClients <= 0 {
		return errors.New("config: max-clients must be positive")
	}
	if c.MaxFrameSize <= 0 || c.MaxFrameSize > 16*1024*1024 {
		return errors.New("config: max-frame-size must be in (0, 16MiB]")
	}
	if c.BloomFilterSize <= 0 {
		return errors.New("config: bloom-filter-size must be positive")
	}
	switch c.DbType {
	case DbTypeBadger, DbTypeLevelDB:
	default:
		return errors.Errorf("config: unknown db type %q", c.DbType)
	}
	return nil
}
