// Package config loads the PoC Challenge Manager's configuration from a YAML
// file, overridden by environment variables, matching the precedence order
// the teacher's apiconfig package uses.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the full set of knobs the challenge manager needs at startup.
type Config struct {
	Challenger  ChallengerConfig  `koanf:"challenger" json:"challenger"`
	ChainNode   ChainNodeConfig   `koanf:"chain_node" json:"chain_node"`
	Nats        NatsConfig        `koanf:"nats" json:"nats"`
	Store       StoreConfig       `koanf:"store" json:"store"`
	AddrFilter  AddrFilterConfig  `koanf:"addr_filter" json:"addr_filter"`
	Admin       AdminConfig       `koanf:"admin" json:"admin"`
	GC          GCConfig          `koanf:"gc" json:"gc"`
}

type ChallengerConfig struct {
	PubKeyHex  string `koanf:"pubkey_hex" json:"pubkey_hex"`
	SignerName string `koanf:"signer_name" json:"signer_name"`
}

type ChainNodeConfig struct {
	GrpcUrl        string `koanf:"grpc_url" json:"grpc_url"`
	KeyringBackend string `koanf:"keyring_backend" json:"keyring_backend"`
	KeyringDir     string `koanf:"keyring_dir" json:"keyring_dir"`
}

type NatsConfig struct {
	Host             string `koanf:"host" json:"host"`
	Port             int    `koanf:"port" json:"port"`
	BlockEventStream string `koanf:"block_event_stream" json:"block_event_stream"`
}

type StoreConfig struct {
	Dir string `koanf:"dir" json:"dir"`
}

type AddrFilterConfig struct {
	ByteCount int `koanf:"byte_count" json:"byte_count"`
}

type AdminConfig struct {
	Port int `koanf:"port" json:"port"`
}

// GCConfig overrides the spec's default GC cadences; zero values are
// filled in by applyDefaults (50 blocks, 100 blocks, 500ms).
type GCConfig struct {
	KeyCacheEveryBlocks   int64         `koanf:"key_cache_every_blocks" json:"key_cache_every_blocks"`
	PublicPocEveryBlocks  int64         `koanf:"public_poc_every_blocks" json:"public_poc_every_blocks"`
	BootstrapRetryBackoff time.Duration `koanf:"bootstrap_retry_backoff" json:"bootstrap_retry_backoff"`
}

// Load reads path (unless it is empty; a missing file is an error) and
// then overlays POCMGR_-prefixed
// environment variables, following the teacher's file-then-env precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %q: %w", path, err)
		}
	}

	envProvider := env.Provider("POCMGR_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "POCMGR_")), "_", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.GC.KeyCacheEveryBlocks == 0 {
		cfg.GC.KeyCacheEveryBlocks = 50
	}
	if cfg.GC.PublicPocEveryBlocks == 0 {
		cfg.GC.PublicPocEveryBlocks = 100
	}
	if cfg.GC.BootstrapRetryBackoff == 0 {
		cfg.GC.BootstrapRetryBackoff = 500 * time.Millisecond
	}
	if cfg.AddrFilter.ByteCount == 0 {
		cfg.AddrFilter.ByteCount = 8
	}
}
