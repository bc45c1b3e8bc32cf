package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/danmuck/linkctl/internal/protocol"
)

// Config is the demo binary's surface: where to listen or dial and how the
// engine's limits are tuned. The engine itself carries no configuration.
type Config struct {
	Network         string
	Address         string
	MaxMessageBytes uint32
	CallTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Network:         "tcp",
		Address:         "127.0.0.1:7411",
		MaxMessageBytes: protocol.DefaultLimits().MaxMessageBytes,
		CallTimeout:     10 * time.Second,
	}
}

func (c Config) Validate() error {
	switch c.Network {
	case "tcp", "tcp4", "tcp6", "unix", "websocket":
	default:
		return fmt.Errorf("config: unsupported network %q", c.Network)
	}
	if strings.TrimSpace(c.Address) == "" {
		return fmt.Errorf("config: missing address")
	}
	if c.MaxMessageBytes == 0 {
		return fmt.Errorf("config: max_message_bytes must be positive")
	}
	return nil
}

func (c Config) Limits() protocol.Limits {
	return protocol.Limits{MaxMessageBytes: c.MaxMessageBytes}
}

type fileConfig struct {
	Network         string `toml:"network"`
	Address         string `toml:"address"`
	MaxMessageBytes int64  `toml:"max_message_bytes"`
	CallTimeout     string `toml:"call_timeout"`
}

// LoadFile overlays the file's defined keys onto the defaults.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("network") {
		cfg.Network = strings.TrimSpace(raw.Network)
	}
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("max_message_bytes") {
		if raw.MaxMessageBytes <= 0 || raw.MaxMessageBytes > int64(^uint32(0)) {
			return Config{}, fmt.Errorf("config: max_message_bytes out of range: %d", raw.MaxMessageBytes)
		}
		cfg.MaxMessageBytes = uint32(raw.MaxMessageBytes)
	}
	if meta.IsDefined("call_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CallTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse call_timeout: %w", err)
		}
		cfg.CallTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
