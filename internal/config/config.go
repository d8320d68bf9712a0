// Package config loads the daemon's typed ambient configuration from a
// TOML file, distinct from the semicolon-delimited persistence format
// internal/store reads (spec.md §6 separates the two: one is "external
// interfaces" data, the other is how this program itself is configured).
package config

import (
	"net"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Role is which role a server plays in the federation tree.
type Role string

// Server roles.
const (
	RoleMain      Role = "main"
	RoleSecondary Role = "secondary"
)

// Config is the full set of options the daemon accepts, per spec.md §6
// plus the ambient stack SPEC_FULL.md adds (logging, metrics, admin
// HTTP).
type Config struct {
	ServerName string `toml:"server_name"`
	Address    string `toml:"address"`
	Role       Role   `toml:"role"`

	MainServerName    string `toml:"main_server_name"`
	MainServerAddress string `toml:"main_server_address"`

	UsersFilePath string `toml:"users_file_path"`

	IdleTimeoutSeconds    int `toml:"idle_timeout_seconds"`
	MaxChannelsPerUser    int `toml:"max_channels_per_user"`
	FileTransferChunkSize int `toml:"file_transfer_chunk_size"`
	FileTransferOfferTTL  int `toml:"file_transfer_offer_ttl_seconds"`
	MaxNickLength         int `toml:"max_nick_length"`

	Links []LinkConfig `toml:"links"`

	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
	Admin   AdminConfig   `toml:"admin"`
}

// LinkConfig describes one configured federation neighbor beyond the
// primary main/secondary relationship (spec.md's server link table).
type LinkConfig struct {
	Name     string `toml:"name"`
	Address  string `toml:"address"`
	Password string `toml:"password"`
}

// LogConfig controls the logrus output.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig is decoded from the [metrics] table. The daemon does not
// read it: metrics are served on the admin HTTP server's /metrics route.
type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

// AdminConfig controls the read-only admin HTTP surface.
type AdminConfig struct {
	Enabled bool   `toml:"enabled"`
	Address string `toml:"address"`
}

const (
	defaultIdleTimeoutSeconds   = 120
	defaultMaxChannelsPerUser   = 10
	defaultFileTransferChunk    = 4096
	defaultFileTransferOfferTTL = 60
	defaultMaxNickLength        = 30
)

// Load reads and validates a TOML config file at path.
func Load(path string) (*Config, error) {
	cfg := &Config{
		IdleTimeoutSeconds:    defaultIdleTimeoutSeconds,
		MaxChannelsPerUser:    defaultMaxChannelsPerUser,
		FileTransferChunkSize: defaultFileTransferChunk,
		FileTransferOfferTTL:  defaultFileTransferOfferTTL,
		MaxNickLength:         defaultMaxNickLength,
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, errors.Wrap(err, "config: decode")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ServerName == "" {
		return errors.New("config: server_name is required")
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return errors.Wrap(err, "config: address")
	}
	switch c.Role {
	case RoleMain:
		if c.UsersFilePath == "" {
			return errors.New("config: users_file_path is required for role \"main\"")
		}
	case RoleSecondary:
		if c.MainServerName == "" || c.MainServerAddress == "" {
			return errors.New("config: main_server_name and main_server_address are required for role \"secondary\"")
		}
	default:
		return errors.Errorf("config: role must be %q or %q, got %q", RoleMain, RoleSecondary, c.Role)
	}
	if c.IdleTimeoutSeconds <= 0 {
		return errors.New("config: idle_timeout_seconds must be positive")
	}
	if c.MaxChannelsPerUser <= 0 {
		return errors.New("config: max_channels_per_user must be positive")
	}
	if c.FileTransferChunkSize <= 0 {
		return errors.New("config: file_transfer_chunk_size must be positive")
	}
	return nil
}
