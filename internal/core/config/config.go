// Package config handles configuration loading and validation for parley.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/hay-kot/criterio"
	"gopkg.in/yaml.v3"

	"github.com/hay-kot/parley/internal/core/validate"
	"github.com/hay-kot/parley/pkg/tmpl"
)

// Storage backend names.
const (
	BackendMemory   = "memory"
	BackendJSONFile = "jsonfile"
	BackendSQLite   = "sqlite"
	BackendMongo    = "mongo"
	BackendRedis    = "redis"
)

// Config holds the application configuration.
type Config struct {
	// Username is the local identity. Defaults to the hostname.
	Username string `yaml:"username"`
	// Listen is the address the HTTP server binds.
	Listen string `yaml:"listen"`
	// Advertise is the address other nodes use to reach this one. Detected
	// from the outbound interface when empty.
	Advertise string          `yaml:"advertise"`
	Storage   StorageConfig   `yaml:"storage"`
	Peers     PeersConfig     `yaml:"peers"`
	Presence  PresenceConfig  `yaml:"presence"`
	Sync      SyncConfig      `yaml:"sync"`
	Transport TransportConfig `yaml:"transport"`
	History   HistoryConfig   `yaml:"history"`
	// Hooks run shell commands when new messages arrive on a serving node.
	Hooks     []Hook          `yaml:"hooks"`
	DataDir   string          `yaml:"-"` // set by caller, not from config file
}

// StorageConfig selects the message store.
type StorageConfig struct {
	Backend string        `yaml:"backend"`
	Timeout time.Duration `yaml:"timeout"`
	Mongo   MongoConfig   `yaml:"mongo"`
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// PeersConfig selects the peer directory. An empty backend shares the
// storage backend.
type PeersConfig struct {
	Backend string      `yaml:"backend"`
	Redis   RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr string `yaml:"addr"`
}

type PresenceConfig struct {
	Window time.Duration `yaml:"window"`
}

type SyncConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type TransportConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type HistoryConfig struct {
	// Limit is the default number of messages shown. 0 shows everything.
	Limit int `yaml:"limit"`
}

// Hook runs Commands for every new message whose sender matches From.
// Commands are Go templates rendered with the message and run with sh -c.
type Hook struct {
	// From is a glob on the sender username. Empty matches everyone.
	From     string   `yaml:"from"`
	Commands []string `yaml:"commands"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Username: defaultUsername(),
		Listen:   ":5000",
		Storage: StorageConfig{
			Backend: BackendSQLite,
			Timeout: 5 * time.Second,
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "parley",
			},
		},
		Peers: PeersConfig{
			Redis: RedisConfig{Addr: "localhost:6379"},
		},
		Presence:  PresenceConfig{Window: 5 * time.Minute},
		Sync:      SyncConfig{Interval: 2 * time.Second},
		Transport: TransportConfig{Timeout: 5 * time.Second},
		History:   HistoryConfig{Limit: 100},
	}
}

func defaultUsername() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "parley"
	}
	return name
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the provided dataDir.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			// Re-set dataDir since Unmarshal may have cleared it
			cfg.DataDir = dataDir
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for any unset configuration options.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Username == "" {
		c.Username = defaults.Username
	}
	if c.Listen == "" {
		c.Listen = defaults.Listen
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Storage.Timeout == 0 {
		c.Storage.Timeout = defaults.Storage.Timeout
	}
	if c.Storage.Mongo.URI == "" {
		c.Storage.Mongo.URI = defaults.Storage.Mongo.URI
	}
	if c.Storage.Mongo.Database == "" {
		c.Storage.Mongo.Database = defaults.Storage.Mongo.Database
	}
	if c.Peers.Backend == "" {
		c.Peers.Backend = c.Storage.Backend
	}
	if c.Peers.Redis.Addr == "" {
		c.Peers.Redis.Addr = defaults.Peers.Redis.Addr
	}
	if c.Presence.Window == 0 {
		c.Presence.Window = defaults.Presence.Window
	}
	if c.Sync.Interval == 0 {
		c.Sync.Interval = defaults.Sync.Interval
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = defaults.Transport.Timeout
	}
}

// Validate checks that the configuration is valid. Errors are reported per
// field as criterio.FieldErrors.
func (c *Config) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if err := validate.Username(c.Username); err != nil {
		errs = errs.Append("username", err)
	}
	if err := validate.ListenAddress(c.Listen); err != nil {
		errs = errs.Append("listen", err)
	}
	if c.Advertise != "" {
		if err := validate.Address(c.Advertise); err != nil {
			errs = errs.Append("advertise", err)
		}
	}
	if c.DataDir == "" {
		errs = errs.Append("data_dir", fmt.Errorf("cannot be empty"))
	}

	switch c.Storage.Backend {
	case BackendMemory, BackendJSONFile, BackendSQLite, BackendMongo:
	default:
		errs = errs.Append("storage.backend", fmt.Errorf("unknown backend %q (want memory, jsonfile, sqlite or mongo)", c.Storage.Backend))
	}
	switch c.Peers.Backend {
	case BackendMemory, BackendJSONFile, BackendSQLite, BackendMongo, BackendRedis:
	default:
		errs = errs.Append("peers.backend", fmt.Errorf("unknown backend %q (want memory, jsonfile, sqlite, mongo or redis)", c.Peers.Backend))
	}

	if c.UsesBackend(BackendMongo) {
		if c.Storage.Mongo.URI == "" {
			errs = errs.Append("storage.mongo.uri", fmt.Errorf("required for the mongo backend"))
		}
		if c.Storage.Mongo.Database == "" {
			errs = errs.Append("storage.mongo.database", fmt.Errorf("required for the mongo backend"))
		}
	}
	if c.UsesBackend(BackendRedis) {
		if err := validate.Address(c.Peers.Redis.Addr); err != nil {
			errs = errs.Append("peers.redis.addr", err)
		}
	}

	if c.Storage.Timeout < 0 {
		errs = errs.Append("storage.timeout", fmt.Errorf("must be positive"))
	}
	if c.Presence.Window < 0 {
		errs = errs.Append("presence.window", fmt.Errorf("must be positive"))
	}
	if c.Sync.Interval < 0 {
		errs = errs.Append("sync.interval", fmt.Errorf("must be positive"))
	}
	if c.Transport.Timeout < 0 {
		errs = errs.Append("transport.timeout", fmt.Errorf("must be positive"))
	}
	if c.History.Limit < 0 {
		errs = errs.Append("history.limit", fmt.Errorf("must not be negative"))
	}

	for i, h := range c.Hooks {
		field := fmt.Sprintf("hooks[%d]", i)
		if h.From != "" && !doublestar.ValidatePattern(h.From) {
			errs = errs.Append(field+".from", fmt.Errorf("invalid glob %q", h.From))
		}
		if len(h.Commands) == 0 {
			errs = errs.Append(field+".commands", fmt.Errorf("at least one command is required"))
		}
		for j, cmd := range h.Commands {
			if err := tmpl.Check(cmd); err != nil {
				errs = errs.Append(fmt.Sprintf("%s.commands[%d]", field, j), err)
			}
		}
	}

	return errs.ToError()
}

// UsesBackend reports whether the message store or the peer directory uses
// the named backend.
func (c *Config) UsesBackend(name string) bool {
	return c.Storage.Backend == name || c.Peers.Backend == name
}

// MessagesFile returns the path of the jsonfile message log.
func (c *Config) MessagesFile() string {
	return filepath.Join(c.DataDir, "messages.json")
}

// PeersFile returns the path of the jsonfile peer directory.
func (c *Config) PeersFile() string {
	return filepath.Join(c.DataDir, "peers.json")
}

// DatabaseFile returns the path of the SQLite database.
func (c *Config) DatabaseFile() string {
	return filepath.Join(c.DataDir, "parley.db")
}
