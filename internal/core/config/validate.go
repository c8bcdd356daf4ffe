package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/hay-kot/criterio"
)

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Category string `json:"category"`
	Item     string `json:"item,omitempty"`
	Message  string `json:"message"`
}

// ValidateDeep performs comprehensive validation of the configuration.
// Unlike Validate(), this checks file access and connection settings.
func (c *Config) ValidateDeep(configPath string) error {
	var errs criterio.FieldErrorsBuilder

	var fieldErrs criterio.FieldErrors
	if err := c.Validate(); errors.As(err, &fieldErrs) {
		for _, fe := range fieldErrs {
			errs = errs.Append(fe.Field, fe.Err)
		}
	}

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil && info.IsDir() {
			errs = errs.Append("config", fmt.Errorf("%s is a directory, not a file", configPath))
		} else if err != nil && !os.IsNotExist(err) {
			errs = errs.Append("config", fmt.Errorf("cannot access %s: %w", configPath, err))
		}
	}

	if c.DataDir != "" && c.needsDataDir() {
		if err := checkWritable(c.DataDir); err != nil {
			errs = errs.Append("data_dir", err)
		}
	}

	if c.UsesBackend(BackendMongo) && c.Storage.Mongo.URI != "" {
		u, err := url.Parse(c.Storage.Mongo.URI)
		switch {
		case err != nil:
			errs = errs.Append("storage.mongo.uri", err)
		case u.Scheme != "mongodb" && u.Scheme != "mongodb+srv":
			errs = errs.Append("storage.mongo.uri", fmt.Errorf("scheme must be mongodb or mongodb+srv, got %q", u.Scheme))
		}
	}

	return errs.ToError()
}

// Warnings returns non-fatal issues: settings that work but are probably not
// what the user wants.
func (c *Config) Warnings() []ValidationWarning {
	var warnings []ValidationWarning

	if c.Advertise == "" {
		warnings = append(warnings, ValidationWarning{
			Category: "Network",
			Item:     "advertise",
			Message:  "not set, other nodes will be given the detected outbound address",
		})
	}

	if c.Storage.Backend == BackendMemory {
		warnings = append(warnings, ValidationWarning{
			Category: "Storage",
			Item:     "storage.backend",
			Message:  "memory backend loses all messages on exit",
		})
	}

	if c.Presence.Window > 0 && c.Sync.Interval >= c.Presence.Window {
		warnings = append(warnings, ValidationWarning{
			Category: "Presence",
			Item:     "sync.interval",
			Message:  fmt.Sprintf("heartbeat every %s will not keep this node online within a %s window", c.Sync.Interval, c.Presence.Window),
		})
	}

	if c.Transport.Timeout > 30*time.Second {
		warnings = append(warnings, ValidationWarning{
			Category: "Network",
			Item:     "transport.timeout",
			Message:  "sends to unreachable peers will block for a long time",
		})
	}

	return warnings
}

func (c *Config) needsDataDir() bool {
	return c.UsesBackend(BackendJSONFile) || c.UsesBackend(BackendSQLite)
}

// checkWritable creates dir if needed and writes a temp file into it.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	f, err := os.CreateTemp(dir, ".parley-write-check-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(filepath.Clean(name))
	return nil
}
