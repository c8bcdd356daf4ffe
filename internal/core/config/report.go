package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/hay-kot/criterio"
)

// Setting is one effective configuration value.
type Setting struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Report is the result of checking a loaded configuration.
type Report struct {
	Path string `json:"path,omitempty"`
	// FileFound is false when the node runs on defaults.
	FileFound bool                 `json:"file_found"`
	Settings  []Setting            `json:"settings"`
	Errors    criterio.FieldErrors `json:"-"`
	Warnings  []ValidationWarning  `json:"warnings,omitempty"`
}

// Valid reports whether the configuration has no errors.
func (r Report) Valid() bool {
	return len(r.Errors) == 0
}

// Check runs ValidateDeep and Warnings and resolves the effective settings.
func (c *Config) Check(configPath string) Report {
	r := Report{
		Path:     configPath,
		Settings: c.Settings(),
		Warnings: c.Warnings(),
	}

	if configPath != "" {
		if info, err := os.Stat(configPath); err == nil && !info.IsDir() {
			r.FileFound = true
		}
	}

	if err := c.ValidateDeep(configPath); err != nil {
		var fieldErrs criterio.FieldErrors
		if errors.As(err, &fieldErrs) {
			r.Errors = fieldErrs
		} else {
			r.Errors = criterio.FieldErrors{{Err: err}}
		}
	}

	return r
}

// Settings returns the values a node started with c would use, with each
// backend resolved to where it keeps its data.
func (c *Config) Settings() []Setting {
	advertise := c.Advertise
	if advertise == "" {
		advertise = "detected from " + c.Listen
	}

	hooks := "none"
	if n := len(c.Hooks); n > 0 {
		hooks = fmt.Sprintf("%d hook(s)", n)
	}

	return []Setting{
		{Key: "username", Value: c.Username},
		{Key: "listen", Value: c.Listen},
		{Key: "advertise", Value: advertise},
		{Key: "storage", Value: c.Storage.Backend + " " + c.location(c.Storage.Backend, false)},
		{Key: "peers", Value: c.Peers.Backend + " " + c.location(c.Peers.Backend, true)},
		{Key: "presence.window", Value: c.Presence.Window.String()},
		{Key: "sync.interval", Value: c.Sync.Interval.String()},
		{Key: "transport.timeout", Value: c.Transport.Timeout.String()},
		{Key: "hooks", Value: hooks},
	}
}

// location describes where backend keeps the messages, or the peers when
// peers is set.
func (c *Config) location(backend string, peers bool) string {
	switch backend {
	case BackendMemory:
		return "(in memory)"
	case BackendJSONFile:
		if peers {
			return "(" + c.PeersFile() + ")"
		}
		return "(" + c.MessagesFile() + ")"
	case BackendSQLite:
		return "(" + c.DatabaseFile() + ")"
	case BackendMongo:
		return "(" + redactURI(c.Storage.Mongo.URI) + " db " + c.Storage.Mongo.Database + ")"
	case BackendRedis:
		return "(" + c.Peers.Redis.Addr + ")"
	default:
		return ""
	}
}

// redactURI hides a password embedded in uri.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	return u.Redacted()
}
