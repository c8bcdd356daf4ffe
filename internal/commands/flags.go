package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/node"
)

type Flags struct {
	LogLevel   string
	LogFile    string
	ConfigPath string
	DataDir    string

	// Config is loaded in the Before hook and available to all commands
	Config *config.Config

	// Backends are the opened stores; closed in the After hook
	Backends *Backends

	// Service runs the chat operations of the local node
	Service *node.Service

	// Address is the address advertised to other nodes
	Address string
}

// OpenNode opens the configured backends and builds the service. It is the
// Before hook of every command that talks to the stores.
func (f *Flags) OpenNode(ctx context.Context, _ *cli.Command) (context.Context, error) {
	if f.Service != nil {
		return ctx, nil
	}
	if f.Config == nil {
		return ctx, fmt.Errorf("configuration not loaded")
	}

	backends, err := OpenBackends(ctx, f.Config)
	if err != nil {
		return ctx, err
	}

	svc, address, err := NewService(f.Config, backends, log.With().Str("component", "service").Logger())
	if err != nil {
		_ = backends.Close(ctx)
		return ctx, err
	}

	f.Backends = backends
	f.Service = svc
	f.Address = address
	return ctx, nil
}

// Close releases the backends opened by OpenNode.
func (f *Flags) Close(ctx context.Context) error {
	if f.Backends == nil {
		return nil
	}
	err := f.Backends.Close(ctx)
	f.Backends = nil
	f.Service = nil
	return err
}

// DefaultConfigPath returns the default config file path using XDG_CONFIG_HOME.
func DefaultConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, _ := os.UserHomeDir()
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "parley", "config.yaml")
}

// DefaultDataDir returns the default data directory using XDG_DATA_HOME.
func DefaultDataDir() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "parley")
}
