package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/internal/node"
	"github.com/hay-kot/parley/internal/store/jsonfile"
	"github.com/hay-kot/parley/internal/store/memory"
	"github.com/hay-kot/parley/internal/store/mongodb"
	"github.com/hay-kot/parley/internal/store/redisstore"
	"github.com/hay-kot/parley/internal/store/sqlite"
	"github.com/hay-kot/parley/internal/transport/httpapi"
)

// Backends holds the message store and peer directory selected by the
// configuration, plus whatever connections they share.
type Backends struct {
	Messages chat.MessageStore
	Peers    chat.PeerDirectory

	sqlite  *sqlite.DB
	mongo   *mongodb.DB
	closers []func(context.Context) error
}

// OpenBackends opens the stores named by cfg.Storage.Backend and
// cfg.Peers.Backend. SQLite and MongoDB connections are shared when both use
// the same backend.
func OpenBackends(ctx context.Context, cfg *config.Config) (*Backends, error) {
	b := &Backends{}

	if cfg.UsesBackend(config.BackendJSONFile) || cfg.UsesBackend(config.BackendSQLite) {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	var err error
	b.Messages, err = b.openMessages(ctx, cfg)
	if err != nil {
		_ = b.Close(ctx)
		return nil, fmt.Errorf("open message store: %w", err)
	}

	b.Peers, err = b.openPeers(ctx, cfg)
	if err != nil {
		_ = b.Close(ctx)
		return nil, fmt.Errorf("open peer directory: %w", err)
	}

	return b, nil
}

func (b *Backends) openMessages(ctx context.Context, cfg *config.Config) (chat.MessageStore, error) {
	switch cfg.Storage.Backend {
	case config.BackendMemory:
		return memory.NewMsgStore(), nil
	case config.BackendJSONFile:
		return jsonfile.NewMsgStore(cfg.MessagesFile()), nil
	case config.BackendSQLite:
		db, err := b.openSQLite(cfg)
		if err != nil {
			return nil, err
		}
		return db.Messages(), nil
	case config.BackendMongo:
		db, err := b.openMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return db.Messages(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func (b *Backends) openPeers(ctx context.Context, cfg *config.Config) (chat.PeerDirectory, error) {
	switch cfg.Peers.Backend {
	case config.BackendMemory:
		return memory.NewPeerDir(), nil
	case config.BackendJSONFile:
		return jsonfile.NewPeerDir(cfg.PeersFile()), nil
	case config.BackendSQLite:
		db, err := b.openSQLite(cfg)
		if err != nil {
			return nil, err
		}
		return db.Peers(), nil
	case config.BackendMongo:
		db, err := b.openMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return db.Peers(), nil
	case config.BackendRedis:
		dialCtx, cancel := context.WithTimeout(ctx, cfg.Storage.Timeout)
		defer cancel()

		client, err := redisstore.Dial(dialCtx, cfg.Peers.Redis.Addr)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func(context.Context) error { return client.Close() })
		return redisstore.NewPeerDir(client), nil
	default:
		return nil, fmt.Errorf("unknown peers backend %q", cfg.Peers.Backend)
	}
}

func (b *Backends) openSQLite(cfg *config.Config) (*sqlite.DB, error) {
	if b.sqlite != nil {
		return b.sqlite, nil
	}
	db, err := sqlite.Open(cfg.DatabaseFile())
	if err != nil {
		return nil, err
	}
	b.sqlite = db
	b.closers = append(b.closers, func(context.Context) error { return db.Close() })
	return db, nil
}

func (b *Backends) openMongo(ctx context.Context, cfg *config.Config) (*mongodb.DB, error) {
	if b.mongo != nil {
		return b.mongo, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Storage.Timeout)
	defer cancel()

	db, err := mongodb.Connect(connectCtx, cfg.Storage.Mongo.URI, cfg.Storage.Mongo.Database)
	if err != nil {
		return nil, err
	}
	b.mongo = db
	b.closers = append(b.closers, db.Close)
	return db, nil
}

// Close releases every connection in reverse order of opening.
func (b *Backends) Close(ctx context.Context) error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i](ctx))
	}
	b.closers = nil
	return errors.Join(errs...)
}

// NewService builds the node service for cfg on top of b. The advertised
// address is cfg.Advertise or, when unset, detected from cfg.Listen.
func NewService(cfg *config.Config, b *Backends, log zerolog.Logger) (*node.Service, string, error) {
	address := cfg.Advertise
	if address == "" {
		detected, err := httpapi.DetectAddress(cfg.Listen)
		if err != nil {
			return nil, "", fmt.Errorf("detect advertise address: %w", err)
		}
		address = detected
	}

	svc := node.New(
		b.Messages,
		b.Peers,
		httpapi.NewClient(cfg.Transport.Timeout, address),
		node.Options{
			Username:        cfg.Username,
			Address:         address,
			PresenceWindow:  cfg.Presence.Window,
			StoreTimeout:    cfg.Storage.Timeout,
			DeliveryTimeout: cfg.Transport.Timeout,
		},
		log,
	)
	return svc, address, nil
}
