package commands

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hay-kot/parley/internal/node"
	"github.com/hay-kot/parley/internal/transport/httpapi"
)

// offlineTimeout bounds the final presence write on shutdown.
const offlineTimeout = 2 * time.Second

// nodeRunner runs the HTTP server and the sync loop of the local node.
type nodeRunner struct {
	flags    *Flags
	observer node.Observer
	ln       net.Listener
}

// newNodeRunner binds the listen address. Binding early lets callers report
// a busy port before any interactive output.
func newNodeRunner(flags *Flags, observer node.Observer) (*nodeRunner, error) {
	ln, err := net.Listen("tcp", flags.Config.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", flags.Config.Listen, err)
	}
	return &nodeRunner{flags: flags, observer: observer, ln: ln}, nil
}

// Addr returns the bound address.
func (r *nodeRunner) Addr() net.Addr {
	return r.ln.Addr()
}

// Run marks the node online, serves until ctx is cancelled or SIGINT/SIGTERM
// arrives, then marks it offline.
func (r *nodeRunner) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		cfg      = r.flags.Config
		svc      = r.flags.Service
		presence = svc.Presence()
		logger   = log.With().Str("component", "node").Logger()
	)

	onCtx, onCancel := context.WithTimeout(ctx, cfg.Storage.Timeout)
	if err := presence.MarkSelfOnline(onCtx, time.Now()); err != nil {
		logger.Warn().Err(err).Msg("failed to mark self online")
	}
	onCancel()

	server := httpapi.NewServer(svc, r.flags.Address, cfg.History.Limit, log.With().Str("component", "http").Logger())
	loop := node.NewSyncLoop(
		r.flags.Backends.Messages,
		r.flags.Backends.Peers,
		svc.Self(),
		cfg.Sync.Interval,
		r.observer,
		log.With().Str("component", "syncloop").Logger(),
	).WithStoreTimeout(cfg.Storage.Timeout)

	logger.Info().
		Str("username", svc.Self()).
		Str("listen", r.ln.Addr().String()).
		Str("advertise", r.flags.Address).
		Msg("node started")

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(ctx, r.ln) }()

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(ctx)
	}()

	var err error
	select {
	case err = <-serveErr:
		// Server failed on its own; stop the loop too.
		stop()
	case <-ctx.Done():
		err = <-serveErr
	}
	<-loopDone

	offCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), offlineTimeout)
	defer cancel()
	if offErr := presence.MarkSelfOffline(offCtx); offErr != nil {
		logger.Warn().Err(offErr).Msg("failed to mark self offline")
	}

	logger.Info().Msg("node stopped")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
