package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/chat"
)

// DefaultSyncInterval is how often the sync loop polls the message store.
const DefaultSyncInterval = 2 * time.Second

// Change reports that the newest message exchanged by Participant moved.
type Change struct {
	Participant string
	LatestID    string
	// Previous is empty on the first observation.
	Previous string
	At       time.Time
}

// Observer is notified of changes. Returned errors and panics are logged.
type Observer func(ctx context.Context, c Change) error

// SyncLoop polls the message store for new messages of the local identity and
// keeps its presence fresh.
type SyncLoop struct {
	messages chat.MessageStore
	peers    chat.PeerDirectory
	self     string
	interval time.Duration
	timeout  time.Duration
	observer Observer
	now      func() time.Time
	log      zerolog.Logger

	mu     sync.Mutex
	latest string
}

// NewSyncLoop creates a loop for self. A non-positive interval falls back to
// DefaultSyncInterval; a nil observer only records changes.
func NewSyncLoop(messages chat.MessageStore, peers chat.PeerDirectory, self string, interval time.Duration, observer Observer, log zerolog.Logger) *SyncLoop {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &SyncLoop{
		messages: messages,
		peers:    peers,
		self:     self,
		interval: interval,
		timeout:  DefaultStoreTimeout,
		observer: observer,
		now:      time.Now,
		log:      log,
	}
}

// WithClock replaces the clock used for heartbeats and change timestamps.
func (l *SyncLoop) WithClock(now func() time.Time) *SyncLoop {
	l.now = now
	return l
}

// WithStoreTimeout bounds each store call of a tick. Non-positive values keep
// DefaultStoreTimeout.
func (l *SyncLoop) WithStoreTimeout(d time.Duration) *SyncLoop {
	if d > 0 {
		l.timeout = d
	}
	return l
}

// Latest returns the last recorded message ID.
func (l *SyncLoop) Latest() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest
}

// Run ticks until ctx is cancelled.
func (l *SyncLoop) Run(ctx context.Context) error {
	l.log.Debug().Dur("interval", l.interval).Msg("sync loop started")

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.log.Debug().Msg("sync loop stopped")
			return nil
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick runs one iteration: heartbeat self, then compare the newest message ID
// with the recorded one and notify the observer when it moved.
func (l *SyncLoop) Tick(ctx context.Context) {
	now := l.now()

	if err := l.touch(ctx, now); err != nil {
		l.log.Warn().Err(err).Msg("heartbeat failed")
	}

	id, ok, err := l.latestID(ctx)
	if err != nil {
		l.log.Warn().Err(err).Msg("poll latest message failed")
		return
	}
	if !ok {
		return
	}

	l.mu.Lock()
	previous := l.latest
	l.mu.Unlock()

	if id == previous {
		return
	}

	change := Change{Participant: l.self, LatestID: id, Previous: previous, At: now}
	if err := l.notify(ctx, change); err != nil {
		l.log.Error().Err(err).Str("id", id).Msg("sync observer failed")
	}

	l.mu.Lock()
	l.latest = id
	l.mu.Unlock()
}

func (l *SyncLoop) touch(ctx context.Context, now time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := l.peers.Touch(ctx, l.self, now); err != nil {
		return storageError("touch self", err)
	}
	return nil
}

func (l *SyncLoop) latestID(ctx context.Context) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	id, ok, err := l.messages.LatestID(ctx, l.self)
	if err != nil {
		return "", false, storageError("latest message", err)
	}
	return id, ok, nil
}

func (l *SyncLoop) notify(ctx context.Context, c Change) (err error) {
	if l.observer == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return l.observer(ctx, c)
}
