// Package hooks runs user-configured shell commands for new messages.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/hay-kot/parley/internal/core/chat"
	"github.com/hay-kot/parley/internal/core/config"
	"github.com/hay-kot/parley/pkg/executil"
	"github.com/hay-kot/parley/pkg/tmpl"
)

const (
	// DefaultTimeout bounds a single hook command.
	DefaultTimeout = 30 * time.Second
	// DefaultQueueSize is the number of messages a Queue holds before
	// dropping new ones.
	DefaultQueueSize = 64
)

// Data is the template data of a hook command.
type Data struct {
	ID        string
	Sender    string
	Receiver  string
	Text      string
	SentAt    time.Time
	Broadcast bool
}

// NewData returns the template data for m.
func NewData(m chat.Message) Data {
	return Data{
		ID:        m.ID,
		Sender:    m.Sender,
		Receiver:  m.Receiver,
		Text:      m.Text,
		SentAt:    m.SentAt,
		Broadcast: m.IsBroadcast(),
	}
}

// Runner executes message hooks.
type Runner struct {
	log      zerolog.Logger
	executor executil.Executor
	hooks    []config.Hook
	timeout  time.Duration
}

// NewRunner creates a Runner for hooks.
func NewRunner(log zerolog.Logger, executor executil.Executor, hooks []config.Hook) *Runner {
	return &Runner{
		log:      log,
		executor: executor,
		hooks:    hooks,
		timeout:  DefaultTimeout,
	}
}

// WithTimeout overrides DefaultTimeout.
func (r *Runner) WithTimeout(d time.Duration) *Runner {
	r.timeout = d
	return r
}

// Len returns the number of configured hooks.
func (r *Runner) Len() int {
	return len(r.hooks)
}

// Run executes every command of every hook matching the sender of m. A
// failing command does not stop the others; all failures are returned
// joined.
func (r *Runner) Run(ctx context.Context, m chat.Message) error {
	data := NewData(m)

	var errs []error
	for _, hook := range r.hooks {
		if hook.From != "" && !doublestar.MatchUnvalidated(hook.From, m.Sender) {
			continue
		}

		for _, cmdTmpl := range hook.Commands {
			if err := r.runCommand(ctx, cmdTmpl, data); err != nil {
				r.log.Warn().Err(err).Str("message", m.ID).Msg("hook failed")
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

func (r *Runner) runCommand(ctx context.Context, cmdTmpl string, data Data) error {
	cmd, err := tmpl.Render(cmdTmpl, data)
	if err != nil {
		return fmt.Errorf("render hook %q: %w", cmdTmpl, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.log.Debug().Str("command", cmd).Msg("running hook")

	out, err := r.executor.Run(ctx, "sh", "-c", cmd)
	if len(out) > 0 {
		r.log.Debug().Str("command", cmd).Bytes("output", out).Msg("hook output")
	}
	if err != nil {
		return fmt.Errorf("run hook %q: %w", cmd, err)
	}
	return nil
}

// Queue runs hooks on a background worker, one message at a time in the order
// they were enqueued.
type Queue struct {
	runner *Runner
	ch     chan chat.Message
	done   chan struct{}
}

// Start launches the worker of a Queue holding up to size messages. The
// worker stops when ctx is done or the queue is closed and drained.
func (r *Runner) Start(ctx context.Context, size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}

	q := &Queue{
		runner: r,
		ch:     make(chan chat.Message, size),
		done:   make(chan struct{}),
	}
	go q.work(ctx)
	return q
}

// Enqueue schedules the hooks for m without waiting for them. It reports
// false when the queue is full and m was dropped.
func (q *Queue) Enqueue(m chat.Message) bool {
	if q.runner.Len() == 0 {
		return true
	}

	select {
	case q.ch <- m:
		return true
	default:
		q.runner.log.Warn().Str("message", m.ID).Msg("hook queue full, message skipped")
		return false
	}
}

// Close stops accepting messages and waits for the worker to finish. Enqueue
// must not be called after Close.
func (q *Queue) Close() {
	close(q.ch)
	<-q.done
}

func (q *Queue) work(ctx context.Context) {
	defer close(q.done)

	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-q.ch:
			if !ok {
				return
			}
			// Failures are logged by Run.
			_ = q.runner.Run(ctx, m)
		}
	}
}
