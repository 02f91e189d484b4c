// Package supervisor owns the live worker table: it creates, tracks and
// tears down the named poll workers, annotates their events with the worker
// name, and intercepts system actions instead of forwarding them.
package supervisor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roomtrek/kioskd/internal/events"
	"github.com/roomtrek/kioskd/internal/power"
)

// Runner is one startable worker. poller.Worker satisfies this.
type Runner interface {
	Name() string
	Run(ctx context.Context, emit func(events.Message)) error
}

const (
	// stopGrace is how long Stop waits for a worker to observe its
	// cancellation before abandoning it.
	stopGrace = 500 * time.Millisecond
	// actionDelay lets in-flight UI notifications land before the device
	// goes down.
	actionDelay = 2500 * time.Millisecond
)

type entry struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Supervisor tracks running workers. One instance per daemon; not a
// package-level singleton, so tests can build their own.
type Supervisor struct {
	registry map[string]Runner
	sink     events.Sink
	power    power.Controller
	logger   *slog.Logger

	grace time.Duration
	delay time.Duration

	mu      sync.Mutex
	running map[string]*entry
}

// Option tweaks timing for tests.
type Option func(*Supervisor)

// WithStopGrace overrides the stop grace period.
func WithStopGrace(d time.Duration) Option { return func(s *Supervisor) { s.grace = d } }

// WithActionDelay overrides the system-action delay.
func WithActionDelay(d time.Duration) Option { return func(s *Supervisor) { s.delay = d } }

// New builds a supervisor over a registry of known workers.
func New(registry map[string]Runner, sink events.Sink, pc power.Controller, logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{
		registry: registry,
		sink:     sink,
		power:    pc,
		logger:   logger,
		grace:    stopGrace,
		delay:    actionDelay,
		running:  map[string]*entry{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches each named worker that is known and not already running.
// Unknown and already-running names are skipped silently. Returns the names
// actually started.
func (s *Supervisor) Start(names []string) []string {
	var started []string
	for _, name := range names {
		runner, known := s.registry[name]
		if !known {
			s.logger.Warn("ignoring unknown worker", "worker", name)
			continue
		}

		s.mu.Lock()
		if _, already := s.running[name]; already {
			s.mu.Unlock()
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		e := &entry{cancel: cancel, done: make(chan struct{})}
		s.running[name] = e
		s.mu.Unlock()

		go s.supervise(ctx, name, runner, e)
		started = append(started, name)
	}
	return started
}

// supervise runs one worker to completion and deregisters it. A crash is
// logged and the entry removed; the worker is not restarted automatically.
func (s *Supervisor) supervise(ctx context.Context, name string, runner Runner, e *entry) {
	defer close(e.done)
	defer s.remove(name, e)
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("worker crashed", "worker", name, "panic", r)
		}
	}()

	emit := func(msg events.Message) { s.route(name, msg) }
	if err := runner.Run(ctx, emit); err != nil && ctx.Err() == nil {
		s.logger.Error("worker exited with error", "worker", name, "error", err)
	}
}

// route annotates and forwards a worker message, except system actions,
// which the supervisor executes itself.
func (s *Supervisor) route(name string, msg events.Message) {
	if msg.Kind == events.KindSystem {
		s.execute(name, msg.System)
		return
	}
	s.sink.Forward(events.Wrap(name, msg))
}

func (s *Supervisor) execute(name string, action events.SystemAction) {
	s.logger.Info("system action requested", "worker", name, "action", action.String())
	go func() {
		time.Sleep(s.delay)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		var err error
		if action == events.ActionShutdown {
			err = s.power.Shutdown(ctx)
		} else {
			err = s.power.Restart(ctx)
		}
		if err != nil {
			s.logger.Error("power action failed", "action", action.String(), "error", err)
		}
	}()
}

// remove deregisters one worker instance. It matches on the entry, not just
// the name: an abandoned instance exiting late must not deregister a newer
// worker that was started under the same name after the abandonment.
func (s *Supervisor) remove(name string, e *entry) {
	s.mu.Lock()
	if s.running[name] == e {
		delete(s.running, name)
	}
	s.mu.Unlock()
}

// Stop cancels each named running worker and waits up to the grace period
// for it to exit. Workers still busy after the grace period are abandoned;
// their context stays canceled so any in-flight call dies with it. Returns
// the names that stopped cleanly.
func (s *Supervisor) Stop(names []string) []string {
	var stopped []string
	for _, name := range names {
		s.mu.Lock()
		e, ok := s.running[name]
		s.mu.Unlock()
		if !ok {
			continue
		}

		e.cancel()
		select {
		case <-e.done:
			stopped = append(stopped, name)
		case <-time.After(s.grace):
			s.logger.Warn("worker did not stop within grace period, abandoning", "worker", name)
			s.remove(name, e)
		}
	}
	return stopped
}

// StopAll stops every running worker; used at daemon shutdown.
func (s *Supervisor) StopAll() {
	s.Stop(s.Running())
}

// Running lists the currently tracked worker names.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.running))
	for name := range s.running {
		names = append(names, name)
	}
	return names
}

// IsRunning reports whether a named worker is tracked.
func (s *Supervisor) IsRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[name]
	return ok
}
