// Package poller implements the device's poll workers: single-purpose loops
// that each call one remote endpoint on a fixed interval and emit coarse
// domain events. All workers share one loop shape; only the per-endpoint
// handler differs.
package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/roomtrek/kioskd/internal/api"
	"github.com/roomtrek/kioskd/internal/bridge"
	"github.com/roomtrek/kioskd/internal/events"
	"github.com/roomtrek/kioskd/internal/observability"
)

// Handler performs one poll iteration. It may carry out narrow side effects
// (acknowledgement POSTs, store writes through the bridge) and returns the
// messages to emit. Errors are classified by the loop, not the handler.
type Handler interface {
	Poll(ctx context.Context) ([]events.Message, error)
}

// CaptureFunc produces a PNG of the current display. The render process
// owns the framebuffer, so capture is a collaborator, not part of the core.
type CaptureFunc func(ctx context.Context) ([]byte, error)

// Deps is everything a worker needs to come up. Credentials are not here:
// workers read them from the device store through the bridge at startup.
type Deps struct {
	BaseURL   string
	Requests  chan<- bridge.Request
	Capture   CaptureFunc
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Intervals map[string]time.Duration
	// Timeout overrides the bridge call deadline; zero means the default.
	Timeout time.Duration
}

func (d Deps) interval(name string, def time.Duration) time.Duration {
	if v, ok := d.Intervals[name]; ok && v > 0 {
		return v
	}
	return def
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// bindFunc builds the endpoint handler once credentials are known.
type bindFunc func(c *api.Client, br *bridge.Client) Handler

// Worker is one poll loop. Create via the endpoint constructors below and
// run it under the supervisor.
type Worker struct {
	name     string
	interval time.Duration
	deps     Deps
	bind     bindFunc
}

func newWorker(name string, interval time.Duration, deps Deps, bind bindFunc) *Worker {
	return &Worker{name: name, interval: interval, deps: deps, bind: bind}
}

// Name is the worker's registry name.
func (w *Worker) Name() string { return w.name }

// Run executes the poll loop until ctx is canceled. Startup reads the
// device credentials exactly once through the bridge; credential rotation
// therefore requires a worker restart.
func (w *Worker) Run(ctx context.Context, emit func(events.Message)) error {
	logger := w.deps.logger().With("worker", w.name)

	var br *bridge.Client
	if w.deps.Timeout > 0 {
		br = bridge.NewClientTimeout(w.deps.Requests, w.deps.Timeout)
	} else {
		br = bridge.NewClient(w.deps.Requests)
	}
	defer br.Close()

	record := func(string) {}
	if m := w.deps.Metrics; m != nil {
		br.OnTimeout(m.BridgeTimeouts.Inc)
		record = func(result string) { m.PollsTotal.WithLabelValues(w.name, result).Inc() }
	}

	creds, err := readCredentials(ctx, br)
	if err != nil {
		return err
	}

	handler := w.bind(api.NewClient(w.deps.BaseURL, creds), br)
	logger.Info("worker started", "interval", w.interval)

	wasDown := false
	for {
		// Stop is only observed here, at the top of the loop; an
		// in-flight call is allowed to finish.
		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return nil
		default:
		}

		msgs, err := handler.Poll(ctx)
		switch {
		case err == nil:
			record("ok")
			if wasDown {
				wasDown = false
				emit(events.Connection(events.ConnectionRestored))
			}
			for _, m := range msgs {
				emit(m)
			}
		case errors.Is(err, api.ErrUnauthorized):
			// The device was de-authenticated. The loop keeps
			// polling; tearing the device down is a higher layer's
			// call.
			record("unauthorized")
			emit(events.Reset())
		case api.IsTransient(err):
			record("transient")
			if !wasDown {
				wasDown = true
				emit(events.Connection(events.ConnectionError))
			}
		case errors.Is(err, context.Canceled):
			logger.Info("worker stopped")
			return nil
		default:
			// Never let a single bad response kill the loop.
			record("error")
			logger.Warn("poll failed", "error", err)
		}

		select {
		case <-ctx.Done():
			logger.Info("worker stopped")
			return nil
		case <-time.After(w.interval):
		}
	}
}

func readCredentials(ctx context.Context, br *bridge.Client) (api.Credentials, error) {
	deviceCode, err := br.Get(ctx, "deviceCode")
	if err != nil {
		return api.Credentials{}, err
	}
	apiToken, err := br.Get(ctx, "apiToken")
	if err != nil {
		return api.Credentials{}, err
	}
	return api.Credentials{DeviceCode: deviceCode, APIToken: apiToken}, nil
}
