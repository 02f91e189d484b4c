// Package daemon composes the kiosk core: device store, bridge server,
// worker supervisor, media syncer, tts cache, maintenance scheduler and
// metrics endpoint.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/roomtrek/kioskd/internal/api"
	"github.com/roomtrek/kioskd/internal/bridge"
	"github.com/roomtrek/kioskd/internal/config"
	"github.com/roomtrek/kioskd/internal/events"
	"github.com/roomtrek/kioskd/internal/media"
	"github.com/roomtrek/kioskd/internal/observability"
	"github.com/roomtrek/kioskd/internal/poller"
	"github.com/roomtrek/kioskd/internal/power"
	"github.com/roomtrek/kioskd/internal/store"
	"github.com/roomtrek/kioskd/internal/supervisor"
	"github.com/roomtrek/kioskd/internal/tts"
)

// Daemon is the long-running kiosk process.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics

	store        *store.Store
	bridgeServer *bridge.Server
	sup          *supervisor.Supervisor
	chanSink     *events.ChanSink
	natsSink     *events.NATSSink
	syncer       *media.Syncer
	cache        *tts.Cache
	voiceWatcher *tts.Watcher
	scheduler    gocron.Scheduler
	metricsSrv   *http.Server

	group workerGroup
}

// New wires the daemon from configuration. Nothing runs until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := store.Open(cfg.Paths.StorePath())
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics()

	d := &Daemon{
		cfg:          cfg,
		logger:       logger,
		metrics:      metrics,
		store:        st,
		bridgeServer: bridge.NewServer(st, logger),
		chanSink:     events.NewChanSink(256, logger),
		syncer:       media.NewSyncer(cfg.Paths, logger, metrics),
	}

	cache, err := tts.NewCache(
		cfg.Paths.TTSCacheDir(),
		cfg.TTS.VoicesDir,
		cfg.TTS.MaxCacheBytes,
		tts.PiperEngine(cfg.TTS.PiperBinary),
		logger,
		metrics,
	)
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	d.cache = cache

	sinks := events.MultiSink{d.chanSink}
	if cfg.Events.NATSURL != "" {
		natsSink, err := events.NewNATSSink(cfg.Events.NATSURL, cfg.Events.Subject, logger)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		d.natsSink = natsSink
		sinks = append(sinks, natsSink)
	}

	deps := poller.Deps{
		BaseURL:   cfg.Device.APIBaseURL,
		Requests:  d.bridgeServer.Requests(),
		Logger:    logger,
		Metrics:   metrics,
		Intervals: cfg.Device.PollIntervals,
	}
	registry := map[string]supervisor.Runner{}
	for name, w := range poller.All(deps) {
		registry[name] = w
	}
	d.sup = supervisor.New(registry, sinks, power.NewExecController(logger), logger)

	sched, err := gocron.NewScheduler()
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create maintenance scheduler: %w", err)
	}
	d.scheduler = sched

	return d, nil
}

// Events exposes the in-process event stream (used by an embedded UI and by
// tests).
func (d *Daemon) Events() <-chan events.Envelope { return d.chanSink.Events() }

// Supervisor exposes worker control to the request/response layer.
func (d *Daemon) Supervisor() *supervisor.Supervisor { return d.sup }

// Cache exposes the tts cache to the request/response layer.
func (d *Daemon) Cache() *tts.Cache { return d.cache }

// Store exposes direct store access for the owning process only. Workers
// must keep going through the bridge.
func (d *Daemon) Store() *store.Store { return d.store }

// Run starts everything and blocks until ctx is canceled, then shuts down
// in reverse order.
func (d *Daemon) Run(ctx context.Context, workers []string) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.group.Go(func() { d.bridgeServer.Run(runCtx) })

	watcher, err := tts.NewWatcher(d.cache, d.logger)
	if err != nil {
		d.logger.Warn("voice watcher unavailable", "error", err)
	} else {
		d.voiceWatcher = watcher
		d.group.Go(func() { watcher.Run(runCtx) })
	}

	if err := d.scheduleMaintenance(); err != nil {
		return err
	}
	d.scheduler.Start()

	d.startMetricsServer()

	started := d.sup.Start(workers)
	d.logger.Info("daemon running", "workers", started)

	<-ctx.Done()
	return d.shutdown()
}

func (d *Daemon) scheduleMaintenance() error {
	_, err := d.scheduler.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			if err := d.cache.Evict(); err != nil {
				d.logger.Warn("tts cache sweep failed", "error", err)
			}
		}),
		gocron.WithName("tts-cache-sweep"),
	)
	if err != nil {
		return fmt.Errorf("schedule tts sweep: %w", err)
	}

	_, err = d.scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func() { d.syncer.CleanWorkFiles() }),
		gocron.WithName("media-workfile-gc"),
	)
	if err != nil {
		return fmt.Errorf("schedule media gc: %w", err)
	}

	_, err = d.scheduler.NewJob(
		gocron.DurationJob(15*time.Second),
		gocron.NewTask(func() {
			d.metrics.WorkersRunning.Set(float64(len(d.sup.Running())))
		}),
		gocron.WithName("worker-gauge"),
	)
	if err != nil {
		return fmt.Errorf("schedule worker gauge: %w", err)
	}
	return nil
}

func (d *Daemon) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	d.metricsSrv = &http.Server{Addr: d.cfg.Metrics.ListenAddr, Handler: mux}
	d.group.Go(func() {
		if err := d.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server failed", "error", err)
		}
	})
}

func (d *Daemon) shutdown() error {
	d.logger.Info("shutting down")
	d.sup.StopAll()

	if err := d.scheduler.Shutdown(); err != nil {
		d.logger.Warn("scheduler shutdown", "error", err)
	}
	if d.metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = d.metricsSrv.Shutdown(shutdownCtx)
	}
	if d.natsSink != nil {
		d.natsSink.Close()
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.group.StopAndWait(waitCtx); err != nil {
		d.logger.Warn("background goroutines did not drain", "error", err)
	}
	return d.store.Close()
}

// SyncMedia fetches the current manifest and runs a full media pass. Called
// by the request/response layer during authentication and loading screens.
func (d *Daemon) SyncMedia(ctx context.Context, caps media.Capabilities) (media.SyncResult, error) {
	creds, err := d.credentials(ctx)
	if err != nil {
		return media.SyncResult{}, err
	}
	client := api.NewClient(d.cfg.Device.APIBaseURL, creds)
	raw, err := client.MediaManifest(ctx)
	if err != nil {
		return media.SyncResult{}, fmt.Errorf("fetch media manifest: %w", err)
	}
	return d.syncer.Sync(ctx, media.FromAPI(raw), caps), nil
}

func (d *Daemon) credentials(ctx context.Context) (api.Credentials, error) {
	deviceCode, err := d.store.Get(ctx, store.KeyDeviceCode)
	if err != nil {
		return api.Credentials{}, fmt.Errorf("device not authenticated: %w", err)
	}
	apiToken, err := d.store.Get(ctx, store.KeyAPIToken)
	if err != nil {
		return api.Credentials{}, fmt.Errorf("device not authenticated: %w", err)
	}
	return api.Credentials{DeviceCode: deviceCode, APIToken: apiToken}, nil
}
