// Package observability exposes the daemon's prometheus metrics.
package observability

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument the daemon records. Construct once and
// pass by reference; consumers treat a nil *Metrics as "do not record".
type Metrics struct {
	registry *prom.Registry

	PollsTotal        *prom.CounterVec
	BridgeTimeouts    prom.Counter
	WorkersRunning    prom.Gauge
	MediaDownloads    prom.Counter
	MediaSkips        prom.Counter
	MediaPrunes       prom.Counter
	MediaErrors       prom.Counter
	TranscodesTotal   *prom.CounterVec
	TranscodeDuration prom.Histogram
	TTSHits           prom.Counter
	TTSMisses         prom.Counter
	TTSEvictions      prom.Counter
	TTSPurges         prom.Counter
}

// NewMetrics constructs and registers all instruments on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prom.NewRegistry()}

	m.PollsTotal = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "kiosk",
		Name:      "polls_total",
		Help:      "Poll iterations by worker and result",
	}, []string{"worker", "result"})
	m.BridgeTimeouts = prom.NewCounter(prom.CounterOpts{
		Namespace: "kiosk",
		Name:      "bridge_timeouts_total",
		Help:      "Store RPC calls that timed out",
	})
	m.WorkersRunning = prom.NewGauge(prom.GaugeOpts{
		Namespace: "kiosk",
		Name:      "workers_running",
		Help:      "Currently tracked poll workers",
	})
	m.MediaDownloads = prom.NewCounter(prom.CounterOpts{
		Namespace: "kiosk",
		Name:      "media_downloads_total",
		Help:      "Media assets downloaded",
	})
	m.MediaSkips = prom.NewCounter(prom.CounterOpts{
		Namespace: "kiosk",
		Name:      "media_skips_total",
		Help:      "Media assets already present and kept",
	})
	m.MediaPrunes = prom.NewCounter(prom.CounterOpts{
		Namespace: "kiosk",
		Name:      "media_prunes_total",
		Help:      "Stale media files deleted",
	})
	m.MediaErrors = prom.NewCounter(prom.CounterOpts{
		Namespace: "kiosk",
		Name:      "media_errors_total",
		Help:      "Per-asset download or transcode failures",
	})
	m.TranscodesTotal = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "kiosk",
		Name:      "transcodes_total",
		Help:      "Completed transcodes by source codec",
	}, []string{"codec"})
	m.TranscodeDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "kiosk",
		Name:      "transcode_duration_seconds",
		Help:      "Transcode wall time",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
	})
	m.TTSHits = prom.NewCounter(prom.CounterOpts{
		Namespace: "kiosk",
		Name:      "tts_cache_hits_total",
		Help:      "Synthesis requests served from cache",
	})
	m.TTSMisses = prom.NewCounter(prom.CounterOpts{
		Namespace: "kiosk",
		Name:      "tts_cache_misses_total",
		Help:      "Synthesis requests that invoked the engine",
	})
	m.TTSEvictions = prom.NewCounter(prom.CounterOpts{
		Namespace: "kiosk",
		Name:      "tts_cache_evictions_total",
		Help:      "Cache entries removed by size eviction",
	})
	m.TTSPurges = prom.NewCounter(prom.CounterOpts{
		Namespace: "kiosk",
		Name:      "tts_cache_purges_total",
		Help:      "Wholesale cache purges after a voice change",
	})

	m.registry.MustRegister(
		m.PollsTotal, m.BridgeTimeouts, m.WorkersRunning,
		m.MediaDownloads, m.MediaSkips, m.MediaPrunes, m.MediaErrors,
		m.TranscodesTotal, m.TranscodeDuration,
		m.TTSHits, m.TTSMisses, m.TTSEvictions, m.TTSPurges,
	)
	return m
}

// Handler serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
