package tts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher observes the voices directory and re-runs the voice check when a
// model is installed or replaced, so the cache is purged promptly instead
// of on the next synthesis. The per-synthesis check remains the
// correctness backstop.
type Watcher struct {
	cache    *Cache
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
	debounce time.Duration
}

// NewWatcher builds a watcher over the cache's voices directory.
func NewWatcher(cache *Cache, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create voice watcher: %w", err)
	}
	if err := fsw.Add(cache.voicesDir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watch voices dir: %w", err)
	}
	return &Watcher{
		cache:    cache,
		watcher:  fsw,
		logger:   logger,
		debounce: 2 * time.Second,
	}, nil
}

// Run watches until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	// A debounce still pending when Run returns must not fire after
	// shutdown.
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".onnx") {
				continue
			}
			// Model files are large; debounce until the copy settles.
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("voice watcher error", "error", err)
		case <-fire:
			if err := w.cache.CheckVoice(); err != nil {
				w.logger.Warn("voice check failed", "error", err)
			}
		}
	}
}
