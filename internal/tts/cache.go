// Package tts synthesizes speech for clue delivery and caches the
// resulting wav files content-addressed by the spoken text. The cache is
// bounded by total size and invalidated wholesale when the installed voice
// model changes: stale-voice audio must never be served.
package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/roomtrek/kioskd/internal/observability"
)

// voiceTrackerFile records the voice model the cached entries were
// synthesized with.
const voiceTrackerFile = "voice.txt"

// evictTarget is the fraction of MaxBytes eviction drives the cache down
// to, leaving a hysteresis band so eviction does not run on every write.
const evictTarget = 0.8

// SynthFunc produces a wav for text using the given voice model file.
type SynthFunc func(ctx context.Context, text, voicePath, outPath string) error

// Cache is the content-addressed speech cache. Synthesis is serialized by
// an internal mutex; the directory has no other writers.
type Cache struct {
	dir       string
	voicesDir string
	maxBytes  int64
	synth     SynthFunc
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu sync.Mutex
}

// NewCache builds the cache. dir and voicesDir are created if missing.
func NewCache(dir, voicesDir string, maxBytes int64, synth SynthFunc, logger *slog.Logger, metrics *observability.Metrics) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tts cache dir: %w", err)
	}
	if err := os.MkdirAll(voicesDir, 0o755); err != nil {
		return nil, fmt.Errorf("create voices dir: %w", err)
	}
	return &Cache{
		dir:       dir,
		voicesDir: voicesDir,
		maxBytes:  maxBytes,
		synth:     synth,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Synthesize returns the path to a wav speaking text, from cache when the
// entry exists and the voice model has not changed since it was written.
func (c *Cache) Synthesize(ctx context.Context, text string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	voice, err := c.resolveVoice()
	if err != nil {
		return "", err
	}
	if err := c.checkVoiceLocked(voice); err != nil {
		return "", err
	}

	entry := filepath.Join(c.dir, cacheKey(text)+".wav")
	if _, err := os.Stat(entry); err == nil {
		now := time.Now()
		_ = os.Chtimes(entry, now, now)
		if c.metrics != nil {
			c.metrics.TTSHits.Inc()
		}
		return entry, nil
	}

	// Make room before the new entry may be considered safe.
	if err := c.evictLocked(); err != nil {
		return "", err
	}
	if c.metrics != nil {
		c.metrics.TTSMisses.Inc()
	}

	tmp := entry + ".part"
	if err := c.synth(ctx, text, voice, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("synthesize: %w", err)
	}
	if err := os.Rename(tmp, entry); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("finalize tts entry: %w", err)
	}
	return entry, nil
}

// CheckVoice re-resolves the installed voice model and purges the cache if
// it changed. Safe to call from the voice watcher; the recorded baseline is
// updated even when no synthesis follows.
func (c *Cache) CheckVoice() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	voice, err := c.resolveVoice()
	if err != nil {
		return err
	}
	return c.checkVoiceLocked(voice)
}

func (c *Cache) checkVoiceLocked(voicePath string) error {
	current := filepath.Base(voicePath)
	trackerPath := filepath.Join(c.dir, voiceTrackerFile)

	recorded := ""
	if data, err := os.ReadFile(trackerPath); err == nil {
		recorded = strings.TrimSpace(string(data))
	}
	if recorded == current {
		return nil
	}

	if recorded != "" {
		c.logger.Info("voice model changed, purging tts cache",
			"previous", recorded, "current", current)
		c.purgeLocked()
	}
	if err := os.WriteFile(trackerPath, []byte(current+"\n"), 0o644); err != nil {
		return fmt.Errorf("record voice model: %w", err)
	}
	return nil
}

// resolveVoice picks the newest .onnx model in the voices directory.
func (c *Cache) resolveVoice() (string, error) {
	entries, err := os.ReadDir(c.voicesDir)
	if err != nil {
		return "", fmt.Errorf("read voices dir: %w", err)
	}
	var newest string
	var newestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".onnx") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = entry.Name()
			newestMod = info.ModTime()
		}
	}
	if newest == "" {
		return "", fmt.Errorf("no voice model installed in %s", c.voicesDir)
	}
	return filepath.Join(c.voicesDir, newest), nil
}

// Evict runs the size check; exported for the maintenance scheduler.
func (c *Cache) Evict() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictLocked()
}

type cacheEntry struct {
	path    string
	size    int64
	lastUse time.Time
}

// evictLocked deletes oldest-by-last-access entries until total size is at
// or below the hysteresis target, but only when the hard limit is exceeded.
func (c *Cache) evictLocked() error {
	entries, total, err := c.scanLocked()
	if err != nil {
		return err
	}
	if total <= c.maxBytes {
		return nil
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastUse.Before(entries[j].lastUse)
	})

	target := int64(float64(c.maxBytes) * evictTarget)
	for _, entry := range entries {
		if total <= target {
			break
		}
		if err := os.Remove(entry.path); err != nil {
			c.logger.Warn("evict failed", "file", entry.path, "error", err)
			continue
		}
		total -= entry.size
		if c.metrics != nil {
			c.metrics.TTSEvictions.Inc()
		}
	}
	return nil
}

func (c *Cache) scanLocked() ([]cacheEntry, int64, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, 0, fmt.Errorf("scan tts cache: %w", err)
	}
	var entries []cacheEntry
	var total int64
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".wav") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, cacheEntry{
			path:    filepath.Join(c.dir, de.Name()),
			size:    info.Size(),
			lastUse: info.ModTime(),
		})
		total += info.Size()
	}
	return entries, total, nil
}

func (c *Cache) purgeLocked() {
	entries, _, err := c.scanLocked()
	if err != nil {
		c.logger.Warn("purge scan failed", "error", err)
		return
	}
	for _, entry := range entries {
		if err := os.Remove(entry.path); err != nil {
			c.logger.Warn("purge remove failed", "file", entry.path, "error", err)
		}
	}
	if c.metrics != nil {
		c.metrics.TTSPurges.Inc()
	}
}

// Size reports the current total cache size in bytes.
func (c *Cache) Size() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, total, err := c.scanLocked()
	return total, err
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
