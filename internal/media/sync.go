package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roomtrek/kioskd/internal/config"
	"github.com/roomtrek/kioskd/internal/observability"
)

// SyncResult summarizes one pass. Errors holds per-asset failures; a
// non-empty slice does not mean the pass failed, only that those assets
// will be retried on the next pass.
type SyncResult struct {
	Downloaded int
	Skipped    int
	Transcoded int
	Pruned     int
	Errors     []error
}

// Syncer drives manifest-authoritative synchronization of the media tree.
type Syncer struct {
	paths     config.PathsConfig
	http      *http.Client
	logger    *slog.Logger
	metrics   *observability.Metrics
	probe     ProbeFunc
	transcode TranscodeFunc
	// Progress receives transcode percentages; optional.
	Progress func(file string, pct int)
}

// NewSyncer builds a syncer over the configured data directory.
func NewSyncer(paths config.PathsConfig, logger *slog.Logger, metrics *observability.Metrics) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		paths:     paths,
		http:      &http.Client{Timeout: 10 * time.Minute},
		logger:    logger,
		metrics:   metrics,
		probe:     ProbeVideo,
		transcode: Transcode,
	}
}

// SetProbe and SetTranscode swap the codec collaborators; used by tests.
func (s *Syncer) SetProbe(p ProbeFunc)         { s.probe = p }
func (s *Syncer) SetTranscode(t TranscodeFunc) { s.transcode = t }

// Sync brings the media tree in line with the manifest. Single-file
// categories keep a matching file and prune everything else; the clue set
// is diffed against the manifest and garbage-collected. Individual asset
// failures are recorded and skipped, never fatal to the pass.
func (s *Syncer) Sync(ctx context.Context, m Manifest, caps Capabilities) SyncResult {
	var res SyncResult

	for _, category := range config.SingleFileCategories {
		s.syncSingle(ctx, category, m.Singles[category], &res)
	}
	s.syncClues(ctx, m.Clues, &res)
	s.repairCodecs(ctx, caps, &res)

	s.logger.Info("media sync finished",
		"downloaded", res.Downloaded,
		"skipped", res.Skipped,
		"transcoded", res.Transcoded,
		"pruned", res.Pruned,
		"errors", len(res.Errors))
	return res
}

// syncSingle enforces the one-file invariant for a category directory:
// after a successful pass the directory holds at most the manifest's file.
func (s *Syncer) syncSingle(ctx context.Context, category, signedURL string, res *SyncResult) {
	dir := s.paths.CategoryDir(category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.fail(res, fmt.Errorf("create %s: %w", dir, err))
		return
	}

	if signedURL == "" {
		// Category unassigned: the manifest says it should be empty.
		res.Pruned += s.pruneExcept(dir, nil)
		return
	}

	want, err := FilenameFromURL(signedURL)
	if err != nil {
		s.fail(res, err)
		return
	}

	target := filepath.Join(dir, want)
	if _, err := os.Stat(target); err == nil {
		// Keep the current file, drop any stale sibling.
		res.Pruned += s.pruneExcept(dir, map[string]bool{want: true})
		res.Skipped++
		if s.metrics != nil {
			s.metrics.MediaSkips.Inc()
		}
		return
	}

	res.Pruned += s.pruneExcept(dir, nil)
	if err := s.download(ctx, signedURL, target); err != nil {
		s.fail(res, fmt.Errorf("download %s: %w", want, err))
		return
	}
	res.Downloaded++
	if s.metrics != nil {
		s.metrics.MediaDownloads.Inc()
	}
}

// syncClues downloads manifest clues that are missing and deletes local
// clues the manifest no longer names.
func (s *Syncer) syncClues(ctx context.Context, signedURLs []string, res *SyncResult) {
	dir := s.paths.ClueMediaDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.fail(res, fmt.Errorf("create %s: %w", dir, err))
		return
	}

	wanted := map[string]bool{}
	for _, signedURL := range signedURLs {
		name, err := FilenameFromURL(signedURL)
		if err != nil {
			s.fail(res, err)
			continue
		}
		wanted[name] = true

		target := filepath.Join(dir, name)
		if _, err := os.Stat(target); err == nil {
			res.Skipped++
			if s.metrics != nil {
				s.metrics.MediaSkips.Inc()
			}
			continue
		}
		if err := s.download(ctx, signedURL, target); err != nil {
			s.fail(res, fmt.Errorf("download clue %s: %w", name, err))
			continue
		}
		res.Downloaded++
		if s.metrics != nil {
			s.metrics.MediaDownloads.Inc()
		}
	}

	res.Pruned += s.pruneExcept(dir, wanted)
}

// download streams the asset to a .part sibling and renames it into place,
// so the render process never observes a partial file.
func (s *Syncer) download(ctx context.Context, signedURL, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signedURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	part := target + ".part"
	f, err := os.Create(part)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(part)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(part)
		return err
	}
	return os.Rename(part, target)
}

// pruneExcept deletes every regular file in dir whose name is not in keep.
// Victims are renamed aside first so an open handle in the render process
// keeps reading while the name disappears atomically.
func (s *Syncer) pruneExcept(dir string, keep map[string]bool) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	pruned := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || keep[name] || isWorkFile(name) {
			continue
		}
		full := filepath.Join(dir, name)
		aside := full + ".trash"
		if err := os.Rename(full, aside); err != nil {
			s.logger.Warn("prune rename failed", "file", name, "error", err)
			continue
		}
		if err := os.Remove(aside); err != nil {
			s.logger.Warn("prune remove failed", "file", name, "error", err)
		}
		pruned++
		if s.metrics != nil {
			s.metrics.MediaPrunes.Inc()
		}
	}
	return pruned
}

// isWorkFile filters in-progress artifacts from directory scans.
func isWorkFile(name string) bool {
	return strings.HasSuffix(name, ".part") ||
		strings.HasSuffix(name, ".trash") ||
		strings.HasSuffix(name, ".transcode.tmp")
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".webm": true, ".mov": true, ".avi": true, ".m4v": true,
}

// repairCodecs probes every present video file and transcodes the ones the
// platform cannot decode smoothly. The check is recomputed per file per
// pass; files already repaired probe as h264 and pass through.
func (s *Syncer) repairCodecs(ctx context.Context, caps Capabilities, res *SyncResult) {
	dirs := []string{s.paths.ClueMediaDir()}
	for _, category := range config.SingleFileCategories {
		dirs = append(dirs, s.paths.CategoryDir(category))
	}

	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || isWorkFile(name) || !videoExtensions[strings.ToLower(filepath.Ext(name))] {
				continue
			}
			s.repairOne(ctx, filepath.Join(dir, name), caps, res)
		}
	}
}

func (s *Syncer) repairOne(ctx context.Context, path string, caps Capabilities, res *SyncResult) {
	info, err := s.probe(ctx, path)
	if err != nil {
		s.fail(res, fmt.Errorf("probe %s: %w", filepath.Base(path), err))
		return
	}
	check := CheckTranscode(info.Codec, caps)
	if !check.NeedsTranscode {
		return
	}

	s.logger.Info("transcoding incompatible video",
		"file", filepath.Base(path), "codec", check.OriginalCodec)
	start := time.Now()
	progress := func(pct int) {
		if s.Progress != nil {
			s.Progress(filepath.Base(path), pct)
		}
	}
	if err := s.transcode(ctx, path, info.Duration, progress); err != nil {
		// The original stays in place; better a stuttering video than
		// a corrupt one.
		s.fail(res, fmt.Errorf("transcode %s: %w", filepath.Base(path), err))
		return
	}
	res.Transcoded++
	if s.metrics != nil {
		s.metrics.TranscodesTotal.WithLabelValues(check.OriginalCodec).Inc()
		s.metrics.TranscodeDuration.Observe(time.Since(start).Seconds())
	}
}

func (s *Syncer) fail(res *SyncResult, err error) {
	s.logger.Warn("media sync asset failure", "error", err)
	res.Errors = append(res.Errors, err)
	if s.metrics != nil {
		s.metrics.MediaErrors.Inc()
	}
}
