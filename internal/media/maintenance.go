package media

import (
	"os"
	"path/filepath"
	"time"

	"github.com/roomtrek/kioskd/internal/config"
)

// staleWorkFileAge is how old an abandoned .part/.trash/.transcode.tmp file
// must be before the sweep removes it. Young work files may belong to a
// sync pass still in flight.
const staleWorkFileAge = time.Hour

// CleanWorkFiles removes abandoned download and transcode artifacts left by
// interrupted passes. Run periodically by the maintenance scheduler.
func (s *Syncer) CleanWorkFiles() int {
	dirs := []string{s.paths.ClueMediaDir()}
	for _, category := range config.SingleFileCategories {
		dirs = append(dirs, s.paths.CategoryDir(category))
	}

	removed := 0
	cutoff := time.Now().Add(-staleWorkFileAge)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !isWorkFile(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		s.logger.Info("cleaned stale media work files", "removed", removed)
	}
	return removed
}
