package media

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// TranscodeFunc re-encodes a video in place. Injectable for tests.
type TranscodeFunc func(ctx context.Context, path string, duration float64, progress func(pct int)) error

// Transcode re-encodes path to H.264/yuv420p/AAC via a sibling temp file,
// then atomically replaces the original under its own name so later sync
// passes neither re-download nor re-transcode it. On failure the original
// is left untouched.
func Transcode(ctx context.Context, path string, duration float64, progress func(pct int)) error {
	tmp := path + ".transcode.tmp"

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", path,
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-movflags", "+faststart",
		"-f", "mp4",
		"-nostats",
		"-progress", "pipe:1",
		tmp,
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transcode %s: %w", path, err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg for %s: %w", path, err)
	}

	// ffmpeg reports elapsed encode time as out_time_us key/value lines;
	// percent is elapsed against the probed duration.
	scanner := bufio.NewScanner(stdout)
	lastPct := -1
	for scanner.Scan() {
		line := scanner.Text()
		key, value, found := strings.Cut(line, "=")
		if !found || key != "out_time_us" {
			continue
		}
		us, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || duration <= 0 {
			continue
		}
		pct := int(float64(us) / 1e6 / duration * 100)
		if pct > 100 {
			pct = 100
		}
		if pct != lastPct && progress != nil {
			progress(pct)
			lastPct = pct
		}
	}

	if err := cmd.Wait(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("ffmpeg failed for %s: %w", path, err)
	}

	if err := os.Remove(path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("remove original %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("swap transcoded file into %s: %w", path, err)
	}
	if progress != nil {
		progress(100)
	}
	return nil
}
