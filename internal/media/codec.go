package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Capabilities reports which codecs the render platform decodes smoothly.
// The caller owns detection; the pipeline only applies the flags.
type Capabilities struct {
	HEVC bool
	VP9  bool
	AV1  bool
}

// Named codecs the decision cares about; anything else passes through.
const (
	CodecHEVC  = "HEVC"
	CodecVP9   = "VP9"
	CodecAV1   = "AV1"
	CodecOther = "other"
)

// TranscodeCheck is the per-file decision. Derived, never persisted;
// recomputed for every file on every sync pass.
type TranscodeCheck struct {
	NeedsTranscode bool
	OriginalCodec  string
	RawCodec       string
}

// CheckTranscode decides whether a probed codec needs repair on this
// platform.
func CheckTranscode(rawCodec string, caps Capabilities) TranscodeCheck {
	check := TranscodeCheck{RawCodec: rawCodec}
	switch strings.ToLower(strings.TrimSpace(rawCodec)) {
	case "hevc", "h265":
		check.OriginalCodec = CodecHEVC
		check.NeedsTranscode = !caps.HEVC
	case "vp9":
		check.OriginalCodec = CodecVP9
		check.NeedsTranscode = !caps.VP9
	case "av1":
		check.OriginalCodec = CodecAV1
		check.NeedsTranscode = !caps.AV1
	default:
		check.OriginalCodec = CodecOther
	}
	return check
}

// ProbeInfo is what the pipeline needs from the container metadata.
type ProbeInfo struct {
	Codec    string
	Duration float64 // seconds; zero when the container does not report one
}

// ProbeFunc inspects a video file. Injectable so sync tests need no ffprobe.
type ProbeFunc func(ctx context.Context, path string) (ProbeInfo, error)

// ffprobeOutput mirrors the subset of ffprobe's JSON we read.
type ffprobeOutput struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeVideo reads the primary video stream codec and container duration
// with ffprobe.
func ProbeVideo(ctx context.Context, path string) (ProbeInfo, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return ProbeInfo{}, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(stderr.String()))
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return ProbeInfo{}, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}
	if len(out.Streams) == 0 {
		return ProbeInfo{}, fmt.Errorf("ffprobe %s: no video stream", path)
	}

	info := ProbeInfo{Codec: out.Streams[0].CodecName}
	if out.Format.Duration != "" {
		if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	return info, nil
}
