package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Synthesis timeout: a floor plus a per-character allowance, because the
// engine can hang on pathological input and short texts should fail fast.
const (
	synthTimeoutFloor   = 10 * time.Second
	synthTimeoutPerChar = 100 * time.Millisecond
)

// PiperEngine returns a SynthFunc that shells out to a piper binary.
func PiperEngine(binary string) SynthFunc {
	return func(ctx context.Context, text, voicePath, outPath string) error {
		timeout := synthTimeoutFloor + time.Duration(len(text))*synthTimeoutPerChar
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		cmd := exec.CommandContext(ctx, binary,
			"--model", voicePath,
			"--output_file", outPath,
		)
		cmd.Stdin = strings.NewReader(text)
		var stderr bytes.Buffer
		cmd.Stderr = &stderr

		if err := cmd.Run(); err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				return fmt.Errorf("piper timed out after %s", timeout)
			}
			return fmt.Errorf("piper: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
		return nil
	}
}
