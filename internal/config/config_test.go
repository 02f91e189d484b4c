package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "device:\n  api_base_url: https://api.example.com\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "./kiosk-data", cfg.Paths.DataDir)
	assert.Equal(t, int64(200*1024*1024), cfg.TTS.MaxCacheBytes)
	assert.Equal(t, "piper", cfg.TTS.PiperBinary)
	assert.Equal(t, "kiosk.events", cfg.Events.Subject)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRequiresBaseURL(t *testing.T) {
	path := writeConfig(t, "paths:\n  data_dir: /tmp/x\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("KIOSK_API", "https://env.example.com")
	path := writeConfig(t, "device:\n  api_base_url: ${KIOSK_API}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example.com", cfg.Device.APIBaseURL)
}

func TestPathLayoutContract(t *testing.T) {
	p := PathsConfig{DataDir: "/data"}

	assert.Equal(t, filepath.Join("/data", "media-files", "room-media-files"), p.RoomMediaDir())
	assert.Equal(t,
		filepath.Join("/data", "media-files", "room-media-files", "music-files"),
		p.CategoryDir(CategoryMusic))
	assert.Equal(t, filepath.Join("/data", "media-files", "clue-media-files"), p.ClueMediaDir())
	assert.Equal(t, filepath.Join("/data", "tts-cache"), p.TTSCacheDir())

	// Every category the render process reads must be enumerated.
	assert.Equal(t, []string{
		"music-files",
		"idleScreen-media",
		"gameBackground-media",
		"intro-media",
		"success-media",
		"fail-media",
		"custom-clue-media",
	}, SingleFileCategories)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLogLevel("WARN"))
	assert.Equal(t, slog.LevelError, ParseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLogLevel("garbage"))
}
