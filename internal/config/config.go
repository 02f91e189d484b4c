package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level daemon configuration.
type Config struct {
	Device  DeviceConfig  `yaml:"device"`
	Paths   PathsConfig   `yaml:"paths"`
	TTS     TTSConfig     `yaml:"tts"`
	Events  EventsConfig  `yaml:"events"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// DeviceConfig identifies the device against the game-control API.
type DeviceConfig struct {
	APIBaseURL string `yaml:"api_base_url"`
	// Poll interval overrides keyed by worker name. Zero means the
	// worker's built-in default.
	PollIntervals map[string]time.Duration `yaml:"poll_intervals,omitempty"`
}

// PathsConfig anchors the on-disk layout. Only DataDir is configured;
// everything below it is a fixed contract shared with the render process.
type PathsConfig struct {
	DataDir string `yaml:"data_dir"`
}

// TTSConfig configures speech synthesis and its cache.
type TTSConfig struct {
	PiperBinary   string `yaml:"piper_binary"`
	VoicesDir     string `yaml:"voices_dir"`
	MaxCacheBytes int64  `yaml:"max_cache_bytes"`
}

// EventsConfig configures the outbound UI event stream. NATS is optional;
// when URL is empty the daemon uses the in-process channel sink only.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url,omitempty"`
	Subject string `yaml:"subject,omitempty"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// LoggingConfig selects level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Load reads the configuration file, expanding ${ENV} references after
// bootstrapping a local .env file if one exists.
func Load(configPath string) (*Config, error) {
	// .env is optional; it keeps device credentials out of the yaml.
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Paths.DataDir == "" {
		c.Paths.DataDir = "./kiosk-data"
	}
	if c.TTS.MaxCacheBytes <= 0 {
		c.TTS.MaxCacheBytes = 200 * 1024 * 1024
	}
	if c.TTS.PiperBinary == "" {
		c.TTS.PiperBinary = "piper"
	}
	if c.TTS.VoicesDir == "" {
		c.TTS.VoicesDir = filepath.Join(c.Paths.DataDir, "voices")
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "kiosk.events"
	}
	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = "127.0.0.1:9109"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

func (c *Config) validate() error {
	if c.Device.APIBaseURL == "" {
		return fmt.Errorf("device.api_base_url is required")
	}
	return nil
}
