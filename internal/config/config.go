package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the transcription pipeline daemon.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AudioDir string

	WhisperAPIURL  string
	WhisperTimeout time.Duration
	WhisperRetries int

	ChatRelayURL string
	ChatTimeout  time.Duration

	DuplicateCooldown time.Duration
	DuplicateMaxAge   time.Duration

	ChunkSeconds          int
	SegmentThresholdBytes int64

	WarnOnSkippedSegments bool

	DatabaseURL string
}

// ServerConfig contains all runtime settings for the whisperd inference service.
type ServerConfig struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	Model            string
	WhisperServerBin string
	ModelPath        string
	Language         string

	VRAMThresholdFreeMB int
	IdleUnload          time.Duration
	IdleCheckInterval   time.Duration
	Preload             bool
}

// Load reads environment variables for the pipeline daemon and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8090"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "innervoice"),
		AudioDir:         envOrDefault("AUDIO_DIR", "audios"),
		WhisperAPIURL:    envOrDefault("WHISPER_API_URL", "http://whisper:9000"),
		// Long audio means many segments; allow enough time per request
		// (the GPU can be slow or recovering).
		WhisperTimeout: 10 * time.Minute,
		WhisperRetries: 2,
		ChatRelayURL:   envTrimmed("CHAT_RELAY_URL"),
		ChatTimeout:    200 * time.Second,

		DuplicateCooldown: 60 * time.Second,
		DuplicateMaxAge:   10 * time.Minute,

		ChunkSeconds:          30,
		SegmentThresholdBytes: 1 << 20,

		WarnOnSkippedSegments: false,

		DatabaseURL:     envTrimmed("DATABASE_URL"),
		ShutdownTimeout: 15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WhisperTimeout, err = durationFromEnv("WHISPER_TIMEOUT", cfg.WhisperTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WhisperRetries, err = intFromEnv("WHISPER_RETRIES", cfg.WhisperRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatTimeout, err = durationFromEnv("CHAT_TIMEOUT", cfg.ChatTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.DuplicateCooldown, err = durationFromEnv("DUPLICATE_COOLDOWN", cfg.DuplicateCooldown)
	if err != nil {
		return Config{}, err
	}
	cfg.DuplicateMaxAge, err = durationFromEnv("DUPLICATE_MAX_AGE", cfg.DuplicateMaxAge)
	if err != nil {
		return Config{}, err
	}
	cfg.ChunkSeconds, err = intFromEnv("CHUNK_SECONDS", cfg.ChunkSeconds)
	if err != nil {
		return Config{}, err
	}
	threshold, err := intFromEnv("SEGMENT_SIZE_THRESHOLD_BYTES", int(cfg.SegmentThresholdBytes))
	if err != nil {
		return Config{}, err
	}
	cfg.SegmentThresholdBytes = int64(threshold)
	cfg.WarnOnSkippedSegments, err = boolFromEnv("PIPELINE_WARN_ON_SKIPPED", cfg.WarnOnSkippedSegments)
	if err != nil {
		return Config{}, err
	}

	if cfg.WhisperRetries < 0 {
		return Config{}, fmt.Errorf("WHISPER_RETRIES must be >= 0")
	}
	if cfg.ChunkSeconds <= 0 {
		return Config{}, fmt.Errorf("CHUNK_SECONDS must be positive")
	}
	if cfg.SegmentThresholdBytes <= 0 {
		return Config{}, fmt.Errorf("SEGMENT_SIZE_THRESHOLD_BYTES must be positive")
	}
	if cfg.DuplicateCooldown <= 0 {
		return Config{}, fmt.Errorf("DUPLICATE_COOLDOWN must be positive")
	}
	if cfg.DuplicateMaxAge < cfg.DuplicateCooldown {
		return Config{}, fmt.Errorf("DUPLICATE_MAX_AGE must be at least DUPLICATE_COOLDOWN")
	}

	return cfg, nil
}

// LoadServer reads environment variables for whisperd and applies safe defaults.
func LoadServer() (ServerConfig, error) {
	cfg := ServerConfig{
		BindAddr:         envOrDefault("WHISPERD_BIND_ADDR", ":9000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "whisperd"),
		Model:            envOrDefault("WHISPER_MODEL", "medium"),
		WhisperServerBin: envOrDefault("WHISPER_SERVER_BIN", "whisper-server"),
		ModelPath:        envOrDefault("WHISPER_MODEL_PATH", ".models/whisper/ggml-medium.bin"),
		Language:         envOrDefault("WHISPER_LANGUAGE", ""),

		VRAMThresholdFreeMB: 2048,
		// Unload the model from the accelerator after this long without use.
		IdleUnload:        15 * time.Minute,
		IdleCheckInterval: time.Minute,
		Preload:           false,
		ShutdownTimeout:   15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.VRAMThresholdFreeMB, err = intFromEnv("VRAM_THRESHOLD_FREE_MB", cfg.VRAMThresholdFreeMB)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.IdleUnload, err = durationFromEnv("WHISPER_IDLE_UNLOAD", cfg.IdleUnload)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.IdleCheckInterval, err = durationFromEnv("WHISPER_IDLE_CHECK_INTERVAL", cfg.IdleCheckInterval)
	if err != nil {
		return ServerConfig{}, err
	}
	cfg.Preload, err = boolFromEnv("MODEL_PRELOAD", cfg.Preload)
	if err != nil {
		return ServerConfig{}, err
	}

	if cfg.VRAMThresholdFreeMB < 0 {
		return ServerConfig{}, fmt.Errorf("VRAM_THRESHOLD_FREE_MB must be >= 0")
	}
	if cfg.IdleCheckInterval <= 0 {
		return ServerConfig{}, fmt.Errorf("WHISPER_IDLE_CHECK_INTERVAL must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
