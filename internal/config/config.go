package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the StudyBuddy service.
type Config struct {
	BindAddr                 string
	ShutdownTimeout          time.Duration
	SessionInactivityTimeout time.Duration
	FirstAudioSLO            time.Duration
	MetricsNamespace         string

	AllowAnyOrigin bool

	GenAIMode      string
	GenAIAPIKey    string
	GenAIBaseURL   string
	GenAILiveURL   string
	GenAITextModel string
	GenAIMathModel string
	GenAILiveModel string

	DatabaseURL  string
	DatabasePath string

	AdminIdentifier  string
	AdminPhone       string
	AdminPassword    string
	AdminTokenSecret string
	AdminTokenTTL    time.Duration

	DailyRewardPoints int
	RecordingsDir     string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "studybuddy"),
		AllowAnyOrigin:   false,
		GenAIMode:        envOrDefault("GENAI_MODE", "auto"),
		GenAIAPIKey:      trimmedEnv("GENAI_API_KEY"),
		GenAIBaseURL:     envOrDefault("GENAI_BASE_URL", "https://generativelanguage.googleapis.com"),
		GenAILiveURL:     envOrDefault("GENAI_LIVE_URL", "wss://generativelanguage.googleapis.com"),
		// Flash covers explanations, translation and chat; Pro carries the
		// heavier mathematical reasoning.
		GenAITextModel: envOrDefault("GENAI_TEXT_MODEL", "gemini-3-flash-preview"),
		GenAIMathModel: envOrDefault("GENAI_MATH_MODEL", "gemini-3-pro-preview"),
		GenAILiveModel: envOrDefault("GENAI_LIVE_MODEL", "gemini-2.5-flash-native-audio-preview-12-2025"),
		DatabaseURL:    trimmedEnv("DATABASE_URL"),
		// Single-device deployments keep everything in one SQLite file, the
		// service-side equivalent of the old browser storage blob.
		DatabasePath:             envOrDefault("DATABASE_PATH", "studybuddy.db"),
		AdminIdentifier:          trimmedEnv("ADMIN_IDENTIFIER"),
		AdminPhone:               trimmedEnv("ADMIN_PHONE"),
		AdminPassword:            trimmedEnv("ADMIN_PASSWORD"),
		AdminTokenSecret:         trimmedEnv("ADMIN_TOKEN_SECRET"),
		AdminTokenTTL:            12 * time.Hour,
		DailyRewardPoints:        10,
		RecordingsDir:            trimmedEnv("RECORDINGS_DIR"),
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 2 * time.Minute,
		FirstAudioSLO:            700 * time.Millisecond,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.FirstAudioSLO, err = durationFromEnv("APP_FIRST_AUDIO_SLO", cfg.FirstAudioSLO)
	if err != nil {
		return Config{}, err
	}
	cfg.AdminTokenTTL, err = durationFromEnv("ADMIN_TOKEN_TTL", cfg.AdminTokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.DailyRewardPoints, err = intFromEnv("DAILY_REWARD_POINTS", cfg.DailyRewardPoints)
	if err != nil {
		return Config{}, err
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.GenAIMode))
	if mode == "" {
		mode = "auto"
	}
	switch mode {
	case "auto", "http", "mock":
		cfg.GenAIMode = mode
	default:
		return Config{}, fmt.Errorf("invalid GENAI_MODE: %q (expected auto|http|mock)", cfg.GenAIMode)
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.DailyRewardPoints < 0 {
		return Config{}, fmt.Errorf("DAILY_REWARD_POINTS must be >= 0")
	}
	if cfg.AdminTokenTTL <= 0 {
		return Config{}, fmt.Errorf("ADMIN_TOKEN_TTL must be positive")
	}
	if cfg.AdminEnabled() && cfg.AdminTokenSecret == "" {
		return Config{}, fmt.Errorf("ADMIN_TOKEN_SECRET is required when admin credentials are configured")
	}

	return cfg, nil
}

// AdminEnabled reports whether the admin login surface is configured at all.
func (c Config) AdminEnabled() bool {
	return c.AdminIdentifier != "" && c.AdminPassword != ""
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimmedEnv(key)
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
	v := trimmedEnv(key)
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
	v := strings.ToLower(trimmedEnv(key))
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
