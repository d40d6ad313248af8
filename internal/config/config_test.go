package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.GenAIMode != "auto" {
		t.Fatalf("GenAIMode = %q, want %q", cfg.GenAIMode, "auto")
	}
	if cfg.DatabasePath != "studybuddy.db" {
		t.Fatalf("DatabasePath = %q, want default sqlite file", cfg.DatabasePath)
	}
	if cfg.DailyRewardPoints != 10 {
		t.Fatalf("DailyRewardPoints = %d, want 10", cfg.DailyRewardPoints)
	}
	if cfg.AdminEnabled() {
		t.Fatalf("AdminEnabled() = true without configured credentials")
	}
}

func TestLoadRejectsInvalidGenAIMode(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("GENAI_MODE", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for invalid GENAI_MODE")
	}
}

func TestLoadRequiresTokenSecretWithAdminCredentials(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("ADMIN_IDENTIFIER", "admin@example.com")
	t.Setenv("ADMIN_PASSWORD", "s3cret")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error when ADMIN_TOKEN_SECRET is missing")
	}

	t.Setenv("ADMIN_TOKEN_SECRET", "topsecret")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.AdminEnabled() {
		t.Fatalf("AdminEnabled() = false, want true")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_FIRST_AUDIO_SLO",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"GENAI_MODE",
		"GENAI_API_KEY",
		"GENAI_BASE_URL",
		"GENAI_LIVE_URL",
		"GENAI_TEXT_MODEL",
		"GENAI_MATH_MODEL",
		"GENAI_LIVE_MODEL",
		"DATABASE_URL",
		"DATABASE_PATH",
		"ADMIN_IDENTIFIER",
		"ADMIN_PHONE",
		"ADMIN_PASSWORD",
		"ADMIN_TOKEN_SECRET",
		"ADMIN_TOKEN_TTL",
		"DAILY_REWARD_POINTS",
		"RECORDINGS_DIR",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
