package upstream

import (
	"os"
	"testing"
	"time"
)

func TestConfigFromEnvOverridesDefaults(t *testing.T) {
	t.Setenv("MFAPI_BASE_URL", "https://example.test/mf")
	t.Setenv("MFAPI_TIMEOUT", "5")

	cfg := configFromEnv()
	if cfg.BaseURL != "https://example.test/mf" {
		t.Errorf("expected overridden base url, got %q", cfg.BaseURL)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Timeout)
	}
}

func TestConfigFromEnvFallsBackToDefaults(t *testing.T) {
	os.Unsetenv("MFAPI_BASE_URL")
	os.Unsetenv("MFAPI_TIMEOUT")

	cfg := configFromEnv()
	want := DefaultConfig()
	if cfg.BaseURL != want.BaseURL || cfg.Timeout != want.Timeout {
		t.Errorf("expected defaults %+v, got %+v", want, cfg)
	}
}
