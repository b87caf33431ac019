package baikon

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
log_level: debug
api_timeout: 5
store_path: /tmp/baikon.db
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() returned error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.APITimeout != 5 {
		t.Errorf("APITimeout = %d, want 5", cfg.APITimeout)
	}
	if cfg.StorePath != "/tmp/baikon.db" {
		t.Errorf("StorePath = %q", cfg.StorePath)
	}
	// Unset fields keep defaults.
	if cfg.RateLimit != 60 {
		t.Errorf("RateLimit = %d, want default 60", cfg.RateLimit)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("LoadConfig() should fail on a missing file")
	}
	// Returned config is still usable.
	if cfg.APITimeout != 10 {
		t.Errorf("APITimeout = %d, want default 10", cfg.APITimeout)
	}
}

func TestConfigSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		cfg := Config{LogLevel: tt.level}
		if got := cfg.SlogLevel(); got != tt.want {
			t.Errorf("SlogLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
