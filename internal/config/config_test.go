package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.BrowserMode != BrowserLocal {
		t.Errorf("BrowserMode = %q, want local", cfg.BrowserMode)
	}
	if cfg.SendDelay != 8*time.Second {
		t.Errorf("SendDelay = %s, want 8s", cfg.SendDelay)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 10<<20)
	}
	if cfg.WhatsAppURL != "https://web.whatsapp.com" {
		t.Errorf("WhatsAppURL = %q", cfg.WhatsAppURL)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9000")
	t.Setenv("BROWSER_MODE", "DOCKER")
	t.Setenv("CHROME_HEADLESS", "true")
	t.Setenv("SEND_DELAY", "12s")
	t.Setenv("WHATSAPP_URL", "http://localhost:3001/")
	t.Setenv("MAX_UPLOAD_MB", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}

	if cfg.HTTPAddr != ":9000" {
		t.Errorf("HTTPAddr = %q, want :9000", cfg.HTTPAddr)
	}
	if cfg.BrowserMode != BrowserDocker {
		t.Errorf("BrowserMode = %q, want docker", cfg.BrowserMode)
	}
	if !cfg.ChromeHeadless {
		t.Error("ChromeHeadless = false, want true")
	}
	if cfg.SendDelay != 12*time.Second {
		t.Errorf("SendDelay = %s, want 12s", cfg.SendDelay)
	}
	if cfg.WhatsAppURL != "http://localhost:3001" {
		t.Errorf("WhatsAppURL = %q, want trailing slash trimmed", cfg.WhatsAppURL)
	}
	if cfg.MaxUploadBytes != 2<<20 {
		t.Errorf("MaxUploadBytes = %d, want %d", cfg.MaxUploadBytes, 2<<20)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad mode", "BROWSER_MODE", "remote"},
		{"bad duration", "SEND_TIMEOUT", "soon"},
		{"bad bool", "CHROME_HEADLESS", "maybe"},
		{"delay above max", "SEND_DELAY", "1m"},
		{"delay below min", "SEND_DELAY", "1s"},
		{"zero burst", "RUN_START_BURST", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("Load() with %s=%s succeeded, want error", tt.key, tt.value)
			}
		})
	}
}
