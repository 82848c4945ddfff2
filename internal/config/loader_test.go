package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MrWong99/solace/internal/config"
)

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "solace.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.LLM.Name != "openai" {
		t.Errorf("providers.llm.name: got %q", cfg.Providers.LLM.Name)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !strings.Contains(err.Error(), "absent.yaml") {
		t.Errorf("error should name the path, got: %v", err)
	}
}

func TestLoad_InvalidFileNamesPath(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("server: [\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := config.Load(path)
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "broken.yaml") || !strings.Contains(err.Error(), "decode yaml") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:  config.ServerConfig{ListenAddr: ":1", LogLevel: config.LogWarn},
		Respond: config.RespondConfig{Mode: config.RespondRemote, BaseURL: "http://up"},
		Session: config.SessionConfig{StorageKey: "custom"},
		Health:  config.HealthConfig{FlightCheckURL: "http://elsewhere/ready"},
	}
	config.ApplyDefaults(cfg)

	if cfg.Server.ListenAddr != ":1" || cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("server overwritten: %+v", cfg.Server)
	}
	if cfg.Session.StorageKey != "custom" {
		t.Errorf("storage_key overwritten: %q", cfg.Session.StorageKey)
	}
	if cfg.Health.FlightCheckURL != "http://elsewhere/ready" {
		t.Errorf("flight_check_url overwritten: %q", cfg.Health.FlightCheckURL)
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"llm", "stt", "tts"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("no known names for %s", kind)
		}
	}
}
