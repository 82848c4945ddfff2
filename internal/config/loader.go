package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"deepgram"},
	"tts": {"elevenlabs"},
}

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr     = ":8080"
	DefaultStorageKey     = "chat_messages"
	DefaultRespondTimeout = 30 * time.Second
	DefaultHealthInterval = 30 * time.Second
	flightCheckPath       = "/api/flight-check"
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, fills defaults and validates
// the result. An empty document is treated as all defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Respond.Mode == "" {
		cfg.Respond.Mode = RespondLocal
		if cfg.Respond.BaseURL != "" {
			cfg.Respond.Mode = RespondRemote
		}
	}
	if cfg.Respond.Timeout == 0 {
		cfg.Respond.Timeout = DefaultRespondTimeout
	}
	if cfg.Session.StorageKey == "" {
		cfg.Session.StorageKey = DefaultStorageKey
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageMemory
	}
	if cfg.Health.Interval == 0 {
		cfg.Health.Interval = DefaultHealthInterval
	}
	if cfg.Health.FlightCheckURL == "" && cfg.Respond.Mode.usesRemote() && cfg.Respond.BaseURL != "" {
		cfg.Health.FlightCheckURL = strings.TrimRight(cfg.Respond.BaseURL, "/") + flightCheckPath
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.TTS.Name != "" && cfg.Providers.TTS.Option("voice_id") == "" {
		slog.Warn("providers.tts has no options.voice_id; the provider default voice is used")
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; sessions accept text only")
	}

	// Respond
	mode := cfg.Respond.Mode
	if mode != "" && !mode.IsValid() {
		errs = append(errs, fmt.Errorf("respond.mode %q is invalid; valid values: remote, local, failover", mode))
	}
	if mode.usesRemote() {
		if cfg.Respond.BaseURL == "" {
			errs = append(errs, fmt.Errorf("respond.base_url is required when respond.mode is %q", mode))
		} else if err := validateHTTPURL(cfg.Respond.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("respond.base_url: %w", err))
		}
	}
	if mode.usesLocal() && cfg.Providers.LLM.Name == "" {
		errs = append(errs, fmt.Errorf("respond.mode %q requires an LLM provider but providers.llm is not configured", mode))
	}
	if cfg.Respond.Timeout < 0 {
		errs = append(errs, errors.New("respond.timeout must not be negative"))
	}
	if cfg.Respond.History < 0 {
		errs = append(errs, errors.New("respond.history must not be negative"))
	}
	if cfg.Respond.Temperature < 0 || cfg.Respond.Temperature > 2 {
		errs = append(errs, fmt.Errorf("respond.temperature %.2f is out of range [0, 2]", cfg.Respond.Temperature))
	}
	b := cfg.Respond.Breaker
	if b.MaxFailures < 0 || b.HalfOpenProbes < 0 || b.ResetTimeout < 0 {
		errs = append(errs, errors.New("respond.breaker values must not be negative"))
	}

	// Session
	s := cfg.Session
	if s.GraceDelay < 0 || s.GreetDelay < 0 {
		errs = append(errs, errors.New("session delays must not be negative"))
	}
	if s.MaxInputRestarts < 0 {
		errs = append(errs, errors.New("session.max_input_restarts must not be negative"))
	}
	if s.InputSampleRate < 0 || s.InputSampleRate > 192000 {
		errs = append(errs, fmt.Errorf("session.input_sample_rate %d is out of range", s.InputSampleRate))
	}
	if s.InputChannels != 0 && s.InputChannels != 1 && s.InputChannels != 2 {
		errs = append(errs, fmt.Errorf("session.input_channels %d is invalid; valid values: 1, 2", s.InputChannels))
	}

	// Storage
	switch backend := cfg.Storage.Backend; {
	case backend != "" && !backend.IsValid():
		errs = append(errs, fmt.Errorf("storage.backend %q is invalid; valid values: memory, file, postgres", backend))
	case backend == StorageFile && cfg.Storage.Dir == "":
		errs = append(errs, errors.New("storage.dir is required when storage.backend is file"))
	case backend == StoragePostgres && cfg.Storage.PostgresDSN == "":
		errs = append(errs, errors.New("storage.postgres_dsn is required when storage.backend is postgres"))
	}

	// Health
	if cfg.Health.Interval < 0 {
		errs = append(errs, errors.New("health.interval must not be negative"))
	}
	if u := cfg.Health.FlightCheckURL; u != "" {
		if err := validateHTTPURL(u); err != nil {
			errs = append(errs, fmt.Errorf("health.flight_check_url: %w", err))
		}
	}

	return errors.Join(errs...)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
