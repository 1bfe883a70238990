package config

import (
	"testing"
)

// fakeBackend is an in-memory ConfigBackend for tests.
type fakeBackend struct {
	strings map[string]string
	ints    map[string]int
}

func (b *fakeBackend) GetString(key string) (string, bool, error) {
	v, ok := b.strings[key]
	return v, ok, nil
}

func (b *fakeBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.ints[key]
	return v, ok, nil
}

func (b *fakeBackend) SetString(key, val string) error {
	if b.strings == nil {
		b.strings = map[string]string{}
	}
	b.strings[key] = val
	return nil
}

func (b *fakeBackend) SetInt(key string, val int) error {
	if b.ints == nil {
		b.ints = map[string]int{}
	}
	b.ints[key] = val
	return nil
}

func (b *fakeBackend) Delete(key string) error {
	delete(b.strings, key)
	delete(b.ints, key)
	return nil
}

// TestDefaults verifies the defaults survive an empty backend.
func TestDefaults(t *testing.T) {
	cfg, err := loadWith(&fakeBackend{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4600 {
		t.Errorf("Server.Port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://localhost:11434" {
		t.Errorf("Ollama.BaseURL = %q, want %q", cfg.Ollama.BaseURL, "http://localhost:11434")
	}
	if cfg.Ollama.ExtractModel != "phi3.5" {
		t.Errorf("Ollama.ExtractModel = %q, want %q", cfg.Ollama.ExtractModel, "phi3.5")
	}
	if cfg.Interview.IdleTimeout != "30m" {
		t.Errorf("Interview.IdleTimeout = %q, want %q", cfg.Interview.IdleTimeout, "30m")
	}
	if cfg.Interview.SweepInterval != "1m" {
		t.Errorf("Interview.SweepInterval = %q, want %q", cfg.Interview.SweepInterval, "1m")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
}

// TestBackendValues verifies backend values override defaults.
func TestBackendValues(t *testing.T) {
	b := &fakeBackend{
		strings: map[string]string{
			"ollama.base_url":        "http://custom:11434",
			"ollama.extract_model":   "custom-model",
			"storage.data_dir":       "/tmp/soulforge-test",
			"interview.idle_timeout": "15m",
		},
		ints: map[string]int{
			"server.port": 5000,
		},
	}

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Ollama.BaseURL != "http://custom:11434" {
		t.Errorf("Ollama.BaseURL = %q", cfg.Ollama.BaseURL)
	}
	if cfg.Ollama.ExtractModel != "custom-model" {
		t.Errorf("Ollama.ExtractModel = %q", cfg.Ollama.ExtractModel)
	}
	if cfg.Storage.DataDir != "/tmp/soulforge-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Interview.IdleTimeout != "15m" {
		t.Errorf("Interview.IdleTimeout = %q", cfg.Interview.IdleTimeout)
	}
}

// TestEnvOverride verifies that environment variables win over backend values.
func TestEnvOverride(t *testing.T) {
	b := &fakeBackend{
		strings: map[string]string{
			"ollama.extract_model": "backend-model",
		},
		ints: map[string]int{
			"server.port": 5000,
		},
	}

	t.Setenv("SOULFORGE_OLLAMA_EXTRACT_MODEL", "env-model")
	t.Setenv("SOULFORGE_SERVER_PORT", "6000")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Ollama.ExtractModel != "env-model" {
		t.Errorf("Ollama.ExtractModel = %q, want %q", cfg.Ollama.ExtractModel, "env-model")
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
}

// TestEnvOverrideBadInt verifies a malformed integer env var keeps the
// backend value instead of failing the load.
func TestEnvOverrideBadInt(t *testing.T) {
	b := &fakeBackend{
		ints: map[string]int{"server.port": 5000},
	}

	t.Setenv("SOULFORGE_SERVER_PORT", "not-a-number")

	cfg, err := loadWith(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
}

// TestGetAPIToken_GeneratesAndReuses verifies a token is minted once and
// returned verbatim afterwards.
func TestGetAPIToken_GeneratesAndReuses(t *testing.T) {
	kc := &fakeKeychain{values: map[string]string{}}

	token, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(token))
	}

	again, err := GetAPIToken(kc)
	if err != nil {
		t.Fatalf("GetAPIToken second call: %v", err)
	}
	if again != token {
		t.Errorf("second token %q differs from first %q", again, token)
	}
}

type fakeKeychain struct {
	values map[string]string
}

func (f *fakeKeychain) Get(service, account string) (string, error) {
	return f.values[service+"/"+account], nil
}

func (f *fakeKeychain) Set(service, account, value string) error {
	f.values[service+"/"+account] = value
	return nil
}
