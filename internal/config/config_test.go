package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Workers != 4 {
		t.Errorf("expected default workers 4, got %d", cfg.Workers)
	}
	if cfg.ChunkSize != 64*1024 {
		t.Errorf("expected default chunk size 64KB, got %d", cfg.ChunkSize)
	}
	if cfg.Retry.Attempts != 10 {
		t.Errorf("expected default retry attempts 10, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.BaseDelay != 5*time.Second {
		t.Errorf("expected default retry base delay 5s, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.MaxDelay != 60*time.Second {
		t.Errorf("expected default retry max delay 60s, got %v", cfg.Retry.MaxDelay)
	}
	if cfg.Rounds.Cooldown != 5*time.Second {
		t.Errorf("expected default round cooldown 5s, got %v", cfg.Rounds.Cooldown)
	}
	if cfg.Rounds.Max != 0 {
		t.Errorf("expected unbounded rounds by default, got %d", cfg.Rounds.Max)
	}
	if cfg.Timeouts.Connect != 15*time.Second {
		t.Errorf("expected default connect timeout 15s, got %v", cfg.Timeouts.Connect)
	}
	if cfg.Timeouts.Read != 60*time.Second {
		t.Errorf("expected default read timeout 60s, got %v", cfg.Timeouts.Read)
	}
	if len(cfg.Filters.KeepSuffixes) == 0 {
		t.Error("expected default keep suffixes")
	}
}

func TestEndpointDerivation(t *testing.T) {
	cfg := Config{AuthBase: "https://auth.example.com/realms/eog/protocol/openid-connect"}

	if got := cfg.TokenURL(); got != "https://auth.example.com/realms/eog/protocol/openid-connect/token" {
		t.Errorf("unexpected token URL %q", got)
	}
	if got := cfg.AuthURL(); got != "https://auth.example.com/realms/eog/protocol/openid-connect/auth" {
		t.Errorf("unexpected auth URL %q", got)
	}
}

func TestLoadFromYAML(t *testing.T) {
	yamlContent := `
base_url: https://mirror.example.com/data/
auth_base: https://auth.example.com/realms/eog/protocol/openid-connect
save_dir: /tmp/mirror
workers: 8
chunk_size: 512KB
progress: true
filters:
  keep_suffixes: [".tif.gz"]
  exclude_dirs: ["old"]
rounds:
  cooldown: 2s
  max: 7
retry:
  attempts: 3
  base_delay: 1s
  max_delay: 20s
timeouts:
  connect: 5s
  read: 30s
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.BaseURL != "https://mirror.example.com/data/" {
		t.Errorf("expected base URL overridden, got %s", cfg.BaseURL)
	}
	if cfg.SaveDir != "/tmp/mirror" {
		t.Errorf("expected save dir /tmp/mirror, got %s", cfg.SaveDir)
	}
	if cfg.Workers != 8 {
		t.Errorf("expected workers 8, got %d", cfg.Workers)
	}
	if cfg.ChunkSize != 512*1024 {
		t.Errorf("expected chunk size 512KB, got %d", cfg.ChunkSize)
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if len(cfg.Filters.KeepSuffixes) != 1 || cfg.Filters.KeepSuffixes[0] != ".tif.gz" {
		t.Errorf("expected keep suffixes [.tif.gz], got %v", cfg.Filters.KeepSuffixes)
	}
	if cfg.Rounds.Cooldown != 2*time.Second {
		t.Errorf("expected round cooldown 2s, got %v", cfg.Rounds.Cooldown)
	}
	if cfg.Rounds.Max != 7 {
		t.Errorf("expected max rounds 7, got %d", cfg.Rounds.Max)
	}
	if cfg.Retry.Attempts != 3 {
		t.Errorf("expected retry attempts 3, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.BaseDelay != time.Second {
		t.Errorf("expected retry base delay 1s, got %v", cfg.Retry.BaseDelay)
	}
	if cfg.Retry.MaxDelay != 20*time.Second {
		t.Errorf("expected retry max delay 20s, got %v", cfg.Retry.MaxDelay)
	}
	if cfg.Timeouts.Connect != 5*time.Second {
		t.Errorf("expected connect timeout 5s, got %v", cfg.Timeouts.Connect)
	}
	if cfg.Timeouts.Read != 30*time.Second {
		t.Errorf("expected read timeout 30s, got %v", cfg.Timeouts.Read)
	}
}

func TestYAMLNeverCarriesCredentials(t *testing.T) {
	yamlContent := `
username: from-yaml
password: from-yaml
workers: 2
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Username != "" || cfg.Password != "" {
		t.Errorf("credentials must not load from YAML, got %q / %q", cfg.Username, cfg.Password)
	}
	if cfg.Workers != 2 {
		t.Errorf("expected workers 2, got %d", cfg.Workers)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("EOGDL_BASE_URL", "https://env.example.com/data/")
	t.Setenv("EOGDL_USERNAME", "env-user")
	t.Setenv("EOGDL_PASSWORD", "env-pass")
	t.Setenv("EOGDL_WORKERS", "6")
	t.Setenv("EOGDL_CHUNK_SIZE", "1MB")
	t.Setenv("EOGDL_PROGRESS", "true")
	t.Setenv("EOGDL_MAX_ROUNDS", "9")
	t.Setenv("EOGDL_RETRY_ATTEMPTS", "2")
	t.Setenv("EOGDL_RETRY_BASE_DELAY", "500ms")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.BaseURL != "https://env.example.com/data/" {
		t.Errorf("expected base URL from env, got %s", cfg.BaseURL)
	}
	if cfg.Username != "env-user" || cfg.Password != "env-pass" {
		t.Errorf("expected credentials from env, got %q / %q", cfg.Username, cfg.Password)
	}
	if cfg.Workers != 6 {
		t.Errorf("expected workers 6, got %d", cfg.Workers)
	}
	if cfg.ChunkSize != 1024*1024 {
		t.Errorf("expected chunk size 1MB, got %d", cfg.ChunkSize)
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if cfg.Rounds.Max != 9 {
		t.Errorf("expected max rounds 9, got %d", cfg.Rounds.Max)
	}
	if cfg.Retry.Attempts != 2 {
		t.Errorf("expected retry attempts 2, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("expected retry base delay 500ms, got %v", cfg.Retry.BaseDelay)
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.Username = "user@example.com"
	valid.Password = "secret"

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing base URL", mutate: func(c *Config) { c.BaseURL = "" }, wantErr: true},
		{name: "missing auth base", mutate: func(c *Config) { c.AuthBase = "" }, wantErr: true},
		{name: "missing client id", mutate: func(c *Config) { c.ClientID = "" }, wantErr: true},
		{name: "missing username", mutate: func(c *Config) { c.Username = "" }, wantErr: true},
		{name: "missing password", mutate: func(c *Config) { c.Password = "" }, wantErr: true},
		{name: "invalid workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: true},
		{name: "invalid chunk size", mutate: func(c *Config) { c.ChunkSize = 0 }, wantErr: true},
		{name: "negative max rounds", mutate: func(c *Config) { c.Rounds.Max = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	base.Username = "base-user"
	base.Password = "base-pass"

	override := Config{
		SaveDir: "/data/mirror",
		Workers: 12,
		Rounds:  RoundsConfig{Max: 3},
	}

	merged := base.Merge(override)

	if merged.BaseURL != base.BaseURL {
		t.Errorf("expected base URL preserved, got %s", merged.BaseURL)
	}
	if merged.Username != "base-user" {
		t.Errorf("expected username preserved, got %s", merged.Username)
	}
	if merged.ChunkSize != base.ChunkSize {
		t.Errorf("expected chunk size preserved, got %d", merged.ChunkSize)
	}
	if merged.Rounds.Cooldown != base.Rounds.Cooldown {
		t.Errorf("expected cooldown preserved, got %v", merged.Rounds.Cooldown)
	}

	if merged.SaveDir != "/data/mirror" {
		t.Errorf("expected save dir overridden, got %s", merged.SaveDir)
	}
	if merged.Workers != 12 {
		t.Errorf("expected workers overridden to 12, got %d", merged.Workers)
	}
	if merged.Rounds.Max != 3 {
		t.Errorf("expected max rounds overridden to 3, got %d", merged.Rounds.Max)
	}
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	_, err := LoadFromFile(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}
