package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/progress"
)

// Config defines configuration for the eogdl CLI.
type Config struct {
	// BaseURL is the root of the protected directory tree to mirror.
	BaseURL string `yaml:"base_url"`

	// AuthBase is the base URL of the authentication realm. Responses
	// that resolve under this prefix are treated as session expiry.
	AuthBase string `yaml:"auth_base"`

	// ClientID identifies this client to the token endpoint.
	ClientID string `yaml:"client_id"`

	// ClientSecret is only set for confidential clients. When empty
	// the interactive login fallback is available.
	ClientSecret string `yaml:"client_secret"`

	// RedirectURI is the registered callback for the interactive flow.
	RedirectURI string `yaml:"redirect_uri"`

	// Scope requested during the interactive flow.
	Scope string `yaml:"scope"`

	// Username and Password are never read from the config file. They
	// come from environment variables or flags only.
	Username string `yaml:"-"`
	Password string `yaml:"-"`

	// SaveDir is the local root the remote tree is mirrored into.
	SaveDir string `yaml:"save_dir"`

	// CacheDir is the directory holding the manifest cache.
	CacheDir string `yaml:"cache_dir"`

	// CacheFile is the manifest cache object name inside CacheDir.
	CacheFile string `yaml:"cache_file"`

	Workers   int   `yaml:"workers"`
	ChunkSize int64 `yaml:"chunk_size"`
	Progress  bool  `yaml:"progress"`

	Filters  FilterConfig  `yaml:"filters"`
	Rounds   RoundsConfig  `yaml:"rounds"`
	Retry    RetryConfig   `yaml:"retry"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// FilterConfig defines which crawled entries become work items.
type FilterConfig struct {
	// KeepSuffixes keeps only filenames ending in one of these
	// suffixes. Empty keeps everything.
	KeepSuffixes []string `yaml:"keep_suffixes"`

	// ExcludeDirs skips directories with these names entirely.
	ExcludeDirs []string `yaml:"exclude_dirs"`
}

// RoundsConfig defines round-based retry behavior.
type RoundsConfig struct {
	// Cooldown is the delay between rounds.
	Cooldown time.Duration `yaml:"cooldown"`

	// Max caps the number of rounds. 0 retries forever, which will
	// spin on a permanently failing item; set a cap for unattended
	// runs.
	Max int `yaml:"max"`
}

// RetryConfig defines per-request retry behavior.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
}

// TimeoutConfig defines network budgets. Connect is short so dead
// hosts fail fast; Read is long because large files stream slowly.
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect"`
	Read    time.Duration `yaml:"read"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		BaseURL:     "https://eogdata.mines.edu/nighttime_light/monthly_notile/",
		AuthBase:    "https://eogauth-new.mines.edu/realms/eog/protocol/openid-connect",
		ClientID:    "eogdata-new-apache",
		RedirectURI: "https://eogdata.mines.edu/oauth2callback",
		Scope:       "openid email",
		SaveDir:     "./eog_downloads",
		CacheDir:    ".",
		CacheFile:   "eog_files_cache.json",
		Workers:     4,
		ChunkSize:   64 * 1024,
		Filters: FilterConfig{
			KeepSuffixes: []string{".avg_rade9h.tif.gz", ".cf_cvg.tif.gz"},
			ExcludeDirs:  []string{"vcmslcfg"},
		},
		Rounds: RoundsConfig{
			Cooldown: 5 * time.Second,
		},
		Retry: RetryConfig{
			Attempts:  10,
			BaseDelay: 5 * time.Second,
			MaxDelay:  60 * time.Second,
		},
		Timeouts: TimeoutConfig{
			Connect: 15 * time.Second,
			Read:    60 * time.Second,
		},
	}
}

// TokenURL returns the direct-grant token endpoint.
func (c *Config) TokenURL() string {
	return c.AuthBase + "/token"
}

// AuthURL returns the interactive authorization endpoint.
func (c *Config) AuthURL() string {
	return c.AuthBase + "/auth"
}

// yamlConfig is used for YAML unmarshaling with string chunk size and
// durations.
type yamlConfig struct {
	BaseURL      string            `yaml:"base_url"`
	AuthBase     string            `yaml:"auth_base"`
	ClientID     string            `yaml:"client_id"`
	ClientSecret string            `yaml:"client_secret"`
	RedirectURI  string            `yaml:"redirect_uri"`
	Scope        string            `yaml:"scope"`
	SaveDir      string            `yaml:"save_dir"`
	CacheDir     string            `yaml:"cache_dir"`
	CacheFile    string            `yaml:"cache_file"`
	Workers      int               `yaml:"workers"`
	ChunkSize    string            `yaml:"chunk_size"`
	Progress     bool              `yaml:"progress"`
	Filters      FilterConfig      `yaml:"filters"`
	Rounds       yamlRoundsConfig  `yaml:"rounds"`
	Retry        yamlRetryConfig   `yaml:"retry"`
	Timeouts     yamlTimeoutConfig `yaml:"timeouts"`
}

type yamlRoundsConfig struct {
	Cooldown string `yaml:"cooldown"`
	Max      int    `yaml:"max"`
}

type yamlRetryConfig struct {
	Attempts  int    `yaml:"attempts"`
	BaseDelay string `yaml:"base_delay"`
	MaxDelay  string `yaml:"max_delay"`
}

type yamlTimeoutConfig struct {
	Connect string `yaml:"connect"`
	Read    string `yaml:"read"`
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if yc.AuthBase != "" {
		cfg.AuthBase = yc.AuthBase
	}
	if yc.ClientID != "" {
		cfg.ClientID = yc.ClientID
	}
	if yc.ClientSecret != "" {
		cfg.ClientSecret = yc.ClientSecret
	}
	if yc.RedirectURI != "" {
		cfg.RedirectURI = yc.RedirectURI
	}
	if yc.Scope != "" {
		cfg.Scope = yc.Scope
	}
	if yc.SaveDir != "" {
		cfg.SaveDir = yc.SaveDir
	}
	if yc.CacheDir != "" {
		cfg.CacheDir = yc.CacheDir
	}
	if yc.CacheFile != "" {
		cfg.CacheFile = yc.CacheFile
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.ChunkSize != "" {
		size, err := progress.ParseBytes(yc.ChunkSize)
		if err != nil {
			return Config{}, fmt.Errorf("parse chunk_size: %w", err)
		}
		cfg.ChunkSize = size
	}
	cfg.Progress = yc.Progress
	if len(yc.Filters.KeepSuffixes) > 0 {
		cfg.Filters.KeepSuffixes = yc.Filters.KeepSuffixes
	}
	if len(yc.Filters.ExcludeDirs) > 0 {
		cfg.Filters.ExcludeDirs = yc.Filters.ExcludeDirs
	}
	if yc.Rounds.Cooldown != "" {
		d, err := time.ParseDuration(yc.Rounds.Cooldown)
		if err != nil {
			return Config{}, fmt.Errorf("parse rounds.cooldown: %w", err)
		}
		cfg.Rounds.Cooldown = d
	}
	if yc.Rounds.Max != 0 {
		cfg.Rounds.Max = yc.Rounds.Max
	}
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.BaseDelay != "" {
		d, err := time.ParseDuration(yc.Retry.BaseDelay)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.base_delay: %w", err)
		}
		cfg.Retry.BaseDelay = d
	}
	if yc.Retry.MaxDelay != "" {
		d, err := time.ParseDuration(yc.Retry.MaxDelay)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.max_delay: %w", err)
		}
		cfg.Retry.MaxDelay = d
	}
	if yc.Timeouts.Connect != "" {
		d, err := time.ParseDuration(yc.Timeouts.Connect)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeouts.connect: %w", err)
		}
		cfg.Timeouts.Connect = d
	}
	if yc.Timeouts.Read != "" {
		d, err := time.ParseDuration(yc.Timeouts.Read)
		if err != nil {
			return Config{}, fmt.Errorf("parse timeouts.read: %w", err)
		}
		cfg.Timeouts.Read = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the EOGDL_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("EOGDL_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("EOGDL_AUTH_BASE"); v != "" {
		c.AuthBase = v
	}
	if v := os.Getenv("EOGDL_CLIENT_ID"); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv("EOGDL_CLIENT_SECRET"); v != "" {
		c.ClientSecret = v
	}
	if v := os.Getenv("EOGDL_USERNAME"); v != "" {
		c.Username = v
	}
	if v := os.Getenv("EOGDL_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("EOGDL_SAVE_DIR"); v != "" {
		c.SaveDir = v
	}
	if v := os.Getenv("EOGDL_CACHE_DIR"); v != "" {
		c.CacheDir = v
	}
	if v := os.Getenv("EOGDL_CACHE_FILE"); v != "" {
		c.CacheFile = v
	}
	if v := os.Getenv("EOGDL_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse EOGDL_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("EOGDL_CHUNK_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse EOGDL_CHUNK_SIZE: %w", err)
		}
		c.ChunkSize = size
	}
	if v := os.Getenv("EOGDL_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("EOGDL_MAX_ROUNDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse EOGDL_MAX_ROUNDS: %w", err)
		}
		c.Rounds.Max = n
	}
	if v := os.Getenv("EOGDL_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse EOGDL_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("EOGDL_RETRY_BASE_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse EOGDL_RETRY_BASE_DELAY: %w", err)
		}
		c.Retry.BaseDelay = d
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("config: base_url is required")
	}
	if c.AuthBase == "" {
		return errors.New("config: auth_base is required")
	}
	if c.ClientID == "" {
		return errors.New("config: client_id is required")
	}
	if c.Username == "" {
		return errors.New("config: username is required (EOGDL_USERNAME or -username)")
	}
	if c.Password == "" {
		return errors.New("config: password is required (EOGDL_PASSWORD or -password)")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: chunk_size must be positive")
	}
	if c.Rounds.Max < 0 {
		return errors.New("config: rounds.max must not be negative")
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if override.AuthBase != "" {
		c.AuthBase = override.AuthBase
	}
	if override.ClientID != "" {
		c.ClientID = override.ClientID
	}
	if override.ClientSecret != "" {
		c.ClientSecret = override.ClientSecret
	}
	if override.Username != "" {
		c.Username = override.Username
	}
	if override.Password != "" {
		c.Password = override.Password
	}
	if override.SaveDir != "" {
		c.SaveDir = override.SaveDir
	}
	if override.CacheDir != "" {
		c.CacheDir = override.CacheDir
	}
	if override.CacheFile != "" {
		c.CacheFile = override.CacheFile
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.ChunkSize != 0 {
		c.ChunkSize = override.ChunkSize
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Rounds.Cooldown != 0 {
		c.Rounds.Cooldown = override.Rounds.Cooldown
	}
	if override.Rounds.Max != 0 {
		c.Rounds.Max = override.Rounds.Max
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.BaseDelay != 0 {
		c.Retry.BaseDelay = override.Retry.BaseDelay
	}
	if override.Retry.MaxDelay != 0 {
		c.Retry.MaxDelay = override.Retry.MaxDelay
	}
	return c
}
