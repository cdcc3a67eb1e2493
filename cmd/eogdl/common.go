package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gocloud.dev/blob/fileblob"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/auth"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/config"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/manifest"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/transport"
)

// commonFlags are accepted by every command.
type commonFlags struct {
	configPath string
	baseURL    string
	saveDir    string
	username   string
	password   string
	workers    int
	maxRounds  int
	progress   bool
}

func registerCommon(fs *flag.FlagSet) *commonFlags {
	cf := &commonFlags{}
	fs.StringVar(&cf.configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&cf.baseURL, "base-url", "", "Root of the remote tree to mirror")
	fs.StringVar(&cf.saveDir, "dir", "", "Local directory to mirror into")
	fs.StringVar(&cf.username, "username", "", "Account username (or EOGDL_USERNAME)")
	fs.StringVar(&cf.password, "password", "", "Account password (or EOGDL_PASSWORD)")
	fs.IntVar(&cf.workers, "workers", 0, "Number of parallel download workers")
	fs.IntVar(&cf.maxRounds, "max-rounds", 0, "Stop after this many retry rounds (0 = retry forever)")
	fs.BoolVar(&cf.progress, "progress", false, "Show live progress output")
	return cf
}

// resolveConfig layers defaults, config file, environment, and flags.
func resolveConfig(cf *commonFlags) (config.Config, error) {
	cfg := config.Default()

	if cf.configPath != "" {
		loaded, err := config.LoadFromFile(cf.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	cfg = cfg.Merge(config.Config{
		BaseURL:  cf.baseURL,
		SaveDir:  cf.saveDir,
		Username: cf.username,
		Password: cf.password,
		Workers:  cf.workers,
		Progress: cf.progress,
		Rounds:   config.RoundsConfig{Max: cf.maxRounds},
	})

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[eogdl] Received interrupt, shutting down...")
		cancel()
	}()

	return ctx, cancel
}

// connect builds the authenticated client and performs the initial
// login. Failure here stops the run before any transfer work.
func connect(ctx context.Context, cfg config.Config) (*transport.Client, error) {
	authenticator := auth.New(
		auth.Credentials{Username: cfg.Username, Password: cfg.Password},
		auth.Options{
			TokenURL:       cfg.TokenURL(),
			AuthURL:        cfg.AuthURL(),
			BaseURL:        cfg.BaseURL,
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			RedirectURI:    cfg.RedirectURI,
			Scope:          cfg.Scope,
			ConnectTimeout: cfg.Timeouts.Connect,
			ReadTimeout:    cfg.Timeouts.Read,
		},
	)

	client := transport.NewClient(authenticator, transport.Options{
		AuthBase:       cfg.AuthBase,
		RetryAttempts:  cfg.Retry.Attempts,
		RetryBaseDelay: cfg.Retry.BaseDelay,
		RetryMaxDelay:  cfg.Retry.MaxDelay,
	})

	fmt.Fprintln(os.Stderr, "[eogdl] Initial authentication...")
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	fmt.Fprintln(os.Stderr, "[eogdl] Authentication verified.")
	return client, nil
}

// openCache opens the manifest cache bucket. The returned closer must
// be called when done.
func openCache(cfg config.Config) (*manifest.Cache, func(), error) {
	dir, err := filepath.Abs(cfg.CacheDir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve cache dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create cache dir: %w", err)
	}

	bucket, err := fileblob.OpenBucket(dir, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache bucket: %w", err)
	}
	return manifest.NewCache(bucket, cfg.CacheFile), func() { bucket.Close() }, nil
}
