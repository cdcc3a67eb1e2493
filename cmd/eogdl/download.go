package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/config"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/manifest"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/progress"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/transfer"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/transport"
)

func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	cf := registerCommon(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: eogdl download [options]

Download every file in the manifest cache. Partial files resume from
where they stopped, complete files are skipped, and failures are
retried in rounds until none remain. Press Ctrl+C to stop safely;
partial files stay valid and the next run resumes them.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return ExitInvalidArgs
	}

	cfg, err := resolveConfig(cf)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	cache, closeCache, err := openCache(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	defer closeCache()

	items, err := cache.Load(ctx)
	if err != nil {
		if errors.Is(err, manifest.ErrNotCached) {
			fmt.Fprintln(os.Stderr, "Error: no manifest cache found; run 'eogdl scan' first (or use 'eogdl fetch')")
			return ExitScanError
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	fmt.Fprintf(os.Stderr, "[eogdl] Loaded %d files from cache.\n", len(items))

	client, err := connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: authentication failed: %v\n", err)
		return ExitAuthFailed
	}

	return downloadAll(ctx, client, cfg, items)
}

// downloadAll runs the round scheduler over the manifest.
func downloadAll(ctx context.Context, client *transport.Client, cfg config.Config, items []manifest.Item) int {
	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalFiles: len(items),
			Workers:    cfg.Workers,
			SourceURL:  cfg.BaseURL,
		})
		reporter.Start()
		defer reporter.Stop()
	}

	err := transfer.Run(ctx, client, items, transfer.SchedulerOptions{
		Workers:   cfg.Workers,
		ChunkSize: cfg.ChunkSize,
		Cooldown:  cfg.Rounds.Cooldown,
		MaxRounds: cfg.Rounds.Max,
		Progress:  reporter,
	})
	if err != nil {
		var exhausted *transfer.ExhaustedError
		switch {
		case errors.Is(err, context.Canceled):
			fmt.Fprintln(os.Stderr, "[eogdl] Download stopped by user. Run again to resume.")
			return ExitSuccess
		case errors.As(err, &exhausted):
			fmt.Fprintf(os.Stderr, "Error: %v\n", exhausted)
			for _, item := range exhausted.Failed {
				fmt.Fprintf(os.Stderr, "  still failing: %s\n", item.SourceURL)
			}
			return ExitRoundsExhausted
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitTransferError
		}
	}

	fmt.Fprintln(os.Stderr, "[eogdl] All files downloaded successfully.")
	return ExitSuccess
}
