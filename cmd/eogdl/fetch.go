package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/manifest"
)

func runFetch(args []string) int {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	cf := registerCommon(fs)
	rescan := fs.Bool("rescan", false, "Ignore the existing manifest cache and re-crawl")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: eogdl fetch [options]

One-shot mirror: reuse the manifest cache when present (crawl and save
it otherwise), then download everything with resume and round-based
retry of failures.

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

	client, err := connect(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: authentication failed: %v\n", err)
		return ExitAuthFailed
	}

	cache, closeCache, err := openCache(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	defer closeCache()

	var items []manifest.Item
	if !*rescan {
		items, err = cache.Load(ctx)
		if err != nil && !errors.Is(err, manifest.ErrNotCached) {
			fmt.Fprintf(os.Stderr, "Error loading cache: %v. Will rescan.\n", err)
		}
		if len(items) > 0 {
			fmt.Fprintf(os.Stderr, "[eogdl] Loaded %d files from cache.\n", len(items))
		}
	}

	if len(items) == 0 {
		var code int
		items, code = scanTree(ctx, client, cfg)
		if code != ExitSuccess || len(items) == 0 {
			return code
		}
		if err := cache.Save(ctx, items); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not save cache: %v\n", err)
		} else {
			fmt.Fprintf(os.Stderr, "[eogdl] Scan complete. Saved %d files to %s\n", len(items), cfg.CacheFile)
		}
	}

	return downloadAll(ctx, client, cfg, items)
}
