package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/config"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/crawler"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/manifest"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/transport"
)

func runScan(args []string) int {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	cf := registerCommon(fs)

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: eogdl scan [options]

Crawl the remote directory tree, apply the configured filename and
directory filters, and write the resulting manifest to the cache file.
The scan can take a while on large trees; downloads then reuse the
cache instead of re-crawling.

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

	items, code := scanTree(ctx, client, cfg)
	if code != ExitSuccess || len(items) == 0 {
		return code
	}

	cache, closeCache, err := openCache(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}
	defer closeCache()

	if err := cache.Save(ctx, items); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitGeneralError
	}

	fmt.Fprintf(os.Stderr, "[eogdl] Scan complete. Saved %d files to %s\n", len(items), cfg.CacheFile)
	return ExitSuccess
}

// scanTree runs the crawl and returns the deduplicated manifest.
func scanTree(ctx context.Context, client *transport.Client, cfg config.Config) ([]manifest.Item, int) {
	fmt.Fprintln(os.Stderr, "[eogdl] Scanning directory structure (this may take a while)...")

	c := crawler.New(crawler.NewHTMLLister(client), crawler.Options{
		BaseURL:      cfg.BaseURL,
		SaveDir:      cfg.SaveDir,
		KeepSuffixes: cfg.Filters.KeepSuffixes,
		ExcludeDirs:  cfg.Filters.ExcludeDirs,
		Log:          os.Stderr,
	})

	items, err := c.Collect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "[eogdl] Scan stopped by user.")
			return nil, ExitSuccess
		}
		fmt.Fprintf(os.Stderr, "Error: scan failed: %v\n", err)
		return nil, ExitScanError
	}
	if len(items) == 0 {
		fmt.Fprintln(os.Stderr, "Error: scan found no matching files")
		return nil, ExitScanError
	}
	return items, ExitSuccess
}
