package crawler

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/manifest"
)

// Lister lists one remote directory. The transfer engine never parses
// listing markup itself; everything goes through this interface.
type Lister interface {
	// List returns the file and subdirectory URLs directly under
	// dirURL. Subdirectory URLs end with a slash.
	List(ctx context.Context, dirURL string) (files, dirs []string, err error)
}

// Options configures a crawl.
type Options struct {
	// BaseURL is the root of the remote tree. Links resolving outside
	// it are ignored.
	BaseURL string

	// SaveDir is the local root; the remote layout is mirrored under
	// it with percent-escapes decoded.
	SaveDir string

	// KeepSuffixes keeps only filenames ending in one of these
	// suffixes. Empty keeps everything.
	KeepSuffixes []string

	// ExcludeDirs skips directories with these exact names.
	ExcludeDirs []string

	// Log receives scan progress lines. Default: discarded.
	Log io.Writer
}

// Crawler walks the remote tree and produces the transfer manifest.
type Crawler struct {
	lister Lister
	opts   Options
}

// New creates a Crawler.
func New(lister Lister, opts Options) *Crawler {
	if opts.Log == nil {
		opts.Log = io.Discard
	}
	return &Crawler{lister: lister, opts: opts}
}

// Collect recursively scans from the base URL and returns the
// deduplicated manifest. Listing failures for individual directories
// are logged and skipped so one bad branch does not abort the scan;
// only cancellation stops it.
func (c *Crawler) Collect(ctx context.Context) ([]manifest.Item, error) {
	var items []manifest.Item
	if err := c.walk(ctx, c.opts.BaseURL, &items); err != nil {
		return nil, err
	}
	return manifest.Dedupe(items), nil
}

func (c *Crawler) walk(ctx context.Context, dirURL string, items *[]manifest.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strings.HasPrefix(dirURL, c.opts.BaseURL) {
		return nil
	}

	destDir, err := c.localDir(dirURL)
	if err != nil {
		fmt.Fprintf(c.opts.Log, "[eogdl] Skipping unparseable directory %s: %v\n", dirURL, err)
		return nil
	}

	fmt.Fprintf(c.opts.Log, "[eogdl] Scanning directory: %s\n", dirURL)
	files, dirs, err := c.lister.List(ctx, dirURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(c.opts.Log, "[eogdl] Failed to list %s: %v\n", dirURL, err)
		return nil
	}

	for _, fileURL := range files {
		name, err := unescapedBase(fileURL)
		if err != nil || name == "" {
			continue
		}
		if !c.keepFile(name) {
			continue
		}
		*items = append(*items, manifest.Item{
			SourceURL: fileURL,
			DestPath:  filepath.Join(destDir, name),
		})
	}

	for _, subURL := range dirs {
		name, err := unescapedBase(strings.TrimSuffix(subURL, "/"))
		if err != nil {
			continue
		}
		if c.excludeDir(name) {
			fmt.Fprintf(c.opts.Log, "[eogdl] Skipping excluded directory: %s\n", name)
			continue
		}
		if err := c.walk(ctx, subURL, items); err != nil {
			return err
		}
	}
	return nil
}

// localDir maps a remote directory URL onto the local tree.
func (c *Crawler) localDir(dirURL string) (string, error) {
	rel := strings.TrimPrefix(dirURL, c.opts.BaseURL)
	rel = strings.TrimPrefix(rel, "/")
	rel, err := url.PathUnescape(rel)
	if err != nil {
		return "", err
	}
	return filepath.Join(c.opts.SaveDir, filepath.FromSlash(rel)), nil
}

func (c *Crawler) keepFile(name string) bool {
	if len(c.opts.KeepSuffixes) == 0 {
		return true
	}
	for _, suffix := range c.opts.KeepSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func (c *Crawler) excludeDir(name string) bool {
	for _, d := range c.opts.ExcludeDirs {
		if name == d {
			return true
		}
	}
	return false
}

func unescapedBase(u string) (string, error) {
	return url.PathUnescape(path.Base(u))
}
