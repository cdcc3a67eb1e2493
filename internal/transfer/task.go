package transfer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/manifest"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/progress"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/transport"
)

// Status classifies the result of one fetch attempt.
type Status int

const (
	// StatusCompleted means bytes were transferred and the file is
	// now complete.
	StatusCompleted Status = iota

	// StatusSkipped means the file was already complete on disk; no
	// body bytes were transferred.
	StatusSkipped

	// StatusFailed means the item must be retried in a later round.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the per-item, per-round result consumed by the
// scheduler.
type Outcome struct {
	Item   manifest.Item
	Status Status
	Bytes  int64 // bytes written during this attempt
	Err    error // set when Status is StatusFailed
}

// FetchOptions configures a single fetch.
type FetchOptions struct {
	// ChunkSize is the write granularity. Cancellation is observed
	// between chunks. Default: 64KB
	ChunkSize int64

	// Progress is an optional progress reporter.
	Progress *progress.Reporter
}

// Fetch downloads one remote object to one local path, resuming from
// whatever partial bytes already exist. Every error is folded into a
// Failed outcome; the scheduler decides whether to retry.
func Fetch(ctx context.Context, client *transport.Client, item manifest.Item, opts FetchOptions) Outcome {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 64 * 1024
	}
	if opts.Progress != nil {
		opts.Progress.FileStarted()
	}

	out := fetch(ctx, client, item, opts)

	if opts.Progress != nil {
		switch out.Status {
		case StatusCompleted:
			opts.Progress.FileCompleted()
		case StatusSkipped:
			opts.Progress.FileSkipped()
			opts.Progress.Logf("Skipping already completed file: %s", filepath.Base(item.DestPath))
		case StatusFailed:
			opts.Progress.FileFailed()
			opts.Progress.Logf("Error downloading %s: %v", item.SourceURL, out.Err)
		}
	}
	return out
}

func fetch(ctx context.Context, client *transport.Client, item manifest.Item, opts FetchOptions) Outcome {
	fail := func(err error) Outcome {
		return Outcome{Item: item, Status: StatusFailed, Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(item.DestPath), 0o755); err != nil {
		return fail(fmt.Errorf("create destination directory: %w", err))
	}

	existing := localSize(item.DestPath)

	var header http.Header
	if existing > 0 {
		header = http.Header{"Range": {fmt.Sprintf("bytes=%d-", existing)}}
	}

	resp, err := client.Get(ctx, item.SourceURL, header)
	if err != nil {
		return fail(err)
	}

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable {
		// The requested offset is past the end of the object. Either
		// the file is already complete, or the local copy has grown
		// past the true size and is corrupt.
		resp.Body.Close()

		total, err := remoteSize(ctx, client, item.SourceURL)
		if err != nil {
			return fail(fmt.Errorf("query total size: %w", err))
		}
		if total > 0 && existing == total {
			return Outcome{Item: item, Status: StatusSkipped}
		}

		if existing > total {
			if opts.Progress != nil {
				opts.Progress.Logf("File corruption detected (local %d > remote %d), re-downloading: %s",
					existing, total, item.DestPath)
			}
			if err := os.Remove(item.DestPath); err != nil {
				return fail(fmt.Errorf("remove corrupt file: %w", err))
			}
		}
		existing = 0
		resp, err = client.Get(ctx, item.SourceURL, nil)
		if err != nil {
			return fail(err)
		}
	}
	defer resp.Body.Close()

	total := resp.ContentLength
	appendMode := false
	switch {
	case resp.StatusCode == http.StatusPartialContent:
		// The body carries only the missing suffix.
		if total >= 0 {
			total += existing
		}
		appendMode = true
	case resp.StatusCode == http.StatusOK && existing > 0:
		// The server silently ignored the range request; the body is
		// the whole object, so local bytes must be discarded.
		if opts.Progress != nil {
			opts.Progress.Logf("Server does not support resume for %s, restarting from zero",
				filepath.Base(item.DestPath))
		}
		existing = 0
	}

	if total > 0 && existing >= total {
		return Outcome{Item: item, Status: StatusSkipped}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if appendMode && existing > 0 {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(item.DestPath, flags, 0o644)
	if err != nil {
		return fail(fmt.Errorf("open destination: %w", err))
	}

	written, copyErr := copyChunks(ctx, f, resp.Body, opts.ChunkSize, opts.Progress)
	closeErr := f.Close()
	if copyErr != nil {
		return fail(fmt.Errorf("stream to file: %w", copyErr))
	}
	if closeErr != nil {
		return fail(fmt.Errorf("close destination: %w", closeErr))
	}

	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return fail(fmt.Errorf("truncated transfer: got %d of %d bytes", written, resp.ContentLength))
	}

	return Outcome{Item: item, Status: StatusCompleted, Bytes: written}
}

// copyChunks streams src to dst in fixed-size chunks, observing
// cancellation between chunks so a stop never waits on a whole file.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, chunkSize int64, reporter *progress.Reporter) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64

	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			nw, writeErr := dst.Write(buf[:n])
			written += int64(nw)
			if reporter != nil {
				reporter.Add(int64(nw))
			}
			if writeErr != nil {
				return written, writeErr
			}
			if nw != n {
				return written, io.ErrShortWrite
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// remoteSize queries the object's total size.
func remoteSize(ctx context.Context, client *transport.Client, url string) (int64, error) {
	resp, err := client.Head(ctx, url)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	if resp.ContentLength < 0 {
		return 0, fmt.Errorf("server did not report a size for %s", url)
	}
	return resp.ContentLength, nil
}

// localSize returns the size of an existing partial file, 0 if none.
func localSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return 0
	}
	return fi.Size()
}
