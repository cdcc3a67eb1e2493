package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/manifest"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/progress"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/transport"
)

// SchedulerOptions configures a transfer run.
type SchedulerOptions struct {
	// Workers is the number of parallel transfers. Kept small: the
	// portal and the shared session both degrade under fan-out, and
	// wide pools amplify expiry storms.
	// Default: 4
	Workers int

	// ChunkSize is the per-file write granularity.
	ChunkSize int64

	// Cooldown is the pause between rounds, letting rate limiting and
	// session churn subside before the failed set is replayed.
	// Default: 5s
	Cooldown time.Duration

	// MaxRounds caps the number of rounds. 0 retries forever.
	MaxRounds int

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Sleep is the cooldown function. Tests inject a no-op.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExhaustedError is returned when MaxRounds is reached with items
// still failing.
type ExhaustedError struct {
	Rounds int
	Failed []manifest.Item
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("transfer: %d items still failing after %d rounds", len(e.Failed), e.Rounds)
}

// Run transfers the whole manifest in rounds: round 1 attempts every
// item, each later round attempts only the previous round's failures,
// and the run ends when a round produces none. Items are deduplicated
// on their (source, destination) identity before scheduling.
//
// Cancellation stops the run promptly between chunks; partial files
// remain valid resume points and the run can be restarted against the
// same manifest.
func Run(ctx context.Context, client *transport.Client, items []manifest.Item, opts SchedulerOptions) error {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 5 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}

	pending := manifest.Dedupe(items)

	for round := 1; len(pending) > 0; round++ {
		if opts.Progress != nil {
			opts.Progress.RoundStarted(round, len(pending))
		}

		failed, err := runRound(ctx, client, pending, opts)
		if err != nil {
			return err
		}

		if opts.Progress != nil {
			opts.Progress.RoundFinished(round, len(failed))
		}
		if len(failed) == 0 {
			return nil
		}
		if opts.MaxRounds > 0 && round >= opts.MaxRounds {
			return &ExhaustedError{Rounds: round, Failed: failed}
		}

		if err := opts.Sleep(ctx, opts.Cooldown); err != nil {
			return err
		}
		pending = failed
	}
	return nil
}

// runRound distributes items to a bounded worker pool and collects
// the failed subset for replay. Items complete in arbitrary order;
// only the per-item outcome matters.
func runRound(ctx context.Context, client *transport.Client, items []manifest.Item, opts SchedulerOptions) ([]manifest.Item, error) {
	jobs := make(chan manifest.Item)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failed []manifest.Item

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				out := Fetch(ctx, client, item, FetchOptions{
					ChunkSize: opts.ChunkSize,
					Progress:  opts.Progress,
				})
				if out.Status == StatusFailed {
					mu.Lock()
					failed = append(failed, item)
					mu.Unlock()
				}
			}
		}()
	}

feed:
	for _, item := range items {
		select {
		case jobs <- item:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return failed, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
