package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// ErrNotCached is returned by Cache.Load when no manifest has been
// saved yet.
var ErrNotCached = errors.New("manifest: no cached manifest")

// Item is one unit of transfer work: a remote object and the local
// path it lands at. Identity is the (SourceURL, DestPath) pair.
type Item struct {
	SourceURL string `json:"url"`
	DestPath  string `json:"path"`

	// Size is a hint from the crawl; 0 means unknown. The transfer
	// verifies against the server's answer, not this.
	Size int64 `json:"size,omitempty"`
}

// Key returns the identity of the item for deduplication.
func (i Item) Key() string {
	return i.SourceURL + "\x00" + i.DestPath
}

// Dedupe returns items with duplicate (SourceURL, DestPath) pairs
// removed, preserving first-seen order.
func Dedupe(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, it := range items {
		k := it.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, it)
	}
	return out
}

// Cache persists the manifest to a blob bucket so re-runs can skip the
// crawl.
type Cache struct {
	bucket *blob.Bucket
	key    string
}

// NewCache creates a cache stored under key in bucket.
func NewCache(bucket *blob.Bucket, key string) *Cache {
	return &Cache{bucket: bucket, key: key}
}

// Load reads the cached manifest. Items are deduplicated on the way
// in: stale caches written by older versions may carry duplicates.
func (c *Cache) Load(ctx context.Context) ([]Item, error) {
	data, err := c.bucket.ReadAll(ctx, c.key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, ErrNotCached
		}
		return nil, fmt.Errorf("read manifest cache: %w", err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse manifest cache: %w", err)
	}
	return Dedupe(items), nil
}

// Save writes the manifest, replacing any previous version.
func (c *Cache) Save(ctx context.Context, items []Item) error {
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := c.bucket.WriteAll(ctx, c.key, data, nil); err != nil {
		return fmt.Errorf("write manifest cache: %w", err)
	}
	return nil
}
