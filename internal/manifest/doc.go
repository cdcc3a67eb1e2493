// Package manifest models the transfer work list and its durable
// cache.
//
// A manifest is an ordered list of (source URL, destination path)
// items produced by the crawl. The cache persists it as JSON in a
// blob bucket (a local directory via fileblob in the CLI, memblob in
// tests) so that re-runs resume straight into the transfer phase.
package manifest
