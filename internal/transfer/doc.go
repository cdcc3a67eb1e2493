// Package transfer downloads manifest items to local disk and retries
// failures in rounds.
//
// Fetch moves one remote object to one local path with byte-range
// resume: partial files continue from their current size, servers
// that ignore ranges trigger a clean restart, and a local file that
// has grown past the true remote size is deleted and refetched. Bytes
// stream to disk in fixed-size chunks; whole objects are never held
// in memory.
//
// Run drives a bounded worker pool over the manifest. Round 1 covers
// every item; each later round replays only the previous round's
// failures, with a cooldown in between, until a round produces none
// (or the configured round cap trips).
package transfer
