// Package crawler walks the portal's directory tree and builds the
// transfer manifest.
//
// The walk consumes the Lister interface; the HTML flavor of directory
// listings lives entirely in HTMLLister so the walk itself never
// touches markup. Filters (filename suffix allowlist, excluded
// directory names) are applied during the walk, and the resulting
// items mirror the remote layout under the configured save directory.
package crawler
