// Package config defines configuration structures for the eogdl CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (EOGDL_ prefix)
//   - YAML configuration file
//
// Credentials are deliberately excluded from the YAML path: the
// username and password come only from environment variables or flags
// and are never written back to disk.
//
// # Structure
//
//	type Config struct {
//	    BaseURL   string
//	    AuthBase  string
//	    ClientID  string
//	    SaveDir   string
//	    Workers   int
//	    ChunkSize int64
//	    Filters   FilterConfig
//	    Rounds    RoundsConfig
//	    Retry     RetryConfig
//	    Timeouts  TimeoutConfig
//	}
package config
