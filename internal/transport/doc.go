// Package transport provides the authenticated HTTP client the whole
// engine sends requests through.
//
// This package handles:
//   - One shared session (cookie jar + bearer token + connection pool)
//     behind an atomic pointer, replaced wholesale on expiry
//   - Expiry detection, including the portal's habit of answering an
//     expired session with a 200 that resolved under the login realm
//   - Bounded retry with linear backoff and jitter
//   - Coalescing of concurrent re-logins into a single attempt
//
// # Usage
//
//	client := transport.NewClient(authenticator, transport.Options{
//	    AuthBase:      "https://auth.example.com/realms/eog",
//	    RetryAttempts: 10,
//	})
//	if err := client.Connect(ctx); err != nil {
//	    // fatal: no session, nothing can be transferred
//	}
//	resp, err := client.Get(ctx, fileURL, header)
package transport
