// Package auth establishes authenticated sessions against the portal's
// OpenID-Connect realm.
//
// Two login strategies are attempted in order:
//  1. Direct password grant against the token endpoint (fast path).
//  2. Interactive login simulation: fetch the authorization endpoint,
//     parse the HTML login form, submit credentials plus all hidden
//     fields, and follow the redirect chain. Only available for public
//     clients (no client secret).
//
// Both paths end with a verification probe of the protected base URL;
// a Context is only handed out once that probe returns a success
// status.
//
// A Context bundles a cookie jar, an optional bearer token, and one
// connection pool. It is immutable after creation: expiry is handled
// upstream by establishing a replacement Context, never by mutating an
// existing one.
package auth
