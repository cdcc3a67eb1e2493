package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// Common errors.
var (
	ErrLoginFailed  = errors.New("auth: all login strategies failed")
	ErrVerifyFailed = errors.New("auth: authentication verification failed")
)

// Credentials holds the account identity. Immutable for the process
// lifetime and never persisted.
type Credentials struct {
	Username string
	Password string
}

// Options configures the authenticator.
type Options struct {
	// TokenURL is the direct-grant (password) token endpoint.
	TokenURL string

	// AuthURL is the interactive authorization endpoint.
	AuthURL string

	// BaseURL is a protected resource used to verify that a freshly
	// established session actually has access.
	BaseURL string

	// ClientID identifies this client to the realm.
	ClientID string

	// ClientSecret is set only for confidential clients. When empty
	// the interactive fallback is attempted after a failed direct
	// grant.
	ClientSecret string

	// RedirectURI and Scope parameterize the interactive flow.
	RedirectURI string
	Scope       string

	// ConnectTimeout bounds connection establishment.
	// Default: 15s
	ConnectTimeout time.Duration

	// ReadTimeout bounds the wait for response headers. Body reads are
	// bounded by the caller's context.
	// Default: 60s
	ReadTimeout time.Duration
}

// Context is one authenticated identity: a cookie jar and optional
// bearer token bound to a single connection pool. A Context is never
// mutated after Establish returns; expiry is handled by replacing the
// whole Context.
type Context struct {
	client *http.Client
	token  string
}

// Do sends the request with this identity's credentials attached.
func (s *Context) Do(req *http.Request) (*http.Response, error) {
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return s.client.Do(req)
}

// Token returns the bearer token, or "" for cookie-only sessions.
func (s *Context) Token() string {
	return s.token
}

// Authenticator establishes authenticated sessions against the realm.
type Authenticator struct {
	creds Credentials
	opts  Options
}

// New creates an Authenticator for the given account.
func New(creds Credentials, opts Options) *Authenticator {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 15 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 60 * time.Second
	}
	return &Authenticator{creds: creds, opts: opts}
}

// Establish logs in and returns a verified Context. It tries the
// direct password grant first and falls back to simulating the
// interactive login page when the client is public. Every path ends
// with a probe of the protected base URL; a Context is only returned
// once that probe succeeds.
func (a *Authenticator) Establish(ctx context.Context) (*Context, error) {
	sess, err := a.newContext()
	if err != nil {
		return nil, err
	}

	grantErr := a.passwordGrant(ctx, sess)
	if grantErr == nil {
		if verr := a.verify(ctx, sess); verr == nil {
			return sess, nil
		} else {
			grantErr = verr
		}
	}

	// Confidential clients have no interactive fallback.
	if a.opts.ClientSecret != "" {
		return nil, fmt.Errorf("%w: %v", ErrLoginFailed, grantErr)
	}

	// The context has not been published yet, so dropping the failed
	// bearer token before the cookie-based flow is safe.
	sess.token = ""

	if err := a.browserFlow(ctx, sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if err := a.verify(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// newContext builds a clean session: fresh cookie jar, fresh
// connection pool, no inherited state.
func (a *Authenticator) newContext() (*Context, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: a.opts.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: a.opts.ReadTimeout,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		DisableCompression:    true,
	}

	return &Context{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
		},
	}, nil
}

// passwordGrant posts the resource-owner password grant to the token
// endpoint and installs the resulting bearer token.
func (a *Authenticator) passwordGrant(ctx context.Context, sess *Context) error {
	form := url.Values{
		"client_id":  {a.opts.ClientID},
		"username":   {a.creds.Username},
		"password":   {a.creds.Password},
		"grant_type": {"password"},
	}
	if a.opts.ClientSecret != "" {
		form.Set("client_secret", a.opts.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.opts.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := sess.client.Do(req)
	if err != nil {
		return fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var grant struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&grant); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if grant.AccessToken == "" {
		return errors.New("token response missing access_token")
	}

	sess.token = grant.AccessToken
	return nil
}

// browserFlow simulates the interactive login page: fetch the
// authorization endpoint, submit the login form with all its hidden
// fields, and follow the redirect chain back to the portal. If the
// page carries no login form an existing realm session may already be
// valid, so the caller's verification probe decides.
func (a *Authenticator) browserFlow(ctx context.Context, sess *Context) error {
	authURL, err := url.Parse(a.opts.AuthURL)
	if err != nil {
		return fmt.Errorf("parse auth URL: %w", err)
	}
	q := authURL.Query()
	q.Set("response_type", "code")
	q.Set("client_id", a.opts.ClientID)
	q.Set("redirect_uri", a.opts.RedirectURI)
	q.Set("scope", a.opts.Scope)
	q.Set("state", randomState())
	authURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL.String(), nil)
	if err != nil {
		return fmt.Errorf("create login page request: %w", err)
	}
	resp, err := sess.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch login page: %w", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("read login page: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login page returned %d", resp.StatusCode)
	}

	form, ok := parseLoginForm(strings.NewReader(string(body)))
	if !ok {
		// No form on the page; an existing session may already hold.
		return nil
	}

	action := form.Action
	if action == "" {
		action = resp.Request.URL.String()
	} else if actionURL, err := resp.Request.URL.Parse(action); err == nil {
		action = actionURL.String()
	}

	fields := url.Values{
		"username":     {a.creds.Username},
		"password":     {a.creds.Password},
		"credentialId": {""},
	}
	for name, values := range form.Hidden {
		for _, v := range values {
			fields.Add(name, v)
		}
	}

	post, err := http.NewRequestWithContext(ctx, http.MethodPost, action, strings.NewReader(fields.Encode()))
	if err != nil {
		return fmt.Errorf("create login submit request: %w", err)
	}
	post.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	postResp, err := sess.client.Do(post)
	if err != nil {
		return fmt.Errorf("submit login form: %w", err)
	}
	postBody, err := io.ReadAll(postResp.Body)
	postResp.Body.Close()
	if err != nil {
		return fmt.Errorf("read login response: %w", err)
	}

	if msg, found := findLoginError(string(postBody)); found {
		if msg == "" {
			msg = "login rejected"
		}
		return fmt.Errorf("login error: %s", msg)
	}

	return nil
}

// verify probes the protected base resource. Only a success status
// proves the session is usable.
func (a *Authenticator) verify(ctx context.Context, sess *Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.opts.BaseURL, nil)
	if err != nil {
		return fmt.Errorf("create verify request: %w", err)
	}
	resp, err := sess.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrVerifyFailed, resp.StatusCode)
	}
	// A success rendered by the realm's login page is still a failure:
	// the probe must end up on the resource it asked for.
	if !strings.HasPrefix(resp.Request.URL.String(), a.opts.BaseURL) {
		return fmt.Errorf("%w: redirected to %s", ErrVerifyFailed, resp.Request.URL)
	}
	return nil
}

// randomState produces an opaque state parameter for the interactive
// flow.
func randomState() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "state"
	}
	return hex.EncodeToString(b[:])
}
