// Package testutils provides a fake authenticated portal for tests: an
// OpenID-Connect-style realm (token endpoint, login form, redirect
// chain) in front of a protected file tree with byte-range support and
// fault injection.
package testutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/auth"
)

const (
	authBasePath    = "/realms/eog/protocol/openid-connect"
	tokenPath       = authBasePath + "/token"
	authPath        = authBasePath + "/auth"
	loginActionPath = "/realms/eog/login-actions/authenticate"
	dataPath        = "/data/"
)

// Portal simulates the authenticated portal.
type Portal struct {
	Server *httptest.Server

	Username string
	Password string
	ClientID string

	mu           sync.Mutex
	files        map[string][]byte
	validTokens  map[string]bool
	validCookies map[string]bool
	pendingCodes map[string]bool
	logins       int
	seq          int
	bodyBytes    map[string]int64
	failNext     map[string]int

	// Fault injection knobs. Set before the requests they affect.
	FailTokenGrant bool // force the interactive fallback
	NoLoginForm    bool // auth page without a credential form
	IgnoreRanges   bool // answer range requests with full 200 bodies
	TruncateNext   int  // truncate the next N file bodies mid-stream
}

// NewPortal starts a portal serving the given files. Keys are paths
// relative to the data root, e.g. "2023/a.tif.gz".
func NewPortal(t *testing.T, files map[string][]byte) *Portal {
	t.Helper()

	p := &Portal{
		Username:     "user@example.com",
		Password:     "hunter2",
		ClientID:     "eogdata-new-apache",
		files:        map[string][]byte{},
		validTokens:  map[string]bool{},
		validCookies: map[string]bool{},
		pendingCodes: map[string]bool{},
		bodyBytes:    map[string]int64{},
		failNext:     map[string]int{},
	}
	for name, data := range files {
		p.files[name] = data
	}

	p.Server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.Server.Close)
	return p
}

// AuthBase returns the realm base URL; final URLs under it signal
// session expiry.
func (p *Portal) AuthBase() string {
	return p.Server.URL + authBasePath
}

// BaseURL returns the protected data root.
func (p *Portal) BaseURL() string {
	return p.Server.URL + dataPath
}

// FileURL returns the URL of a served file.
func (p *Portal) FileURL(name string) string {
	return p.Server.URL + dataPath + name
}

// AuthOptions returns authenticator options wired to this portal.
func (p *Portal) AuthOptions() auth.Options {
	return auth.Options{
		TokenURL:    p.Server.URL + tokenPath,
		AuthURL:     p.Server.URL + authPath,
		BaseURL:     p.BaseURL(),
		ClientID:    p.ClientID,
		RedirectURI: p.Server.URL + "/oauth2callback",
		Scope:       "openid email",
	}
}

// Credentials returns the account the portal accepts.
func (p *Portal) Credentials() auth.Credentials {
	return auth.Credentials{Username: p.Username, Password: p.Password}
}

// Logins returns how many successful logins the portal has issued,
// counting both token grants and form submissions.
func (p *Portal) Logins() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.logins
}

// BodyBytes returns how many body bytes have been served for a file.
func (p *Portal) BodyBytes(name string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bodyBytes[name]
}

// SetFile adds or replaces a served file.
func (p *Portal) SetFile(name string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.files[name] = data
}

// ExpireSessions invalidates every issued token and cookie. Sessions
// already handed out keep using their stale credentials and get
// bounced to the login page.
func (p *Portal) ExpireSessions() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validTokens = map[string]bool{}
	p.validCookies = map[string]bool{}
}

// FailRequests makes the next n requests for a file return 500.
func (p *Portal) FailRequests(name string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext[name] = n
}

func (p *Portal) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == tokenPath:
		p.handleToken(w, r)
	case r.URL.Path == authPath:
		p.handleAuthPage(w, r)
	case r.URL.Path == loginActionPath:
		p.handleLogin(w, r)
	case strings.HasPrefix(r.URL.Path, dataPath):
		p.handleData(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (p *Portal) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ok := !p.FailTokenGrant &&
		r.PostForm.Get("grant_type") == "password" &&
		r.PostForm.Get("client_id") == p.ClientID &&
		r.PostForm.Get("username") == p.Username &&
		r.PostForm.Get("password") == p.Password

	if !ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"Invalid user credentials"}`)
		return
	}

	p.seq++
	token := fmt.Sprintf("token-%d", p.seq)
	p.validTokens[token] = true
	p.logins++

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"access_token": token})
}

func (p *Portal) handleAuthPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	if p.NoLoginForm {
		fmt.Fprint(w, `<html><body><div id="kc-content">Already authenticated.</div></body></html>`)
		return
	}

	p.mu.Lock()
	p.seq++
	code := fmt.Sprintf("code-%d", p.seq)
	p.pendingCodes[code] = true
	p.mu.Unlock()

	action := loginActionPath + "?session_code=" + code
	fmt.Fprintf(w, `<html><body><div id="kc-content">
<form id="kc-form-login" action="%s" method="post">
<input type="hidden" name="session_code" value="%s"/>
<input type="hidden" name="execution" value="exec-1"/>
<input id="username" name="username" type="text"/>
<input id="password" name="password" type="password"/>
<input type="submit" value="Sign In"/>
</form></div></body></html>`, action, code)
}

func (p *Portal) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	p.mu.Lock()

	code := r.PostForm.Get("session_code")
	if !p.pendingCodes[code] {
		p.mu.Unlock()
		http.Error(w, "invalid session code", http.StatusBadRequest)
		return
	}
	delete(p.pendingCodes, code)

	if r.PostForm.Get("username") != p.Username || r.PostForm.Get("password") != p.Password {
		p.mu.Unlock()
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><div class="alert alert-error">
<span class="pf-c-alert__title kc-feedback-text">Invalid username or password.</span>
</div></body></html>`)
		return
	}

	p.seq++
	cookie := fmt.Sprintf("cookie-%d", p.seq)
	p.validCookies[cookie] = true
	p.logins++
	p.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:  "KEYCLOAK_IDENTITY",
		Value: cookie,
		Path:  "/",
	})
	http.Redirect(w, r, dataPath, http.StatusFound)
}

func (p *Portal) authorized(r *http.Request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if p.validTokens[strings.TrimPrefix(h, "Bearer ")] {
			return true
		}
	}
	if c, err := r.Cookie("KEYCLOAK_IDENTITY"); err == nil && p.validCookies[c.Value] {
		return true
	}
	return false
}

func (p *Portal) handleData(w http.ResponseWriter, r *http.Request) {
	if !p.authorized(r) {
		// Expired sessions are bounced to the login page, which
		// answers 200. The client only sees the realm URL.
		http.Redirect(w, r, authPath+"?response_type=code&client_id="+url.QueryEscape(p.ClientID), http.StatusFound)
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, dataPath)
	rel, err := url.PathUnescape(rel)
	if err != nil {
		http.Error(w, "bad path", http.StatusBadRequest)
		return
	}

	if rel == "" || strings.HasSuffix(rel, "/") {
		p.serveListing(w, rel)
		return
	}

	p.mu.Lock()
	data, ok := p.files[rel]
	if pending := p.failNext[rel]; ok && pending > 0 {
		p.failNext[rel] = pending - 1
		p.mu.Unlock()
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	truncate := false
	if ok && p.TruncateNext > 0 && r.Method == http.MethodGet {
		p.TruncateNext--
		truncate = true
	}
	p.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if truncate {
		w.Header().Set("Content-Length", fmt.Sprint(len(data)))
		w.WriteHeader(http.StatusOK)
		w.Write(data[:len(data)/2])
		return
	}

	if p.IgnoreRanges {
		r.Header.Del("Range")
	}

	cw := &countingWriter{ResponseWriter: w}
	http.ServeContent(cw, r, rel, time.Unix(1700000000, 0), bytes.NewReader(data))

	p.mu.Lock()
	p.bodyBytes[rel] += cw.body
	p.mu.Unlock()
}

// serveListing renders an Apache-style index page for a directory,
// complete with the navigation noise real listings carry.
func (p *Portal) serveListing(w http.ResponseWriter, dir string) {
	p.mu.Lock()
	subdirs := map[string]bool{}
	var names []string
	for name := range p.files {
		if !strings.HasPrefix(name, dir) {
			continue
		}
		rest := strings.TrimPrefix(name, dir)
		if i := strings.Index(rest, "/"); i >= 0 {
			subdirs[rest[:i]] = true
		} else {
			names = append(names, rest)
		}
	}
	p.mu.Unlock()

	sort.Strings(names)
	var dirNames []string
	for d := range subdirs {
		dirNames = append(dirNames, d)
	}
	sort.Strings(dirNames)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<html><head><title>Index of /%s</title></head><body>\n", dir)
	fmt.Fprint(w, `<a href="?C=N;O=D">Name</a> <a href="?C=M;O=A">Last modified</a>`+"\n")
	fmt.Fprint(w, "<a href=\"../\">Parent Directory</a>\n")
	for _, d := range dirNames {
		fmt.Fprintf(w, "<a href=\"%s/\">%s/</a>\n", url.PathEscape(d), d)
	}
	for _, f := range names {
		fmt.Fprintf(w, "<a href=\"%s\">%s</a>\n", url.PathEscape(f), f)
	}
	fmt.Fprint(w, "</body></html>\n")
}

// countingWriter counts body bytes of successful file responses so
// tests can assert that skips transfer nothing.
type countingWriter struct {
	http.ResponseWriter
	status int
	body   int64
}

func (c *countingWriter) WriteHeader(status int) {
	c.status = status
	c.ResponseWriter.WriteHeader(status)
}

func (c *countingWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	if c.status == http.StatusOK || c.status == http.StatusPartialContent {
		c.body += int64(len(b))
	}
	return c.ResponseWriter.Write(b)
}
