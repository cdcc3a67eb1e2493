package auth

import (
	"strings"
	"testing"
)

func TestParseLoginForm(t *testing.T) {
	page := `<html><body>
<form id="kc-form-login" action="/login-actions/authenticate?session_code=abc" method="post">
<input type="hidden" name="session_code" value="abc"/>
<input type="hidden" name="execution" value="exec-1"/>
<input id="username" name="username" type="text"/>
<input id="password" name="password" type="password"/>
</form>
</body></html>`

	form, ok := parseLoginForm(strings.NewReader(page))
	if !ok {
		t.Fatal("expected login form to be found")
	}
	if form.Action != "/login-actions/authenticate?session_code=abc" {
		t.Errorf("unexpected action %q", form.Action)
	}
	if got := form.Hidden.Get("session_code"); got != "abc" {
		t.Errorf("expected hidden session_code abc, got %q", got)
	}
	if got := form.Hidden.Get("execution"); got != "exec-1" {
		t.Errorf("expected hidden execution exec-1, got %q", got)
	}
	// Visible inputs are not collected; the caller fills those.
	if _, ok := form.Hidden["username"]; ok {
		t.Error("username must not be collected as hidden field")
	}
}

func TestParseLoginFormFallback(t *testing.T) {
	// No recognizable id, but a password input marks the form.
	page := `<html><body>
<form action="/search"><input name="q" type="text"/></form>
<form action="/signin" method="post">
<input name="user" type="text"/>
<input name="pass" type="password"/>
</form>
</body></html>`

	form, ok := parseLoginForm(strings.NewReader(page))
	if !ok {
		t.Fatal("expected fallback form to be found")
	}
	if form.Action != "/signin" {
		t.Errorf("expected the password form, got action %q", form.Action)
	}
}

func TestParseLoginFormAbsent(t *testing.T) {
	page := `<html><body><div id="kc-content">Already authenticated.</div></body></html>`

	if _, ok := parseLoginForm(strings.NewReader(page)); ok {
		t.Error("expected no form on an authenticated page")
	}
}

func TestFindLoginError(t *testing.T) {
	page := `<html><body><div class="alert alert-error">
<span class="pf-c-alert__title kc-feedback-text">Invalid username or password.</span>
</div></body></html>`

	msg, found := findLoginError(page)
	if !found {
		t.Fatal("expected error markup to be detected")
	}
	if msg != "Invalid username or password." {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestFindLoginErrorAbsent(t *testing.T) {
	page := `<html><body><h1>Welcome</h1></body></html>`

	if _, found := findLoginError(page); found {
		t.Error("clean page must not read as a login error")
	}
}
