package auth

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// loginFormID is the id Keycloak gives its credential form.
const loginFormID = "kc-form-login"

// Markup fragments Keycloak renders around login failures.
const (
	errorFeedbackMarker = "kc-feedback-text"
	errorAlertClass     = "pf-c-alert__title"
)

// loginForm is the parsed credential form: where to post and which
// hidden fields must be echoed back.
type loginForm struct {
	Action string
	Hidden url.Values
}

// parseLoginForm scans an HTML document for the login form. It returns
// false when the document has no such form, which usually means the
// realm considers the session already authenticated.
func parseLoginForm(r io.Reader) (*loginForm, bool) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, false
	}

	node := findForm(doc)
	if node == nil {
		return nil, false
	}

	form := &loginForm{
		Action: attr(node, "action"),
		Hidden: url.Values{},
	}
	collectHidden(node, form.Hidden)
	return form, true
}

// findForm locates the login form node. A form with the Keycloak id
// wins; failing that, the first form with a password input.
func findForm(n *html.Node) *html.Node {
	var fallback *html.Node
	var walk func(*html.Node) *html.Node
	walk = func(n *html.Node) *html.Node {
		if n.Type == html.ElementNode && n.Data == "form" {
			if attr(n, "id") == loginFormID {
				return n
			}
			if fallback == nil && hasPasswordInput(n) {
				fallback = n
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if found := walk(c); found != nil {
				return found
			}
		}
		return nil
	}
	if found := walk(n); found != nil {
		return found
	}
	return fallback
}

func hasPasswordInput(form *html.Node) bool {
	found := false
	visitInputs(form, func(n *html.Node) {
		if attr(n, "type") == "password" {
			found = true
		}
	})
	return found
}

// collectHidden gathers all hidden inputs so session codes and
// execution ids survive the round trip.
func collectHidden(form *html.Node, into url.Values) {
	visitInputs(form, func(n *html.Node) {
		if attr(n, "type") != "hidden" {
			return
		}
		name := attr(n, "name")
		if name == "" {
			return
		}
		into.Add(name, attr(n, "value"))
	})
}

func visitInputs(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode && n.Data == "input" {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		visitInputs(c, fn)
	}
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// findLoginError reports whether the page carries the realm's failure
// markup and extracts the message text when possible.
func findLoginError(page string) (string, bool) {
	if !strings.Contains(page, errorFeedbackMarker) && !strings.Contains(page, errorAlertClass) {
		return "", false
	}

	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return "", true
	}

	var msg string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if msg != "" {
			return
		}
		if n.Type == html.ElementNode && strings.Contains(attr(n, "class"), errorAlertClass) {
			msg = strings.TrimSpace(textContent(n))
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return msg, true
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(textContent(c))
	}
	return b.String()
}
