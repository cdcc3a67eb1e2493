package crawler

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/transport"
)

// HTMLLister lists directories by fetching the portal's generated
// index pages and extracting anchors.
type HTMLLister struct {
	client *transport.Client
}

// NewHTMLLister creates a Lister backed by the authenticated client.
func NewHTMLLister(client *transport.Client) *HTMLLister {
	return &HTMLLister{client: client}
}

// List fetches the index page for dirURL and splits its links into
// files and subdirectories. Parent links, query-sort links, and
// absolute paths (all navigation noise in Apache-style listings) are
// skipped.
func (l *HTMLLister) List(ctx context.Context, dirURL string) (files, dirs []string, err error) {
	resp, err := l.client.Get(ctx, dirURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch listing: %w", err)
	}
	defer resp.Body.Close()

	base := resp.Request.URL

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("parse listing: %w", err)
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href := attrValue(n, "href"); keepHref(href) {
				if resolved, ok := resolve(base, href); ok {
					if strings.HasSuffix(href, "/") {
						dirs = append(dirs, resolved)
					} else {
						files = append(files, resolved)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return files, dirs, nil
}

func keepHref(href string) bool {
	if href == "" || href == "../" || href == "./" {
		return false
	}
	return !strings.HasPrefix(href, "?") && !strings.HasPrefix(href, "/")
}

func resolve(base *url.URL, href string) (string, bool) {
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}
