package transport_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/auth"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/testutils"
	"github.com/StonerYan/EOGNighttimeLightDownloader/internal/transport"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

// newClient builds a connected client against the portal with retry
// delays disabled.
func newClient(t *testing.T, p *testutils.Portal, attempts int) *transport.Client {
	t.Helper()

	a := auth.New(p.Credentials(), p.AuthOptions())
	c := transport.NewClient(a, transport.Options{
		AuthBase:      p.AuthBase(),
		RetryAttempts: attempts,
		Sleep:         noSleep,
	})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	return c
}

func TestConnectAndGet(t *testing.T) {
	p := testutils.NewPortal(t, map[string][]byte{"a.bin": []byte("payload")})
	c := newClient(t, p, 3)

	resp, err := c.Get(context.Background(), p.FileURL("a.bin"), nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("unexpected body %q", body)
	}
}

func TestConnectFailsWithBadCredentials(t *testing.T) {
	p := testutils.NewPortal(t, nil)

	a := auth.New(auth.Credentials{Username: p.Username, Password: "wrong"}, p.AuthOptions())
	c := transport.NewClient(a, transport.Options{AuthBase: p.AuthBase(), Sleep: noSleep})

	err := c.Connect(context.Background())
	if !errors.Is(err, auth.ErrLoginFailed) {
		t.Fatalf("expected ErrLoginFailed, got %v", err)
	}
}

func TestExpiredSessionIsReplacedAndRetried(t *testing.T) {
	p := testutils.NewPortal(t, map[string][]byte{"a.bin": []byte("payload")})
	c := newClient(t, p, 3)

	// The portal now bounces the stale token to its login page with a
	// success status; only the final URL gives the expiry away.
	p.ExpireSessions()

	resp, err := c.Get(context.Background(), p.FileURL("a.bin"), nil)
	if err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "payload" {
		t.Errorf("unexpected body %q", body)
	}
	if got := p.Logins(); got != 2 {
		t.Errorf("expected exactly one re-login, got %d logins total", got)
	}
}

func TestConcurrentExpiryCoalescesToOneLogin(t *testing.T) {
	files := map[string][]byte{}
	for i := 0; i < 8; i++ {
		files[fmt.Sprintf("f%d.bin", i)] = []byte(fmt.Sprintf("payload-%d", i))
	}
	p := testutils.NewPortal(t, files)
	c := newClient(t, p, 5)

	p.ExpireSessions()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := c.Get(context.Background(), p.FileURL(fmt.Sprintf("f%d.bin", i)), nil)
			if err != nil {
				errs[i] = err
				return
			}
			defer resp.Body.Close()
			body, err := io.ReadAll(resp.Body)
			if err != nil {
				errs[i] = err
				return
			}
			if string(body) != fmt.Sprintf("payload-%d", i) {
				errs[i] = fmt.Errorf("unexpected body %q", body)
			}
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("worker %d: %v", i, err)
		}
	}
	// One login to connect, one shared re-login for the whole storm.
	if got := p.Logins(); got != 2 {
		t.Errorf("expected 2 logins total, got %d", got)
	}
}

func TestNotFoundIsNotRetried(t *testing.T) {
	p := testutils.NewPortal(t, map[string][]byte{"a.bin": []byte("payload")})
	c := newClient(t, p, 5)

	_, err := c.Get(context.Background(), p.FileURL("missing.bin"), nil)
	if !errors.Is(err, transport.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// A permanent failure must not churn the session.
	if got := p.Logins(); got != 1 {
		t.Errorf("expected no re-login, got %d logins total", got)
	}
}

func TestServerErrorsAreRetried(t *testing.T) {
	p := testutils.NewPortal(t, map[string][]byte{"a.bin": []byte("payload")})
	c := newClient(t, p, 5)

	p.FailRequests("a.bin", 2)

	resp, err := c.Get(context.Background(), p.FileURL("a.bin"), nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "payload" {
		t.Errorf("unexpected body %q", body)
	}
	// 5xx retries reuse the session instead of rebuilding it.
	if got := p.Logins(); got != 1 {
		t.Errorf("expected no re-login, got %d logins total", got)
	}
}

func TestRetriesExhaust(t *testing.T) {
	p := testutils.NewPortal(t, map[string][]byte{"a.bin": []byte("payload")})
	c := newClient(t, p, 2)

	p.FailRequests("a.bin", 10)

	_, err := c.Get(context.Background(), p.FileURL("a.bin"), nil)
	if !errors.Is(err, transport.ErrServerError) {
		t.Fatalf("expected ErrServerError after exhausting retries, got %v", err)
	}
}

func TestRangeNotSatisfiablePassesThrough(t *testing.T) {
	p := testutils.NewPortal(t, map[string][]byte{"a.bin": []byte("0123456789")})
	c := newClient(t, p, 3)

	header := http.Header{"Range": {"bytes=100-"}}
	resp, err := c.Get(context.Background(), p.FileURL("a.bin"), header)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("expected 416 passed through, got %d", resp.StatusCode)
	}
}

func TestPartialContentForRangeRequests(t *testing.T) {
	p := testutils.NewPortal(t, map[string][]byte{"a.bin": []byte("0123456789")})
	c := newClient(t, p, 3)

	header := http.Header{"Range": {"bytes=4-"}}
	resp, err := c.Get(context.Background(), p.FileURL("a.bin"), header)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "456789" {
		t.Errorf("expected suffix 456789, got %q", body)
	}
}

func TestHead(t *testing.T) {
	p := testutils.NewPortal(t, map[string][]byte{"a.bin": []byte("0123456789")})
	c := newClient(t, p, 3)

	resp, err := c.Head(context.Background(), p.FileURL("a.bin"))
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	resp.Body.Close()

	if resp.ContentLength != 10 {
		t.Errorf("expected content length 10, got %d", resp.ContentLength)
	}
	if p.BodyBytes("a.bin") != 0 {
		t.Errorf("HEAD must not transfer body bytes, got %d", p.BodyBytes("a.bin"))
	}
}
