package credentials

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/productingest/internal/fetch"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStatic(t *testing.T) {
	t.Parallel()

	cookies := map[string]string{"SN": "abc"}
	s := NewStatic(cookies, map[string]string{"X-Test": "1"})
	cookies["SN"] = "mutated"

	got, err := s.Cookies(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["SN"] != "abc" {
		t.Errorf("expected provider to copy its input, got %v", got)
	}

	got["SN"] = "changed by caller"
	again, _ := s.Cookies(context.Background())
	if again["SN"] != "abc" {
		t.Errorf("expected provider to return copies, got %v", again)
	}

	headers, _ := s.Headers(context.Background())
	if headers["X-Test"] != "1" {
		t.Errorf("unexpected headers %v", headers)
	}
}

func TestDefaultHeaders(t *testing.T) {
	t.Parallel()

	h := DefaultHeaders("https://www.flipkart.com/", "")
	if h["Origin"] != "https://www.flipkart.com/" || h["Referer"] != "https://www.flipkart.com/" {
		t.Errorf("unexpected origin/referer %v", h)
	}
	if h["User-Agent"] != fetch.DefaultUserAgent {
		t.Errorf("unexpected user agent %q", h["User-Agent"])
	}
	if h["X-User-Agent"] != fetch.DefaultUserAgent+" FKUA/website/42/website/Desktop" {
		t.Errorf("unexpected X-User-Agent %q", h["X-User-Agent"])
	}
	if h["Content-Type"] != "application/json" {
		t.Errorf("unexpected content type %q", h["Content-Type"])
	}
}

func TestHarvester(t *testing.T) {
	t.Parallel()

	t.Run("collects cookies once", func(t *testing.T) {
		t.Parallel()

		var visits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			visits.Add(1)
			http.SetCookie(w, &http.Cookie{Name: "T", Value: "tok", Path: "/"})
			http.SetCookie(w, &http.Cookie{Name: "SN", Value: "sess", Path: "/"})
			_, _ = w.Write([]byte("<html></html>"))
		}))
		defer server.Close()

		h := NewHarvester(server.Client(), server.URL+"/", WithLogger(quietLogger()), WithUserAgent("ua-test"))

		for range 2 {
			cookies, err := h.Cookies(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cookies["T"] != "tok" || cookies["SN"] != "sess" {
				t.Errorf("unexpected cookies %v", cookies)
			}
		}
		if visits.Load() != 1 {
			t.Errorf("expected a single visit, got %d", visits.Load())
		}

		headers, _ := h.Headers(context.Background())
		if headers["User-Agent"] != "ua-test" || headers["Origin"] != server.URL+"/" {
			t.Errorf("unexpected headers %v", headers)
		}
	})

	t.Run("follows redirects and keeps their cookies", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/" {
				http.SetCookie(w, &http.Cookie{Name: "first", Value: "1", Path: "/"})
				http.Redirect(w, r, "/home", http.StatusFound)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "second", Value: "2", Path: "/"})
		})
		server := httptest.NewServer(mux)
		defer server.Close()

		h := NewHarvester(server.Client(), server.URL+"/", WithLogger(quietLogger()))
		cookies, err := h.Cookies(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cookies["first"] != "1" || cookies["second"] != "2" {
			t.Errorf("unexpected cookies %v", cookies)
		}
	})

	t.Run("failure surfaces a transport error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		h := NewHarvester(server.Client(), server.URL+"/",
			WithLogger(quietLogger()),
			WithRetry(2, time.Millisecond),
		)
		_, err := h.Cookies(context.Background())
		if !errors.Is(err, fetch.ErrTransport) {
			t.Errorf("expected ErrTransport, got %v", err)
		}
	})
	t.Run("keeps the first outcome even when its context was cancelled", func(t *testing.T) {
		t.Parallel()

		var visits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			visits.Add(1)
			http.SetCookie(w, &http.Cookie{Name: "T", Value: "tok", Path: "/"})
		}))
		defer server.Close()

		h := NewHarvester(server.Client(), server.URL+"/",
			WithLogger(quietLogger()),
			WithRetry(1, 0),
		)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := h.Cookies(ctx); err == nil {
			t.Fatal("expected error with cancelled context")
		}

		_, err := h.Cookies(context.Background())
		if !errors.Is(err, fetch.ErrTransport) {
			t.Errorf("expected the cached ErrTransport, got %v", err)
		}
		if visits.Load() != 0 {
			t.Errorf("expected no visit after the cancelled harvest, got %d", visits.Load())
		}
	})
}

type failingProvider struct{}

func (failingProvider) Cookies(context.Context) (map[string]string, error) {
	return nil, errors.New("no cookies")
}

func (failingProvider) Headers(context.Context) (map[string]string, error) {
	return nil, errors.New("no headers")
}

func TestMerge(t *testing.T) {
	t.Parallel()

	t.Run("primary overrides fallback", func(t *testing.T) {
		t.Parallel()

		fallback := NewStatic(
			map[string]string{"SN": "harvested", "T": "harvested"},
			map[string]string{"Referer": "https://www.flipkart.com/", "User-Agent": "default"},
		)
		primary := NewStatic(
			map[string]string{"SN": "configured"},
			map[string]string{"User-Agent": "custom"},
		)

		p := Merge(primary, fallback)
		cookies, err := p.Cookies(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cookies["SN"] != "configured" || cookies["T"] != "harvested" {
			t.Errorf("unexpected cookies %v", cookies)
		}

		headers, err := p.Headers(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if headers["User-Agent"] != "custom" || headers["Referer"] != "https://www.flipkart.com/" {
			t.Errorf("unexpected headers %v", headers)
		}
	})

	t.Run("errors propagate", func(t *testing.T) {
		t.Parallel()

		p := Merge(NewStatic(nil, nil), failingProvider{})
		if _, err := p.Cookies(context.Background()); err == nil {
			t.Error("expected error from fallback")
		}
		p = Merge(failingProvider{}, NewStatic(nil, nil))
		if _, err := p.Headers(context.Background()); err == nil {
			t.Error("expected error from primary")
		}
	})
}
