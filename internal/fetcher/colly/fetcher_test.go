package collyfetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestFetcher(timeout time.Duration) *Fetcher {
	return New(Config{
		UserAgent:    "seo-crawl-worker-test/0.1 (+https://example.com/bot)",
		Timeout:      timeout,
		MaxRedirects: 3,
	})
}

func TestFetch_HTMLSuccess(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><title>ok</title></html>"))
	}))
	defer srv.Close()

	res := newTestFetcher(5 * time.Second).Fetch(context.Background(), srv.URL+"/page")
	require.True(t, res.OK)
	require.Empty(t, res.Err)
	require.Equal(t, http.StatusOK, res.Status)
	require.Equal(t, srv.URL+"/page", res.FinalURL)
	require.Contains(t, string(res.HTML), "<title>ok</title>")
}

func TestFetch_FollowsRedirectsToFinalURL(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/end", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/end", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := newTestFetcher(5 * time.Second).Fetch(context.Background(), srv.URL+"/start")
	require.True(t, res.OK)
	require.Equal(t, srv.URL+"/end", res.FinalURL)
}

func TestFetch_NonHTMLIsSkippedNotFailed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	res := newTestFetcher(5 * time.Second).Fetch(context.Background(), srv.URL)
	require.True(t, res.OK)
	require.Empty(t, res.Err)
	require.Nil(t, res.HTML)
	require.False(t, res.IsHTML())
}

func TestFetch_HTTPErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	res := newTestFetcher(5 * time.Second).Fetch(context.Background(), srv.URL)
	require.False(t, res.OK)
	require.Equal(t, http.StatusNotFound, res.Status)
	require.NotEmpty(t, res.Err)
}

func TestFetch_TimeoutIsClassified(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	res := newTestFetcher(50 * time.Millisecond).Fetch(context.Background(), srv.URL)
	require.False(t, res.OK)
	require.Contains(t, res.Err, "timeout")
}

func TestFetch_RedirectLimit(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/loop", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/loop", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	res := newTestFetcher(5 * time.Second).Fetch(context.Background(), srv.URL+"/loop")
	require.False(t, res.OK)
	require.NotEmpty(t, res.Err)
}

func TestFetch_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	target := srv.URL
	srv.Close()

	res := newTestFetcher(2 * time.Second).Fetch(context.Background(), target)
	require.False(t, res.OK)
	require.Zero(t, res.Status)
	require.NotEmpty(t, res.Err)
}

func TestIsHTMLContentType(t *testing.T) {
	t.Parallel()

	cases := []struct {
		contentType string
		want        bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"TEXT/HTML", true},
		{"application/json", false},
		{"image/png", false},
		{"", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, isHTMLContentType(tc.contentType), tc.contentType)
	}
}
