// Package collyfetcher implements the document fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/pagepulse/crawlworker/internal/crawl"
)

// Defaults applied when Config leaves a bound unset.
const (
	defaultTimeout      = 15 * time.Second
	defaultMaxRedirects = 5
)

var errTooManyRedirects = errors.New("redirect limit exceeded")

// Config controls collector behavior.
type Config struct {
	// UserAgent should identify the crawler and a contact URL.
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
}

// Fetcher implements crawl.Fetcher using the Colly collector. Every fetch
// outcome, including transport failures, is returned as a structured
// crawl.FetchResult rather than an error.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = defaultMaxRedirects
	}

	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single bounded HTTP GET with redirect following.
func (f *Fetcher) Fetch(ctx context.Context, url string) crawl.FetchResult {
	collector := f.baseCollector.Clone()
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	collector.SetRedirectHandler(redirectPolicy(f.cfg.MaxRedirects))

	var (
		result    crawl.FetchResult
		fetchErr  error
		errStatus int
		errURL    string
	)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})

	collector.OnResponse(func(r *colly.Response) {
		contentType := r.Headers.Get("Content-Type")
		result = crawl.FetchResult{
			OK:          true,
			Status:      r.StatusCode,
			ContentType: contentType,
			FinalURL:    r.Request.URL.String(),
		}
		if isHTMLContentType(contentType) {
			result.HTML = append([]byte(nil), r.Body...)
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		fetchErr = err
		if r != nil {
			errStatus = r.StatusCode
			if r.Request != nil && r.Request.URL != nil {
				errURL = r.Request.URL.String()
			}
		}
	})

	if err := f.runCollector(ctx, collector, url); err != nil && fetchErr == nil {
		fetchErr = err
	}

	if result.OK {
		return result
	}

	finalURL := errURL
	if finalURL == "" {
		finalURL = url
	}
	return crawl.FetchResult{
		Status:   errStatus,
		FinalURL: finalURL,
		Err:      f.classifyError(fetchErr, errStatus),
	}
}

// runCollector runs the visit in a goroutine so an in-flight fetch cannot
// outlive the caller's context by more than the transport timeout.
func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		return err
	}
}

// classifyError produces the human-readable failure text carried in the
// result. Bound violations (total time, redirect count) are classified as
// timeouts per the fetch contract.
func (f *Fetcher) classifyError(err error, status int) string {
	switch {
	case err == nil && status > 0:
		return fmt.Sprintf("unexpected status %d", status)
	case err == nil:
		return "fetch failed"
	case isTimeout(err):
		return fmt.Sprintf("timeout: request exceeded %s: %v", f.cfg.Timeout, err)
	case errors.Is(err, errTooManyRedirects):
		return fmt.Sprintf("timeout: redirect limit %d exceeded", f.cfg.MaxRedirects)
	case status > 0:
		return fmt.Sprintf("unexpected status %d: %v", status, err)
	default:
		return err.Error()
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// redirectPolicy caps redirect hops for use with http.Client.CheckRedirect.
func redirectPolicy(maxHops int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return errTooManyRedirects
		}
		return nil
	}
}

// isHTMLContentType reports whether the response body should be handed to the
// extractor. Non-HTML resources are legitimately skipped, not failed.
func isHTMLContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml":
		return true
	default:
		return false
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}
