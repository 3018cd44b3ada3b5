// Package pipeline implements the stage processors that move queue items
// through their lifecycle: fetching pages, filtering postings, scoring
// matches, and persisting results. Handlers are registered with the queue
// driver and may request derived spawns through its guard.
package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teliris/jobscout/config"
	"github.com/teliris/jobscout/errors"
)

// maxBodyBytes caps how much of a fetched page is retained.
const maxBodyBytes = 2 << 20

// Page is a fetched document.
type Page struct {
	URL         string
	ContentType string
	Body        string
}

// ContentFetcher retrieves pages for the fetch and scrape stages.
type ContentFetcher interface {
	Fetch(ctx context.Context, pageURL string) (*Page, error)
}

// HTTPFetcher fetches pages over HTTP with a shared outbound rate limit.
// Errors are classified so the driver can decide between retry and fail:
// timeouts, connection errors, 429 and 5xx responses are transient; bad
// URLs and other 4xx responses are fatal.
type HTTPFetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       *zap.SugaredLogger
}

// NewHTTPFetcher builds a fetcher from scraper configuration.
func NewHTTPFetcher(cfg config.ScraperConfig, log *zap.SugaredLogger) *HTTPFetcher {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &HTTPFetcher{
		client:    &http.Client{Timeout: cfg.ScrapeTimeout()},
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		userAgent: cfg.UserAgent,
		log:       log.Named("fetcher"),
	}
}

// Fetch retrieves pageURL, waiting for rate limiter capacity first.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return nil, errors.Fatal(err, "invalid page URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.Fatal(errors.Newf("unsupported scheme %q", parsed.Scheme), "invalid page URL")
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "rate limiter wait interrupted")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, errors.Fatal(err, "building request")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "fetch cancelled")
		}
		return nil, errors.Transient(err, "fetching page")
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Transient(err, "reading response body")
	}

	f.log.Debugw("Fetched page",
		"url", pageURL,
		"status", resp.StatusCode,
		"bytes", len(body),
		"elapsed", time.Since(start))

	return &Page{
		URL:         pageURL,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        string(body),
	}, nil
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests || code >= 500:
		return errors.Transient(errors.Newf("status %d", code), "fetching page")
	default:
		return errors.Fatal(errors.Newf("status %d", code), "fetching page")
	}
}

// NormalizeURL canonicalizes a page URL for use as a source key:
// lowercased scheme and host, default ports and fragments stripped,
// trailing slash removed from non-root paths.
func NormalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", errors.Wrapf(errors.ErrValidation, "invalid URL %q: %v", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.Wrapf(errors.ErrValidation, "unsupported scheme in %q", raw)
	}
	if parsed.Host == "" {
		return "", errors.Wrapf(errors.ErrValidation, "missing host in %q", raw)
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	if parsed.Scheme == "http" {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":80")
	} else {
		parsed.Host = strings.TrimSuffix(parsed.Host, ":443")
	}
	if len(parsed.Path) > 1 {
		parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	}
	return parsed.String(), nil
}
