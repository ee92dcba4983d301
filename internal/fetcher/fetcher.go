// Package fetcher retrieves raw document bytes over HTTP.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fyrsmithlabs/docflow/internal/logging"
	"go.uber.org/zap"
)

// Defaults used when Config fields are zero.
const (
	DefaultTimeout   = 45 * time.Second
	DefaultMaxBytes  = 1 << 20
	DefaultUserAgent = "docflow/1.0"
)

// ErrTooLarge is wrapped by FetchError when a body exceeds MaxBytes.
var ErrTooLarge = errors.New("document exceeds size limit")

// Config configures a Fetcher.
type Config struct {
	Timeout   time.Duration
	MaxBytes  int64
	UserAgent string

	// HTTPClient overrides the default client. Its Timeout is left alone.
	HTTPClient *http.Client
}

// Fetcher downloads documents. It never retries; retries belong to the
// caller's durable execution.
type Fetcher struct {
	client    *http.Client
	maxBytes  int64
	userAgent string
	logger    *logging.Logger
}

// New creates a Fetcher. A nil logger disables logging.
func New(cfg Config, logger *logging.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Fetcher{
		client:    client,
		maxBytes:  cfg.MaxBytes,
		userAgent: cfg.UserAgent,
		logger:    logger.Named("fetcher"),
	}
}

// Fetch returns the body of rawURL. Anything but a 2xx response, a
// transport failure, or a body over the size limit yields *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()
	body, err := f.fetch(ctx, rawURL)

	result := "success"
	if err != nil {
		result = "error"
	}
	fetchDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	if err != nil {
		f.logger.Warn(ctx, "fetch failed", logging.URL("url", rawURL), zap.Error(err))
		return nil, err
	}
	fetchBytes.Observe(float64(len(body)))
	f.logger.Debug(ctx, "document fetched",
		logging.URL("url", rawURL),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return body, nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	safe := logging.SanitizeURL(rawURL)

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{URL: safe, Err: err}
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, &FetchError{URL: safe, Err: fmt.Errorf("url must be absolute http(s), got %q", u.Scheme)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{URL: safe, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: safe, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: safe, StatusCode: resp.StatusCode}
	}

	if resp.ContentLength > f.maxBytes {
		return nil, &FetchError{URL: safe, Err: fmt.Errorf("%w: content-length %d > %d", ErrTooLarge, resp.ContentLength, f.maxBytes)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{URL: safe, Err: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(body)) > f.maxBytes {
		return nil, &FetchError{URL: safe, Err: fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)}
	}
	return body, nil
}
