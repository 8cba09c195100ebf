package economic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/go-querystring/query"
)

const (
	defaultBaseURL      = "https://restapi.e-conomic.com"
	defaultDocumentsURL = "https://restapi.e-conomic.com/documents"

	// defaultRetryWait is used when a rate-limited response carries no
	// Retry-After hint.
	defaultRetryWait = 5 * time.Second

	// maxRateLimitAttempts caps the wait-and-retry loop for 429/503
	// responses. The upstream limits are transient, but an endless loop
	// would otherwise block a tenant's sync forever.
	maxRateLimitAttempts = 10

	// defaultPageCap bounds the number of pages a single FetchAll call will
	// accumulate before returning ErrPageCapExceeded alongside the items
	// collected so far.
	defaultPageCap = 500

	defaultRequestTimeout = 30 * time.Second
)

var (
	// ErrAuth indicates the app secret or agreement grant token was
	// rejected. Fatal for the tenant's pass; other tenants continue.
	ErrAuth = errors.New("economic: authentication rejected")

	// ErrNotFound indicates a 404 for the requested resource, typically a
	// period or year not yet available upstream.
	ErrNotFound = errors.New("economic: resource not found")

	// ErrRateLimited indicates the rate-limit retries were exhausted.
	ErrRateLimited = errors.New("economic: rate limit retries exhausted")

	// ErrPageCapExceeded indicates FetchAll stopped following nextPage
	// cursors after the configured page cap. The returned slice holds
	// every page fetched so far, in server order.
	ErrPageCapExceeded = errors.New("economic: page cap exceeded")
)

// ListParams are the query parameters accepted by e-conomic collection
// endpoints.
type ListParams struct {
	PageSize  int    `url:"pagesize,omitempty"`
	SkipPages int    `url:"skippages,omitempty"`
	Filter    string `url:"filter,omitempty"`
	Sort      string `url:"sort,omitempty"`
}

// envelope is the wrapper common to all e-conomic collection responses. The
// nextPage URL, when present, is opaque and absolute and is followed
// verbatim.
type envelope struct {
	Collection []json.RawMessage `json:"collection"`
	Pagination struct {
		NextPage string `json:"nextPage"`
	} `json:"pagination"`
}

// Client is an authenticated client for one agreement (tenant) of the
// e-conomic REST API. Every request carries the process-wide app secret and
// the tenant's grant token.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	documentsURL string
	appSecret    string
	grantToken   string
	pageCap      int
	log          *slog.Logger

	// sleep is replaced in tests to avoid real rate-limit waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the REST API base URL (used in tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithDocumentsURL overrides the document-availability side API base URL.
func WithDocumentsURL(u string) Option {
	return func(c *Client) { c.documentsURL = strings.TrimRight(u, "/") }
}

// WithPageCap overrides the FetchAll page cap.
func WithPageCap(n int) Option {
	return func(c *Client) { c.pageCap = n }
}

// NewClient creates a client for one agreement. If no httpClient is provided
// a client with the default request timeout is used.
func NewClient(appSecret, grantToken string, httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(
			os.Stdout,
			&slog.HandlerOptions{Level: slog.LevelInfo},
		))
	}
	c := &Client{
		httpClient:   httpClient,
		baseURL:      defaultBaseURL,
		documentsURL: defaultDocumentsURL,
		appSecret:    appSecret,
		grantToken:   grantToken,
		pageCap:      defaultPageCap,
		log:          logger,
		sleep:        sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves a single resource or page. The path may be relative to the
// API base URL or an absolute URL (as produced by pagination cursors). Any
// 429/503 response suspends only this call before the identical request is
// re-issued; other errors propagate to the caller unmodified.
func (c *Client) Fetch(ctx context.Context, path string, params *ListParams) (json.RawMessage, error) {
	requestURL, err := c.buildURL(c.baseURL, path, params)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, requestURL)
}

// FetchAll retrieves every page of a collection endpoint by following the
// envelope's nextPage cursor until the source reports no further page. Items
// are concatenated in server order; page k+1 is requested only after page k
// has resolved. The per-page rate-limit retry applies to every page.
func (c *Client) FetchAll(ctx context.Context, path string, params *ListParams) ([]json.RawMessage, error) {
	requestURL, err := c.buildURL(c.baseURL, path, params)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	for page := 0; ; page++ {
		if page >= c.pageCap {
			c.log.Warn(fmt.Sprintf("FetchAll %s: stopping after %d pages", path, page))
			return items, fmt.Errorf("fetching %s: %w", path, ErrPageCapExceeded)
		}

		body, err := c.do(ctx, requestURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d of %s: %w", page+1, path, err)
		}

		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("failed to decode page %d of %s: %w", page+1, path, err)
		}
		items = append(items, env.Collection...)

		if env.Pagination.NextPage == "" {
			break
		}
		// Follow the opaque cursor verbatim.
		requestURL = env.Pagination.NextPage
	}

	c.log.Debug(fmt.Sprintf("FetchAll %s: retrieved %d items", path, len(items)))
	return items, nil
}

// Exists consults the document-availability side API for the given path,
// relative to the documents base URL. A 200 means the document exists, a 404
// that it does not; rate limits are retried as for Fetch.
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	requestURL, err := c.buildURL(c.documentsURL, path, nil)
	if err != nil {
		return false, err
	}
	_, err = c.do(ctx, requestURL)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// buildURL resolves a possibly-relative path against base and encodes any
// list parameters.
func (c *Client) buildURL(base, path string, params *ListParams) (string, error) {
	requestURL := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		requestURL = base + "/" + strings.TrimLeft(path, "/")
	}
	if params == nil {
		return requestURL, nil
	}
	values, err := query.Values(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode list parameters: %w", err)
	}
	if encoded := values.Encode(); encoded != "" {
		sep := "?"
		if strings.Contains(requestURL, "?") {
			sep = "&"
		}
		requestURL = requestURL + sep + encoded
	}
	return requestURL, nil
}

// do executes a GET against requestURL, retrying 429/503 responses after the
// server-hinted (or default) wait. All other non-2xx statuses are mapped to
// errors for the caller to classify.
func (c *Client) do(ctx context.Context, requestURL string) (json.RawMessage, error) {
	for attempt := 1; attempt <= maxRateLimitAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("X-AppSecretToken", c.appSecret)
		req.Header.Set("X-AgreementGrantToken", c.grantToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			wait := retryAfter(resp, defaultRetryWait)
			c.log.Info(fmt.Sprintf("rate limited (status %d), waiting %s before retry %d", resp.StatusCode, wait, attempt))
			if err := c.sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w (status %d): %s", ErrAuth, resp.StatusCode, truncate(body, 200))
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("%w: %s", ErrNotFound, requestURL)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, truncate(body, 200))
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response body: %w", readErr)
		}
		return body, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrRateLimited, requestURL)
}

// retryAfter computes the wait from a Retry-After header, accepting either a
// delay in seconds or an HTTP date, falling back to def.
func retryAfter(resp *http.Response, def time.Duration) time.Duration {
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return def
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if when, err := http.ParseTime(header); err == nil {
		if d := time.Until(when); d > 0 {
			return d
		}
	}
	return def
}

// sleepCtx sleeps for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncate caps b at n bytes, backing up to a rune boundary so multibyte
// characters in source error bodies are never split.
func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	for n > 0 && !utf8.RuneStart(b[n]) {
		n--
	}
	return string(b[:n]) + "..."
}
