package fetcher

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/catalog-cli/internal/resilience"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 512

// HTTPOptions configures the HTTP fetcher.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	// RateLimit is requests per second across all hosts. Zero disables it.
	RateLimit float64
	Retry     resilience.Policy
}

// HTTPFetcher implements Fetcher using net/http with retry and rate limiting.
type HTTPFetcher struct {
	client  *http.Client
	opts    HTTPOptions
	limiter *rate.Limiter
}

// NewHTTPFetcher creates a new HTTPFetcher with the given options.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "catalog-cli/1.0"
	}
	if opts.Retry.Label == "" {
		opts.Retry.Label = "fetch"
	}
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		opts: opts,
	}
	if opts.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return f
}

// Download fetches the URL and returns the response body. Transient
// failures (network errors, 408, 429, 5xx) are retried per the policy.
// Anti-bot answers fail with a *BlockedError.
func (f *HTTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	body, err := resilience.Retry(ctx, f.opts.Retry, func(ctx context.Context) (io.ReadCloser, error) {
		return f.get(ctx, rawURL)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "download %s", rawURL)
	}
	return body, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "rate limiter wait")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", f.opts.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close() //nolint:errcheck
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if kind := DetectBlock(resp, b); kind != BlockNone {
			return nil, &BlockedError{URL: rawURL, Kind: kind}
		}
		return nil, &resilience.StatusError{
			Service:    req.URL.Host,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}
	if isHTML(resp) {
		return checkBlocked(rawURL, resp)
	}
	return resp.Body, nil
}
