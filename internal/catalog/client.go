// Package catalog talks to the public drug label services: DailyMed for
// product search and label documents, openFDA as a secondary product search.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ACF100/ndc-location-mapper/internal/config"
)

// ErrNotFound means the service answered but had nothing for the query.
var ErrNotFound = errors.New("catalog: not found")

// StatusError is a non-2xx answer from a service.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog: status %d from %s", e.Code, e.URL)
}

const maxBodyBytes = 32 << 20

// Client issues single-attempt GET requests under a shared rate limit. A failed
// request is reported to the caller, which moves on to its next candidate.
type Client struct {
	dailyMedBaseURL string
	openFDABaseURL  string
	openFDAAPIKey   string
	userAgent       string
	httpClient      *http.Client
	limiter         *rate.Limiter
}

func NewClient(cfg config.Config) *Client {
	limit := rate.Inf
	if cfg.HTTPRateLimitRPS > 0 {
		limit = rate.Limit(cfg.HTTPRateLimitRPS)
	}
	return &Client{
		dailyMedBaseURL: strings.TrimRight(cfg.DailyMedBaseURL, "/"),
		openFDABaseURL:  strings.TrimRight(cfg.OpenFDABaseURL, "/"),
		openFDAAPIKey:   cfg.OpenFDAAPIKey,
		userAgent:       cfg.HTTPUserAgent,
		httpClient:      &http.Client{Timeout: time.Duration(cfg.HTTPTimeoutMs) * time.Millisecond},
		limiter:         rate.NewLimiter(limit, 1),
	}
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values, accept string) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, err
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, URL: u.Redacted()}
	}
	return body, nil
}

// IsNotFound reports whether err means "nothing there" rather than a failure.
func IsNotFound(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}
