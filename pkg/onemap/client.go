// Package onemap wraps the OneMap elastic place-search API used to
// resolve free-text Singapore addresses and postal codes to coordinates.
package onemap

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/rentwise/geoenrich/internal/resilience"
)

const defaultBaseURL = "https://www.onemap.gov.sg"

// searchResponse is the JSON body of the elastic search endpoint.
// Coordinates come back as strings, not numbers.
type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Latitude  string `json:"LATITUDE"`
	Longitude string `json:"LONGITUDE"`
}

// Result holds the outcome of a single place search.
type Result struct {
	Latitude  float64
	Longitude float64
	Found     bool
}

// Client searches OneMap for a free-text query.
type Client interface {
	// Search resolves a query (address or postal code) to coordinates.
	// An empty result list yields Found=false with a nil error; network
	// and decode failures return an error.
	Search(ctx context.Context, query string) (*Result, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the OneMap endpoint (used in tests).
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithRateLimit sets the requests-per-second limit for search calls.
func WithRateLimit(rps float64) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

type client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a OneMap search client. The token is sent as the
// Authorization header on every request.
func NewClient(token string, opts ...Option) Client {
	c := &client{
		baseURL:    defaultBaseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    rate.NewLimiter(10, 1), // one request per 100ms
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search implements Client.
func (c *client) Search(ctx context.Context, query string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "onemap: rate limit")
	}

	params := url.Values{
		"searchVal":      {query},
		"returnGeom":     {"Y"},
		"getAddrDetails": {"Y"},
		"pageNum":        {"1"},
	}
	reqURL := c.baseURL + "/api/common/elastic/search?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "onemap: build request")
	}
	if c.token != "" {
		req.Header.Set("Authorization", c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "onemap: search request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("onemap: search returned status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "onemap: read body")
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, eris.Wrap(err, "onemap: parse response")
	}

	if len(sr.Results) == 0 {
		return &Result{Found: false}, nil
	}

	// First result wins.
	first := sr.Results[0]
	lat, err := strconv.ParseFloat(first.Latitude, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "onemap: parse latitude %q", first.Latitude)
	}
	lon, err := strconv.ParseFloat(first.Longitude, 64)
	if err != nil {
		return nil, eris.Wrapf(err, "onemap: parse longitude %q", first.Longitude)
	}

	return &Result{Latitude: lat, Longitude: lon, Found: true}, nil
}
