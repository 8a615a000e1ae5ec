// Package osrm wraps the OSRM route service for driving distances.
package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/rentwise/geoenrich/internal/resilience"
)

const defaultBaseURL = "http://router.project-osrm.org"

// Coordinate is a longitude/latitude pair in degrees. OSRM URLs take
// lon,lat order, so the field order here mirrors the wire format.
type Coordinate struct {
	Lon float64
	Lat float64
}

// routeResponse is the subset of the OSRM route JSON we consume.
type routeResponse struct {
	Routes []struct {
		Distance float64 `json:"distance"` // meters
	} `json:"routes"`
}

// Client computes driving distances between coordinate pairs.
type Client interface {
	// DrivingDistanceKM returns the road-network driving distance in
	// kilometers from origin to destination, retrying failed attempts
	// before giving up.
	DrivingDistanceKM(ctx context.Context, origin, dest Coordinate) (float64, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the OSRM endpoint (used in tests).
func WithBaseURL(u string) Option {
	return func(c *client) { c.baseURL = u }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *client) { c.retry = cfg }
}

type client struct {
	baseURL    string
	httpClient *http.Client
	retry      resilience.RetryConfig
}

// NewClient creates an OSRM client. By default every attempt failure is
// retried up to 3 attempts with a 1 second pause.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		retry:      resilience.FixedDelay(3, time.Second),
	}
	c.retry.OnRetry = resilience.RetryLogger("osrm", "route")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DrivingDistanceKM implements Client.
func (c *client) DrivingDistanceKM(ctx context.Context, origin, dest Coordinate) (float64, error) {
	return resilience.DoVal(ctx, c.retry, func(ctx context.Context) (float64, error) {
		return c.route(ctx, origin, dest)
	})
}

func (c *client) route(ctx context.Context, origin, dest Coordinate) (float64, error) {
	reqURL := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		c.baseURL, origin.Lon, origin.Lat, dest.Lon, dest.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, eris.Wrap(err, "osrm: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, eris.Wrap(err, "osrm: route request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return 0, eris.Errorf("osrm: route returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, eris.Wrap(err, "osrm: read body")
	}

	var rr routeResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return 0, eris.Wrap(err, "osrm: parse response")
	}
	if len(rr.Routes) == 0 {
		return 0, eris.New("osrm: no routes in response")
	}

	return rr.Routes[0].Distance / 1000, nil
}
