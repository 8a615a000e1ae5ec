package onemap

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentwise/geoenrich/internal/resilience"
)

func TestSearch_Success(t *testing.T) {
	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.Query().Get("searchVal")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"results": [
				{"LATITUDE": "1.30123", "LONGITUDE": "103.80456"},
				{"LATITUDE": "1.99999", "LONGITUDE": "103.99999"}
			]
		}`)
	}))
	defer srv.Close()

	c := NewClient("test-token", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	result, err := c.Search(context.Background(), "10 ANSON ROAD")
	require.NoError(t, err)

	assert.True(t, result.Found)
	assert.InDelta(t, 1.30123, result.Latitude, 1e-9)
	assert.InDelta(t, 103.80456, result.Longitude, 1e-9)
	assert.Equal(t, "test-token", gotAuth)
	assert.Equal(t, "10 ANSON ROAD", gotQuery)
}

func TestSearch_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"results": []}`)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	result, err := c.Search(context.Background(), "NO SUCH PLACE")
	require.NoError(t, err)
	assert.False(t, result.Found)
}

func TestSearch_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Search(context.Background(), "10 ANSON ROAD")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestSearch_NotFoundStatusIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Search(context.Background(), "10 ANSON ROAD")
	require.Error(t, err)
	assert.False(t, resilience.IsTransient(err))
}

func TestSearch_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"results": [`)
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	_, err := c.Search(context.Background(), "10 ANSON ROAD")
	assert.Error(t, err)
}

func TestSearch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = io.WriteString(w, `{"results": []}`)
	}))
	defer srv.Close()

	hc := &http.Client{Timeout: 20 * time.Millisecond}
	c := NewClient("", WithBaseURL(srv.URL), WithHTTPClient(hc))
	_, err := c.Search(context.Background(), "10 ANSON ROAD")
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestSearch_RateLimitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("", WithRateLimit(0.001))
	_, err := c.Search(ctx, "10 ANSON ROAD")
	require.Error(t, err)
}
