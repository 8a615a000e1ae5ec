package osrm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentwise/geoenrich/internal/resilience"
)

func TestDrivingDistanceKM_ConvertsMetersToKM(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"routes": [{"distance": 8421.7}]}`)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	km, err := c.DrivingDistanceKM(context.Background(),
		Coordinate{Lon: 103.85149, Lat: 1.28387},
		Coordinate{Lon: 103.80456, Lat: 1.30123},
	)
	require.NoError(t, err)
	assert.InDelta(t, 8.4217, km, 1e-9)
	assert.True(t, strings.HasPrefix(gotPath, "/route/v1/driving/"))
	// OSRM path segments are lon,lat ordered.
	assert.Contains(t, gotPath, "103.851490,1.283870;103.804560,1.301230")
}

func TestDrivingDistanceKM_SucceedsMidRetryWithoutFurtherCalls(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"routes": [{"distance": 1000}]}`)
	}))
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRetry(resilience.FixedDelay(3, time.Millisecond)),
	)
	km, err := c.DrivingDistanceKM(context.Background(), Coordinate{}, Coordinate{})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, km, 1e-9)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDrivingDistanceKM_ExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRetry(resilience.FixedDelay(3, time.Millisecond)),
	)
	_, err := c.DrivingDistanceKM(context.Background(), Coordinate{}, Coordinate{})
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDrivingDistanceKM_EmptyRoutesRetriedThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"routes": []}`)
	}))
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRetry(resilience.FixedDelay(2, time.Millisecond)),
	)
	_, err := c.DrivingDistanceKM(context.Background(), Coordinate{}, Coordinate{})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
