package geojs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateByIP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ip/geo/8.8.8.8.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"ip":"8.8.8.8","latitude":"37.751","longitude":"-97.822","country":"United States"}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	loc, err := c.Locate(context.Background(), "8.8.8.8")
	require.NoError(t, err)

	assert.True(t, loc.Matched)
	assert.InDelta(t, 37.751, loc.Latitude, 1e-6)
	assert.InDelta(t, -97.822, loc.Longitude, 1e-6)
}

func TestLocateSelf(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/ip/geo.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"latitude":51.5074,"longitude":-0.1278}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	loc, err := c.Locate(context.Background(), "")
	require.NoError(t, err)

	// Numeric coordinates parse the same as strings.
	assert.True(t, loc.Matched)
	assert.InDelta(t, 51.5074, loc.Latitude, 1e-6)
	assert.InDelta(t, -0.1278, loc.Longitude, 1e-6)
}

func TestLocateMissingCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"10.0.0.1","country":"Reserved"}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	loc, err := c.Locate(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, loc.Matched)
}

func TestLocateUnparseableCoordinates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"latitude":"nil","longitude":"nil"}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	loc, err := c.Locate(context.Background(), "192.0.2.1")
	require.NoError(t, err)
	assert.False(t, loc.Matched)
}

func TestLocateNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	loc, err := c.Locate(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.False(t, loc.Matched)
}

func TestLocateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"latitude":"1","longitude":"1"}`))
	}))
	defer srv.Close()

	c := NewClient(
		WithBaseURL(srv.URL),
		WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}),
	)
	loc, err := c.Locate(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.False(t, loc.Matched)
}

func TestLocateTransportError(t *testing.T) {
	// Closed server: connection refused.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	loc, err := c.Locate(context.Background(), "8.8.8.8")
	require.NoError(t, err)
	assert.False(t, loc.Matched)
}

func TestLocateContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(WithRateLimit(0.0001))
	_, err := c.Locate(ctx, "8.8.8.8")
	assert.Error(t, err)
}
