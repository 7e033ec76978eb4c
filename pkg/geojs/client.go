// Package geojs looks up approximate coordinates for an IP address using the
// geojs.io geolocation API.
package geojs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public geojs endpoint.
const DefaultBaseURL = "https://get.geojs.io"

// Location is the geolocation result for an IP.
type Location struct {
	Latitude  float64
	Longitude float64
	// Matched is false when the provider could not place the address.
	Matched bool
}

// Client resolves IP addresses to coordinates.
type Client interface {
	// Locate resolves ip to a Location. An empty ip asks the provider to
	// geolocate the caller's own address. Provider failures of any kind
	// (transport, status, payload) yield an unmatched Location, not an
	// error.
	Locate(ctx context.Context, ip string) (*Location, error)
}

// Option configures the client.
type Option func(*client)

// WithBaseURL overrides the provider endpoint.
func WithBaseURL(base string) Option {
	return func(c *client) {
		c.baseURL = strings.TrimRight(base, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit for provider calls.
func WithRateLimit(rps float64) Option {
	return func(c *client) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

type client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a geolocation Client with the given options.
func NewClient(opts ...Option) Client {
	c := &client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    rate.NewLimiter(10, 10),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// geoResponse is the subset of the geojs payload we consume. geojs encodes
// coordinates as JSON strings; some deployments use numbers.
type geoResponse struct {
	Latitude  coordinate `json:"latitude"`
	Longitude coordinate `json:"longitude"`
}

// coordinate accepts a float from either a JSON string or number. Unparseable
// values leave it unset rather than failing the whole payload.
type coordinate struct {
	value float64
	ok    bool
}

func (c *coordinate) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" || strings.EqualFold(s, "nil") {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	c.value = v
	c.ok = true
	return nil
}

func (c *client) Locate(ctx context.Context, ip string) (*Location, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geojs: rate limit")
	}

	reqURL := c.baseURL + "/v1/ip/geo.json"
	if ip != "" {
		reqURL = fmt.Sprintf("%s/v1/ip/geo/%s.json", c.baseURL, url.PathEscape(ip))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geojs: build request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		zap.L().Debug("geojs: request failed", zap.String("ip", ip), zap.Error(err))
		return &Location{}, nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		zap.L().Debug("geojs: unexpected status", zap.String("ip", ip), zap.Int("status", resp.StatusCode))
		return &Location{}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		zap.L().Debug("geojs: read body failed", zap.Error(err))
		return &Location{}, nil
	}

	var gr geoResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		zap.L().Debug("geojs: parse response failed", zap.Error(err))
		return &Location{}, nil
	}

	if !gr.Latitude.ok || !gr.Longitude.ok {
		zap.L().Debug("geojs: response missing coordinates", zap.String("ip", ip))
		return &Location{}, nil
	}

	return &Location{
		Latitude:  gr.Latitude.value,
		Longitude: gr.Longitude.value,
		Matched:   true,
	}, nil
}
