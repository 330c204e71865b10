// Package paragon is a client for the Paragon RESO/OData listing feed.
// It authenticates with the client-credentials grant, follows OData
// pagination, joins Media records onto Property records and exposes the
// property search operations used by the web and CLI front ends.
package paragon

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/evcraddock/listings/internal/geocode"
	"github.com/evcraddock/listings/internal/kv"
)

const (
	defaultPageSize           = 200
	defaultLimitedPageSize    = 50
	defaultMaxPages           = 100
	defaultMaxURLLength       = 2048
	defaultMediaConcurrency   = 8
	defaultGeocodeConcurrency = 4
	defaultRequestTimeout     = 15 * time.Second
	defaultTokenTimeout       = 10 * time.Second
	maxResponseBytes          = 32 << 20
)

// Config holds feed connection and tuning settings.
type Config struct {
	BaseURL      string // e.g. https://feed.example.com/OData/ABC
	TokenURL     string
	ClientID     string
	ClientSecret string

	// LimitedMode caps location searches at LimitedPageSize results
	// instead of following pagination to the end of the result set.
	LimitedMode     bool
	LimitedPageSize int

	PageSize           int
	MaxPages           int
	MaxURLLength       int
	MediaConcurrency   int
	GeocodeConcurrency int

	RequestTimeout    time.Duration
	TokenTimeout      time.Duration
	TokenLeeway       time.Duration
	RetryMax          int     // 0 disables retries
	RequestsPerSecond float64 // 0 is unlimited

	// AllowedPostalCodes restricts every property query to these zips.
	AllowedPostalCodes []string
}

func (c Config) withDefaults() Config {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.LimitedPageSize <= 0 {
		c.LimitedPageSize = defaultLimitedPageSize
	}
	if c.MaxPages <= 0 {
		c.MaxPages = defaultMaxPages
	}
	if c.MaxURLLength <= 0 {
		c.MaxURLLength = defaultMaxURLLength
	}
	if c.MediaConcurrency <= 0 {
		c.MediaConcurrency = defaultMediaConcurrency
	}
	if c.GeocodeConcurrency <= 0 {
		c.GeocodeConcurrency = defaultGeocodeConcurrency
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.TokenTimeout <= 0 {
		c.TokenTimeout = defaultTokenTimeout
	}
	if c.RetryMax < 0 {
		c.RetryMax = 0
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

func (c Config) validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("paragon base URL is required")
	case c.TokenURL == "":
		return fmt.Errorf("paragon token URL is required")
	case c.ClientID == "":
		return fmt.Errorf("paragon client ID is required")
	case c.ClientSecret == "":
		return fmt.Errorf("paragon client secret is required")
	}
	return nil
}

// Geocoder resolves an address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geocode.Point, error)
}

// Client talks to the Paragon feed. It is safe for concurrent use.
// Construction performs no I/O; the first request authenticates.
type Client struct {
	cfg      Config
	http     *retryablehttp.Client
	limiter  *rate.Limiter
	tokens   *TokenManager
	geocoder Geocoder
}

// Option configures a Client.
type Option func(*Client)

// WithGeocoder enables coordinate enrichment and radius searches.
func WithGeocoder(g Geocoder) Option {
	return func(c *Client) {
		c.geocoder = g
	}
}

// New creates a feed client. store persists bearer tokens across
// restarts; it may be nil to keep tokens in process only.
func New(cfg Config, store kv.Store, opts ...Option) (*Client, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = 900 * time.Millisecond
	rc.HTTPClient.Timeout = cfg.RequestTimeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = slog.Default()

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		cfg:     cfg,
		http:    rc,
		limiter: rate.NewLimiter(limit, 1),
		tokens: NewTokenManager(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, store,
			&http.Client{Timeout: cfg.TokenTimeout}, cfg.TokenLeeway),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Tokens returns the client's token manager.
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}
