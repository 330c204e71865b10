package geocode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
)

const userAgent = "listings-geocoder/1.0"

// ErrNoMatch is returned when the provider finds no result for an address.
var ErrNoMatch = errors.New("geocode: no match")

// Client queries a Nominatim-compatible search endpoint
// (GET ?format=json&limit=1&q=<address>), guarded by a circuit breaker
// so a failing provider is not hammered once per property.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker[Point]
}

// NewClient creates a geocoding client for the given endpoint.
func NewClient(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("geocoder URL is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[Point](gobreaker.Settings{
		Name:        "geocoder",
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// A missing match is an answer, not a provider failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoMatch)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		cb:         cb,
	}, nil
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Geocode resolves an address to a point.
func (c *Client) Geocode(ctx context.Context, address string) (Point, error) {
	if address == "" {
		return Point{}, fmt.Errorf("address is required")
	}
	return c.cb.Execute(func() (Point, error) {
		return c.lookup(ctx, address)
	})
}

func (c *Client) lookup(ctx context.Context, address string) (p Point, err error) {
	params := url.Values{
		"format": {"json"},
		"limit":  {"1"},
		"q":      {address},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return Point{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Point{}, fmt.Errorf("sending request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing body: %w", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return Point{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Point{}, fmt.Errorf("reading response: %w", err)
	}

	var results []searchResult
	if err := json.Unmarshal(body, &results); err != nil {
		return Point{}, fmt.Errorf("decoding response: %w", err)
	}
	if len(results) == 0 {
		return Point{}, fmt.Errorf("%w: %s", ErrNoMatch, address)
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return Point{}, fmt.Errorf("parsing latitude %q: %w", results[0].Lat, err)
	}
	lng, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return Point{}, fmt.Errorf("parsing longitude %q: %w", results[0].Lon, err)
	}

	return Point{Lat: lat, Lng: lng}, nil
}
