// Package property serves property searches from the Paragon feed
// through a short-lived response cache.
package property

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/evcraddock/listings/internal/kv"
	"github.com/evcraddock/listings/internal/metrics"
	"github.com/evcraddock/listings/internal/paragon"
)

const (
	searchKeyPrefix   = "listings:search:"
	propertyKeyPrefix = "listings:property:"

	// flightTimeout bounds a shared feed call once it no longer follows
	// any single caller's context.
	flightTimeout = 5 * time.Minute
)

// Feed is the part of the Paragon client the service uses.
type Feed interface {
	Search(ctx context.Context, q paragon.Query, f paragon.Filters, includeMedia bool) (*paragon.Envelope[paragon.PropertyWithMedia], error)
	GetPropertyByID(ctx context.Context, id string, includeMedia bool) (*paragon.PropertyWithMedia, error)
}

// Service provides property lookups. Identical requests within ttl are
// answered from cache, and concurrent identical requests share one
// feed call. Errors are never cached.
type Service struct {
	feed  Feed
	cache kv.Store
	ttl   time.Duration
	group singleflight.Group
}

// NewService creates a property service. A nil cache or ttl <= 0
// disables caching.
func NewService(feed Feed, cache kv.Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		cache = nil
	}
	return &Service{feed: feed, cache: cache, ttl: ttl}
}

// Search runs a property query.
func (s *Service) Search(ctx context.Context, q paragon.Query, f paragon.Filters, includeMedia bool) (*paragon.Envelope[paragon.PropertyWithMedia], error) {
	sig, ok := searchSignature(q, f, includeMedia)
	if !ok {
		return s.feed.Search(ctx, q, f, includeMedia)
	}
	return cached(ctx, s, searchKeyPrefix+hash(sig), func(ctx context.Context) (*paragon.Envelope[paragon.PropertyWithMedia], error) {
		return s.feed.Search(ctx, q, f, includeMedia)
	})
}

// Get returns one property by ListingId, or nil when none matches.
func (s *Service) Get(ctx context.Context, id string, includeMedia bool) (*paragon.PropertyWithMedia, error) {
	id = strings.TrimSpace(id)
	key := propertyKeyPrefix + hash(fmt.Sprintf("%s|%t", id, includeMedia))
	return cached(ctx, s, key, func(ctx context.Context) (*paragon.PropertyWithMedia, error) {
		return s.feed.GetPropertyByID(ctx, id, includeMedia)
	})
}

// cached answers from cache or runs load once for all concurrent callers
// of key. The shared load is detached from every caller's cancellation;
// each caller stops waiting when its own ctx is done.
func cached[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if s.cache != nil {
		if v, ok := lookup[T](ctx, s.cache, key); ok {
			return v, nil
		}
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(flightCtx, flightTimeout)
		defer cancel()

		v, err := load(ctx)
		if err != nil {
			return v, err
		}
		if s.cache != nil {
			store(ctx, s.cache, key, v, s.ttl)
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// lookup reads a cached value. Cache failures count as misses.
func lookup[T any](ctx context.Context, cache kv.Store, key string) (T, bool) {
	var v T
	b, err := cache.Get(ctx, key)
	switch {
	case errors.Is(err, kv.ErrNotFound):
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return v, false
	case err != nil:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		slog.Warn("reading search cache", "key", key, "error", err)
		return v, false
	}

	if err := json.Unmarshal(b, &v); err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		slog.Warn("decoding cached search", "key", key, "error", err)
		var zero T
		return zero, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return v, true
}

func store(ctx context.Context, cache kv.Store, key string, v any, ttl time.Duration) {
	b, err := json.Marshal(v)
	if err != nil {
		slog.Warn("encoding search for cache", "key", key, "error", err)
		return
	}
	if err := cache.Set(ctx, key, b, ttl); err != nil {
		slog.Warn("writing search cache", "key", key, "error", err)
	}
}

// signature is the normalized form of a search used as its cache identity.
type signature struct {
	Kind          string   `json:"kind"`
	Value         string   `json:"value,omitempty"`
	Limit         int      `json:"limit,omitempty"`
	RadiusMiles   float64  `json:"radius,omitempty"`
	MinPrice      *float64 `json:"minPrice,omitempty"`
	MaxPrice      *float64 `json:"maxPrice,omitempty"`
	MinRooms      *int     `json:"minRooms,omitempty"`
	MaxRooms      *int     `json:"maxRooms,omitempty"`
	PropertyTypes []string `json:"propertyTypes,omitempty"`
	Media         bool     `json:"media"`
}

// searchSignature reports false for queries it does not know, which
// are passed to the feed uncached.
func searchSignature(q paragon.Query, f paragon.Filters, includeMedia bool) (string, bool) {
	sig := signature{
		MinPrice: f.MinPrice,
		MaxPrice: f.MaxPrice,
		MinRooms: f.MinRooms,
		MaxRooms: f.MaxRooms,
		Media:    includeMedia,
	}
	for _, t := range f.PropertyTypes {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			sig.PropertyTypes = append(sig.PropertyTypes, t)
		}
	}
	slices.Sort(sig.PropertyTypes)
	sig.PropertyTypes = slices.Compact(sig.PropertyTypes)

	switch q := q.(type) {
	case nil:
		sig.Kind = "all"
	case paragon.All:
		sig.Kind, sig.Limit = "all", q.Limit
	case paragon.ByID:
		sig.Kind, sig.Value = "id", strings.TrimSpace(q.ID)
	case paragon.ByZip:
		sig.Kind, sig.Value = "zip", strings.TrimSpace(q.Zip)
	case paragon.ByCity:
		sig.Kind, sig.Value = "city", strings.TrimSpace(q.City)
	case paragon.ByCounty:
		sig.Kind, sig.Value = "county", strings.TrimSpace(q.County)
	case paragon.ByStreet:
		sig.Kind, sig.Value = "street", strings.TrimSpace(q.Street)
	case paragon.ByAddress:
		sig.Kind, sig.Value, sig.RadiusMiles = "address", strings.ToLower(strings.TrimSpace(q.Address)), q.RadiusMiles
	default:
		return "", false
	}

	b, err := json.Marshal(sig)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
