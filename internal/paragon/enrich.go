package paragon

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/evcraddock/listings/internal/metrics"
)

// EnrichStatus is the geocoding outcome for one property.
type EnrichStatus string

const (
	EnrichHadCoordinates EnrichStatus = "had_coordinates"
	EnrichGeocoded       EnrichStatus = "geocoded"
	EnrichFailed         EnrichStatus = "failed"
	EnrichNoGeocoder     EnrichStatus = "no_geocoder"
)

// EnrichResult reports what happened to one property. Err is an
// *EnrichmentError when Status is EnrichFailed.
type EnrichResult struct {
	ListingKey string
	Status     EnrichStatus
	Err        error
}

// Enrichment holds per-property results, index-aligned with the input.
type Enrichment struct {
	Results []EnrichResult
}

// Count returns how many results have the given status.
func (e Enrichment) Count(status EnrichStatus) int {
	n := 0
	for _, r := range e.Results {
		if r.Status == status {
			n++
		}
	}
	return n
}

// EnrichCoordinates geocodes, in place, every property that lacks a
// latitude or longitude. Failures leave the property unchanged and are
// reported in the result; they never fail the batch.
func (c *Client) EnrichCoordinates(ctx context.Context, props []PropertyWithMedia) Enrichment {
	results := make([]EnrichResult, len(props))

	var g errgroup.Group
	g.SetLimit(c.cfg.GeocodeConcurrency)
	for i := range props {
		p := &props[i]
		results[i].ListingKey = p.ListingKey

		if _, ok := p.Coordinates(); ok {
			results[i].Status = EnrichHadCoordinates
			continue
		}
		if c.geocoder == nil {
			results[i].Status = EnrichNoGeocoder
			continue
		}

		g.Go(func() error {
			results[i] = c.geocodeOne(ctx, p)
			metrics.GeocodeResults.WithLabelValues(string(results[i].Status)).Inc()
			return nil
		})
	}
	_ = g.Wait()

	return Enrichment{Results: results}
}

func (c *Client) geocodeOne(ctx context.Context, p *PropertyWithMedia) EnrichResult {
	res := EnrichResult{ListingKey: p.ListingKey}

	address := p.Address()
	if address == "" {
		res.Status = EnrichFailed
		res.Err = &EnrichmentError{ListingKey: p.ListingKey, Err: errors.New("property has no address")}
		return res
	}

	pt, err := c.geocoder.Geocode(ctx, address)
	if err != nil {
		slog.Warn("geocoding failed", "listing_key", p.ListingKey, "error", err)
		res.Status = EnrichFailed
		res.Err = &EnrichmentError{ListingKey: p.ListingKey, Err: err}
		return res
	}

	lat, lng := pt.Lat, pt.Lng
	p.Latitude = &lat
	p.Longitude = &lng
	res.Status = EnrichGeocoded
	return res
}
