package paragon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/evcraddock/listings/internal/geocode"
)

// GetAllProperties returns active sale listings, the first limit of
// them when limit > 0, otherwise the whole feed. No media is attached.
func (c *Client) GetAllProperties(ctx context.Context, limit int) ([]Property, error) {
	if limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}

	top := c.cfg.PageSize
	if limit > 0 && limit < top {
		top = limit
	}

	crit := FilterCriteria{AllowedPostalCodes: c.cfg.AllowedPostalCodes}
	env, err := getAll[Property](ctx, c, resourceProperty,
		c.resourceURL(resourceProperty, top, BuildPropertyFilter(crit)), limit)
	if err != nil {
		return nil, fmt.Errorf("fetching properties: %w", err)
	}
	return env.Value, nil
}

// GetAllPropertiesWithMedia is GetAllProperties followed by the media
// join and geocoding of listings that lack coordinates. The Enrichment
// reports the geocoding outcome per property.
func (c *Client) GetAllPropertiesWithMedia(ctx context.Context, limit int) ([]PropertyWithMedia, Enrichment, error) {
	props, err := c.GetAllProperties(ctx, limit)
	if err != nil {
		return nil, Enrichment{}, err
	}

	withMedia := c.AttachMedia(ctx, props)
	enrichment := c.EnrichCoordinates(ctx, withMedia)
	logEnrichment(enrichment)
	return withMedia, enrichment, nil
}

// GetPropertyByID returns the active sale listing with the given public
// ListingId, or nil when the feed has none.
func (c *Client) GetPropertyByID(ctx context.Context, id string, includeMedia bool) (*PropertyWithMedia, error) {
	id, err := selectorValue("id", id)
	if err != nil {
		return nil, err
	}

	crit := FilterCriteria{
		Location:           &LocationPredicate{Field: "ListingId", Value: id, Match: MatchEquals},
		AllowedPostalCodes: c.cfg.AllowedPostalCodes,
	}
	env, err := get[Property](ctx, c, resourceProperty,
		c.resourceURL(resourceProperty, 1, BuildPropertyFilter(crit)))
	if err != nil {
		return nil, fmt.Errorf("fetching property %s: %w", id, err)
	}
	if len(env.Value) == 0 {
		return nil, nil
	}

	props := env.Value[:1]
	if includeMedia {
		return &c.AttachMedia(ctx, props)[0], nil
	}
	return &PropertyWithMedia{Property: props[0]}, nil
}

// SearchByZipCode returns listings in the five-digit ZIP code.
func (c *Client) SearchByZipCode(ctx context.Context, zip string, includeMedia bool) (*Envelope[PropertyWithMedia], error) {
	return c.Search(ctx, ByZip{Zip: zip}, Filters{}, includeMedia)
}

// SearchByCity returns listings whose city contains city.
func (c *Client) SearchByCity(ctx context.Context, city string, includeMedia bool) (*Envelope[PropertyWithMedia], error) {
	return c.Search(ctx, ByCity{City: city}, Filters{}, includeMedia)
}

// SearchByCounty returns listings whose county contains county.
func (c *Client) SearchByCounty(ctx context.Context, county string, includeMedia bool) (*Envelope[PropertyWithMedia], error) {
	return c.Search(ctx, ByCounty{County: county}, Filters{}, includeMedia)
}

// SearchByStreetName returns listings whose street name contains street.
func (c *Client) SearchByStreetName(ctx context.Context, street string, includeMedia bool) (*Envelope[PropertyWithMedia], error) {
	return c.Search(ctx, ByStreet{Street: street}, Filters{}, includeMedia)
}

// SearchByAddress returns listings at address (radiusMiles == 0) or
// within radiusMiles of it, measured by great-circle distance.
func (c *Client) SearchByAddress(ctx context.Context, address string, radiusMiles float64, f Filters, includeMedia bool) (*Envelope[PropertyWithMedia], error) {
	return c.Search(ctx, ByAddress{Address: address, RadiusMiles: radiusMiles}, f, includeMedia)
}

// Search runs q, applies f in memory, then attaches media when asked.
// When filters remove listings, Count is the filtered length.
func (c *Client) Search(ctx context.Context, q Query, f Filters, includeMedia bool) (*Envelope[PropertyWithMedia], error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	switch q := q.(type) {
	case nil:
		return c.searchAll(ctx, All{}, f, includeMedia)
	case All:
		return c.searchAll(ctx, q, f, includeMedia)
	case ByID:
		return c.searchByID(ctx, q, f, includeMedia)
	case ByZip:
		zip, err := normalizeZip(q.Zip)
		if err != nil {
			return nil, err
		}
		return c.searchLocation(ctx, LocationPredicate{Field: "PostalCode", Value: zip, Match: MatchEquals}, f, includeMedia)
	case ByCity:
		v, err := selectorValue("city", q.City)
		if err != nil {
			return nil, err
		}
		return c.searchLocation(ctx, LocationPredicate{Field: "City", Value: v, Match: MatchContains}, f, includeMedia)
	case ByCounty:
		v, err := selectorValue("county", q.County)
		if err != nil {
			return nil, err
		}
		return c.searchLocation(ctx, LocationPredicate{Field: "CountyOrParish", Value: v, Match: MatchContains}, f, includeMedia)
	case ByStreet:
		v, err := selectorValue("streetName", q.Street)
		if err != nil {
			return nil, err
		}
		return c.searchLocation(ctx, LocationPredicate{Field: "StreetName", Value: v, Match: MatchContains}, f, includeMedia)
	case ByAddress:
		return c.searchAddress(ctx, q, f, includeMedia)
	default:
		return nil, invalid("query", fmt.Sprintf("unsupported query type %T", q))
	}
}

func (c *Client) searchAll(ctx context.Context, q All, f Filters, includeMedia bool) (*Envelope[PropertyWithMedia], error) {
	limit := q.Limit
	if limit == 0 && c.cfg.LimitedMode {
		limit = c.cfg.LimitedPageSize
	}

	props, err := c.GetAllProperties(ctx, limit)
	if err != nil {
		return nil, err
	}
	env := c.finish(ctx, "", nil, props, f, includeMedia)
	if includeMedia {
		logEnrichment(c.EnrichCoordinates(ctx, env.Value))
	}
	return env, nil
}

// logEnrichment summarizes a geocoding pass. Failures are reported at
// warn level; the listings are still returned.
func logEnrichment(e Enrichment) {
	attrs := []any{
		"had_coordinates", e.Count(EnrichHadCoordinates),
		"geocoded", e.Count(EnrichGeocoded),
		"failed", e.Count(EnrichFailed),
		"no_geocoder", e.Count(EnrichNoGeocoder),
	}
	if e.Count(EnrichFailed) > 0 {
		slog.Warn("coordinate enrichment incomplete", attrs...)
		return
	}
	slog.Debug("coordinate enrichment", attrs...)
}

func (c *Client) searchByID(ctx context.Context, q ByID, f Filters, includeMedia bool) (*Envelope[PropertyWithMedia], error) {
	p, err := c.GetPropertyByID(ctx, q.ID, includeMedia)
	if err != nil {
		return nil, err
	}

	value := []PropertyWithMedia{}
	if p != nil && f.Match(p.Property) {
		value = append(value, *p)
	}
	n := len(value)
	return &Envelope[PropertyWithMedia]{Count: &n, Value: value}, nil
}

func (c *Client) searchLocation(ctx context.Context, loc LocationPredicate, f Filters, includeMedia bool) (*Envelope[PropertyWithMedia], error) {
	return c.searchFiltered(ctx, FilterCriteria{Location: &loc}, f, nil, includeMedia)
}

// searchAddress matches the street line exactly (case-insensitive) for
// a zero radius. Otherwise it geocodes the address, asks the feed for a
// bounding box and keeps listings within the haversine radius.
func (c *Client) searchAddress(ctx context.Context, q ByAddress, f Filters, includeMedia bool) (*Envelope[PropertyWithMedia], error) {
	address, err := selectorValue("address", q.Address)
	if err != nil {
		return nil, err
	}
	radius := q.RadiusMiles
	if radius < 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		return nil, invalid("radius", "must be a non-negative number of miles")
	}

	if radius == 0 {
		street, _, _ := strings.Cut(address, ",")
		street = strings.TrimSpace(street)
		if street == "" {
			return nil, invalid("address", "must start with a street line")
		}
		return c.searchLocation(ctx, LocationPredicate{
			Field: "UnparsedAddress",
			Value: street,
			Match: MatchEqualsFold,
		}, f, includeMedia)
	}

	if c.geocoder == nil {
		return nil, errors.New("radius search requires a geocoder")
	}
	center, err := c.geocoder.Geocode(ctx, address)
	if errors.Is(err, geocode.ErrNoMatch) {
		return nil, invalid("address", "could not be located")
	}
	if err != nil {
		return nil, fmt.Errorf("geocoding search address: %w", err)
	}

	box := geocode.BoundingBox(center, radius)
	within := func(p Property) bool {
		pt, ok := p.Coordinates()
		return ok && geocode.DistanceMiles(center, pt) <= radius
	}
	return c.searchFiltered(ctx, FilterCriteria{Box: &box}, f, within, includeMedia)
}

// searchFiltered fetches properties matching crit, capped at one
// limited page in limited mode, and narrows them with f and keep.
func (c *Client) searchFiltered(ctx context.Context, crit FilterCriteria, f Filters, keep func(Property) bool, includeMedia bool) (*Envelope[PropertyWithMedia], error) {
	crit.AllowedPostalCodes = c.cfg.AllowedPostalCodes
	filter := BuildPropertyFilter(crit)

	var env *Envelope[Property]
	var err error
	if c.cfg.LimitedMode {
		env, err = get[Property](ctx, c, resourceProperty,
			c.resourceURL(resourceProperty, c.cfg.LimitedPageSize, filter))
	} else {
		env, err = getAll[Property](ctx, c, resourceProperty,
			c.resourceURL(resourceProperty, c.cfg.PageSize, filter), 0)
	}
	if err != nil {
		return nil, fmt.Errorf("searching properties: %w", err)
	}

	props := env.Value
	if keep != nil {
		props = filterProperties(props, keep)
	}
	count := env.Count
	if keep != nil {
		n := len(props)
		count = &n
	}
	return c.finish(ctx, env.Context, count, props, f, includeMedia), nil
}

// finish applies in-memory filters and the optional media join.
func (c *Client) finish(ctx context.Context, odataContext string, count *int, props []Property, f Filters, includeMedia bool) *Envelope[PropertyWithMedia] {
	if !f.IsZero() {
		props = filterProperties(props, f.Match)
		n := len(props)
		count = &n
	}
	if count == nil {
		n := len(props)
		count = &n
	}

	var value []PropertyWithMedia
	if includeMedia {
		value = c.AttachMedia(ctx, props)
	} else {
		value = withoutMedia(props)
	}
	return &Envelope[PropertyWithMedia]{Context: odataContext, Count: count, Value: value}
}

func filterProperties(props []Property, keep func(Property) bool) []Property {
	out := make([]Property, 0, len(props))
	for _, p := range props {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}
