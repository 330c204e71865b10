package paragon

import (
	"fmt"
	"math"
	"strings"
)

// Query selects the properties a search returns. It is one of All,
// ByID, ByZip, ByCity, ByCounty, ByStreet or ByAddress.
type Query interface {
	isQuery()
}

// All selects the whole feed, or its first Limit properties when Limit > 0.
type All struct{ Limit int }

// ByID selects one listing by its public ListingId.
type ByID struct{ ID string }

// ByZip selects listings whose PostalCode equals Zip.
type ByZip struct{ Zip string }

// ByCity selects listings whose City contains City.
type ByCity struct{ City string }

// ByCounty selects listings whose CountyOrParish contains County.
type ByCounty struct{ County string }

// ByStreet selects listings whose StreetName contains Street.
type ByStreet struct{ Street string }

// ByAddress selects listings at Address (RadiusMiles == 0) or within
// RadiusMiles of its geocoded location.
type ByAddress struct {
	Address     string
	RadiusMiles float64
}

func (All) isQuery()       {}
func (ByID) isQuery()      {}
func (ByZip) isQuery()     {}
func (ByCity) isQuery()    {}
func (ByCounty) isQuery()  {}
func (ByStreet) isQuery()  {}
func (ByAddress) isQuery() {}

const maxSelectorLength = 200

// selectorValue trims a location selector and rejects empty or
// oversized values.
func selectorValue(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", invalid(field, "is required")
	}
	if len(v) > maxSelectorLength {
		return "", invalid(field, fmt.Sprintf("must be at most %d characters", maxSelectorLength))
	}
	return v, nil
}

// normalizeZip accepts a five-digit ZIP or ZIP+4 and returns the five digits.
func normalizeZip(zip string) (string, error) {
	z, err := selectorValue("zipCode", zip)
	if err != nil {
		return "", err
	}
	base, plus4, hasPlus4 := strings.Cut(z, "-")
	if !allDigits(base, 5) || (hasPlus4 && !allDigits(plus4, 4)) {
		return "", invalid("zipCode", "must be a 5-digit ZIP code")
	}
	return base, nil
}

func allDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Filters are optional predicates applied to fetched properties in
// memory, for criteria the feed cannot express.
type Filters struct {
	MinPrice      *float64
	MaxPrice      *float64
	MinRooms      *int
	MaxRooms      *int
	PropertyTypes []string
}

// IsZero reports whether no filter is set.
func (f Filters) IsZero() bool {
	return f.MinPrice == nil && f.MaxPrice == nil && f.MinRooms == nil && f.MaxRooms == nil && len(f.PropertyTypes) == 0
}

// Validate rejects negative bounds and inverted ranges.
func (f Filters) Validate() error {
	for _, p := range []struct {
		name string
		v    *float64
	}{{"minPrice", f.MinPrice}, {"maxPrice", f.MaxPrice}} {
		if p.v != nil && (*p.v < 0 || math.IsNaN(*p.v) || math.IsInf(*p.v, 0)) {
			return invalid(p.name, "must be a non-negative number")
		}
	}
	if f.MinPrice != nil && f.MaxPrice != nil && *f.MinPrice > *f.MaxPrice {
		return invalid("minPrice", "must not exceed maxPrice")
	}
	if (f.MinRooms != nil && *f.MinRooms < 0) || (f.MaxRooms != nil && *f.MaxRooms < 0) {
		return invalid("rooms", "must be non-negative")
	}
	if f.MinRooms != nil && f.MaxRooms != nil && *f.MinRooms > *f.MaxRooms {
		return invalid("minRooms", "must not exceed maxRooms")
	}
	return nil
}

// Match reports whether p satisfies every set filter. A price bound
// excludes listings without a ListPrice.
func (f Filters) Match(p Property) bool {
	if f.MinPrice != nil || f.MaxPrice != nil {
		if p.ListPrice == nil {
			return false
		}
		if f.MinPrice != nil && *p.ListPrice < *f.MinPrice {
			return false
		}
		if f.MaxPrice != nil && *p.ListPrice > *f.MaxPrice {
			return false
		}
	}

	if f.MinRooms != nil || f.MaxRooms != nil {
		rooms := p.RoomCount()
		if f.MinRooms != nil && rooms < *f.MinRooms {
			return false
		}
		if f.MaxRooms != nil && rooms > *f.MaxRooms {
			return false
		}
	}

	if len(f.PropertyTypes) > 0 {
		found := false
		for _, t := range f.PropertyTypes {
			if strings.EqualFold(strings.TrimSpace(t), p.PropertyType) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}
