// Package geocode resolves street addresses to coordinates and provides
// the great-circle helpers used for radius searches.
package geocode

import "math"

// EarthRadiusMiles is the mean Earth radius used by DistanceMiles.
const EarthRadiusMiles = 3958.8

// Point is a WGS84 coordinate in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMiles returns the haversine great-circle distance between a and b.
func DistanceMiles(a, b Point) float64 {
	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLng := radians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusMiles * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Box is a latitude/longitude rectangle.
type Box struct {
	MinLat, MaxLat float64
	MinLng, MaxLng float64
}

// BoundingBox returns a rectangle that contains every point within
// radiusMiles of center. It over-covers, so callers still filter by
// DistanceMiles.
func BoundingBox(center Point, radiusMiles float64) Box {
	milesPerDegree := EarthRadiusMiles * math.Pi / 180
	dLat := radiusMiles / milesPerDegree

	b := Box{
		MinLat: math.Max(-90, center.Lat-dLat),
		MaxLat: math.Min(90, center.Lat+dLat),
		MinLng: -180,
		MaxLng: 180,
	}

	// Near the poles the longitude span degenerates; keep the full range.
	cos := math.Cos(radians(center.Lat))
	if cos > 1e-6 {
		dLng := radiusMiles / (milesPerDegree * cos)
		if dLng < 180 {
			b.MinLng = center.Lng - dLng
			b.MaxLng = center.Lng + dLng
		}
	}
	return b
}

// Contains reports whether p lies inside the box.
func (b Box) Contains(p Point) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
