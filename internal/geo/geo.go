package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusMeters is the fixed radius used for all distance and area math.
const EarthRadiusMeters = 6371000.0

// Coordinate is a point on the globe in degrees. Every external boundary
// (GeoJSON [lon,lat] arrays, "lat,lon" query strings) converts into this
// type immediately; anonymous float pairs are never passed around.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ParseLatLon parses a display-order "lat,lon" pair.
func ParseLatLon(s string) (Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return Coordinate{}, fmt.Errorf("expected lat,lon but got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid latitude: %w", err)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return Coordinate{}, fmt.Errorf("invalid longitude: %w", err)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Coordinate{}, fmt.Errorf("coordinate out of range: %s", s)
	}
	return Coordinate{Lat: lat, Lon: lon}, nil
}

// DistanceMeters returns the haversine distance between two coordinates.
func DistanceMeters(a, b Coordinate) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// BoundingBox represents a geographic rectangle.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// Contains checks if a point is within the bounding box.
func (bb *BoundingBox) Contains(c Coordinate) bool {
	return c.Lat >= bb.MinLat && c.Lat <= bb.MaxLat &&
		c.Lon >= bb.MinLon && c.Lon <= bb.MaxLon
}

// Extend grows the box to include c.
func (bb *BoundingBox) Extend(c Coordinate) {
	if c.Lat < bb.MinLat {
		bb.MinLat = c.Lat
	}
	if c.Lat > bb.MaxLat {
		bb.MaxLat = c.Lat
	}
	if c.Lon < bb.MinLon {
		bb.MinLon = c.Lon
	}
	if c.Lon > bb.MaxLon {
		bb.MaxLon = c.Lon
	}
}

// RingBounds returns the bounding box of a vertex ring, or false for an
// empty ring.
func RingBounds(ring []Coordinate) (BoundingBox, bool) {
	if len(ring) == 0 {
		return BoundingBox{}, false
	}
	bb := BoundingBox{
		MinLat: ring[0].Lat, MaxLat: ring[0].Lat,
		MinLon: ring[0].Lon, MaxLon: ring[0].Lon,
	}
	for _, c := range ring[1:] {
		bb.Extend(c)
	}
	return bb, true
}
