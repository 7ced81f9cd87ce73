package geo

import "math"

// GeometryKind tags the supported geometry variants.
type GeometryKind int

const (
	KindNone GeometryKind = iota
	KindPoint
	KindPolygon
	KindMultiPolygon
)

func (k GeometryKind) String() string {
	switch k {
	case KindPoint:
		return "Point"
	case KindPolygon:
		return "Polygon"
	case KindMultiPolygon:
		return "MultiPolygon"
	default:
		return "None"
	}
}

// Geometry is a tagged variant over Point, Polygon and MultiPolygon.
// Only outer boundaries are kept: Rings holds the outer ring of each
// member polygon (one entry for Polygon, one per member for MultiPolygon).
// Inner rings (holes) are dropped at the decode boundary and never
// consulted.
type Geometry struct {
	Kind  GeometryKind
	Point Coordinate
	Rings [][]Coordinate
}

// PointGeometry builds a Point geometry.
func PointGeometry(c Coordinate) Geometry {
	return Geometry{Kind: KindPoint, Point: c}
}

// PolygonGeometry builds a Polygon geometry from its outer ring.
func PolygonGeometry(ring []Coordinate) Geometry {
	return Geometry{Kind: KindPolygon, Rings: [][]Coordinate{ring}}
}

// Contains reports whether pt falls inside the geometry using the even-odd
// ray-casting rule against each outer ring. Points and degenerate or empty
// geometry never contain anything; there is no error path, absence of
// geometry is an ordinary "not contained".
func (g Geometry) Contains(pt Coordinate) bool {
	switch g.Kind {
	case KindPolygon, KindMultiPolygon:
		for _, ring := range g.Rings {
			if pointInRing(pt, ring) {
				return true
			}
		}
	}
	return false
}

// pointInRing runs an even-odd ray cast against one ring. Rings with fewer
// than three vertices are degenerate and contain nothing. Self-intersecting
// rings are not validated; behavior for them is undefined.
func pointInRing(pt Coordinate, ring []Coordinate) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x, y := pt.Lon, pt.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lon, ring[i].Lat
		xj, yj := ring[j].Lon, ring[j].Lat
		if ((yi > y) != (yj > y)) && (x < (xj-xi)*(y-yi)/(yj-yi+1e-12)+xi) {
			inside = !inside
		}
	}
	return inside
}

// Centroid returns the point itself for Point geometry and the unweighted
// vertex mean of the first non-empty outer ring otherwise. This is a known
// approximation, not the area-weighted centroid; it is what the dashboard
// pins markers to and is deliberately cheap. Returns nil for unrecognized
// or degenerate geometry.
func (g Geometry) Centroid() *Coordinate {
	switch g.Kind {
	case KindPoint:
		c := g.Point
		return &c
	case KindPolygon, KindMultiPolygon:
		for _, ring := range g.Rings {
			ring = openRing(ring)
			if len(ring) == 0 {
				continue
			}
			var lat, lon float64
			for _, c := range ring {
				lat += c.Lat
				lon += c.Lon
			}
			n := float64(len(ring))
			return &Coordinate{Lat: lat / n, Lon: lon / n}
		}
	}
	return nil
}

// AreaM2 returns the planar-projected area in square meters: each outer
// ring is projected onto a local tangent plane (equirectangular, referenced
// to the latitude of the ring's first vertex) and the shoelace formula is
// applied, summing over member polygons. The approximation is only valid
// for small, sub-kilometer polygons, which is the scale of campus lots.
// Unsupported geometry yields 0.
func (g Geometry) AreaM2() float64 {
	if g.Kind != KindPolygon && g.Kind != KindMultiPolygon {
		return 0
	}
	var total float64
	for _, ring := range g.Rings {
		total += ringAreaM2(ring)
	}
	return total
}

func ringAreaM2(ring []Coordinate) float64 {
	ring = openRing(ring)
	n := len(ring)
	if n < 3 {
		return 0
	}
	lat0 := ring[0].Lat * math.Pi / 180
	lon0 := ring[0].Lon
	cosLat := math.Cos(lat0)

	project := func(c Coordinate) (x, y float64) {
		x = (c.Lon - lon0) * math.Pi / 180 * cosLat * EarthRadiusMeters
		y = (c.Lat - ring[0].Lat) * math.Pi / 180 * EarthRadiusMeters
		return
	}

	var sum float64
	for i := 0; i < n; i++ {
		x1, y1 := project(ring[i])
		x2, y2 := project(ring[(i+1)%n])
		sum += x1*y2 - x2*y1
	}
	return math.Abs(sum) / 2
}

// IntersectsBounds reports whether any vertex of the geometry falls inside
// the box. It is a coarse filter for rendering, not an exact intersection
// test: a polygon straddling the box with no vertex inside is missed.
func (g Geometry) IntersectsBounds(bb BoundingBox) bool {
	switch g.Kind {
	case KindPoint:
		return bb.Contains(g.Point)
	case KindPolygon, KindMultiPolygon:
		for _, ring := range g.Rings {
			for _, c := range ring {
				if bb.Contains(c) {
					return true
				}
			}
		}
	}
	return false
}

// Bounds returns the bounding box over all vertices, or false for geometry
// with no vertices.
func (g Geometry) Bounds() (BoundingBox, bool) {
	switch g.Kind {
	case KindPoint:
		return BoundingBox{
			MinLat: g.Point.Lat, MaxLat: g.Point.Lat,
			MinLon: g.Point.Lon, MaxLon: g.Point.Lon,
		}, true
	case KindPolygon, KindMultiPolygon:
		var bb BoundingBox
		found := false
		for _, ring := range g.Rings {
			rb, ok := RingBounds(ring)
			if !ok {
				continue
			}
			if !found {
				bb = rb
				found = true
				continue
			}
			bb.Extend(Coordinate{Lat: rb.MinLat, Lon: rb.MinLon})
			bb.Extend(Coordinate{Lat: rb.MaxLat, Lon: rb.MaxLon})
		}
		return bb, found
	}
	return BoundingBox{}, false
}

// openRing strips the closing vertex of a GeoJSON-style closed ring so the
// duplicate point is not counted twice by centroid and area math.
func openRing(ring []Coordinate) []Coordinate {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		return ring[:len(ring)-1]
	}
	return ring
}
