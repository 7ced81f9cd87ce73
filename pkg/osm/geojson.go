// Package osm loads lot and space geometry, either from GeoJSON snapshot
// files or live from an Overpass endpoint. Feature identifiers follow the
// OSM convention "type/id" (e.g. "way/12345") and free-form tags ride
// along under properties.tags.
package osm

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"lotwatch/internal/domain"
	"lotwatch/internal/geo"
)

// FeatureCollection mirrors the GeoJSON snapshot files written by the
// fetch tooling.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
	BBox     []float64 `json:"bbox,omitempty"`
}

type Feature struct {
	Type       string            `json:"type"`
	Properties FeatureProperties `json:"properties"`
	Geometry   json.RawMessage   `json:"geometry"`
}

type FeatureProperties struct {
	ID   string            `json:"id"`
	Tags map[string]string `json:"tags"`
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// LoadLots reads a lot FeatureCollection from path and derives centroid
// and area for each feature. Features whose geometry cannot be decoded
// still load, with empty geometry; malformed geometry is a normal "no
// containment, no centroid, zero area" case, never an error.
func LoadLots(path string) ([]domain.LotFeature, error) {
	fc, err := loadCollection(path)
	if err != nil {
		return nil, err
	}

	lots := make([]domain.LotFeature, 0, len(fc.Features))
	for _, f := range fc.Features {
		g := decodeGeometry(f.Geometry)
		lots = append(lots, domain.LotFeature{
			ID:       f.Properties.ID,
			Name:     lotName(f.Properties.Tags),
			Tags:     f.Properties.Tags,
			Geometry: g,
			Centroid: g.Centroid(),
			AreaM2:   g.AreaM2(),
		})
	}
	return lots, nil
}

// LoadSpaces reads a space FeatureCollection from path.
func LoadSpaces(path string) ([]domain.SpaceFeature, error) {
	fc, err := loadCollection(path)
	if err != nil {
		return nil, err
	}

	spaces := make([]domain.SpaceFeature, 0, len(fc.Features))
	for _, f := range fc.Features {
		g := decodeGeometry(f.Geometry)
		spaces = append(spaces, domain.SpaceFeature{
			ID:       f.Properties.ID,
			Tags:     f.Properties.Tags,
			Geometry: g,
			Centroid: g.Centroid(),
		})
	}
	return spaces, nil
}

func loadCollection(path string) (*FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var fc FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &fc, nil
}

// decodeGeometry converts a raw GeoJSON geometry into the internal tagged
// variant, flipping [lon,lat] order at this boundary and dropping inner
// rings. Unrecognized kinds decode to the empty geometry.
func decodeGeometry(raw json.RawMessage) geo.Geometry {
	if len(raw) == 0 {
		return geo.Geometry{}
	}
	var rg rawGeometry
	if err := json.Unmarshal(raw, &rg); err != nil {
		return geo.Geometry{}
	}

	switch rg.Type {
	case "Point":
		var pos []float64
		if err := json.Unmarshal(rg.Coordinates, &pos); err != nil || len(pos) < 2 {
			return geo.Geometry{}
		}
		return geo.PointGeometry(geo.Coordinate{Lat: pos[1], Lon: pos[0]})

	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(rg.Coordinates, &rings); err != nil || len(rings) == 0 {
			return geo.Geometry{}
		}
		return geo.PolygonGeometry(convertRing(rings[0]))

	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(rg.Coordinates, &polys); err != nil || len(polys) == 0 {
			return geo.Geometry{}
		}
		outer := make([][]geo.Coordinate, 0, len(polys))
		for _, rings := range polys {
			if len(rings) == 0 {
				continue
			}
			outer = append(outer, convertRing(rings[0]))
		}
		return geo.Geometry{Kind: geo.KindMultiPolygon, Rings: outer}
	}
	return geo.Geometry{}
}

func convertRing(ring [][]float64) []geo.Coordinate {
	out := make([]geo.Coordinate, 0, len(ring))
	for _, pos := range ring {
		if len(pos) < 2 {
			continue
		}
		out = append(out, geo.Coordinate{Lat: pos[1], Lon: pos[0]})
	}
	return out
}

// lotName picks a display name from OSM tags, falling back through the
// usual candidates.
func lotName(tags map[string]string) string {
	for _, key := range []string{"name", "official_name", "ref"} {
		if v := strings.TrimSpace(tags[key]); v != "" {
			return v
		}
	}
	return ""
}
