package osm

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/serjvanilla/go-overpass"

	"lotwatch/internal/domain"
	"lotwatch/internal/geo"
)

// Provider fetches campus parking geometry from an Overpass endpoint when
// no local snapshot files are available. This hits a public API, so a
// narrow bbox and a one-shot fetch at startup are the expected usage.
type Provider struct {
	client *overpass.Client
	logger *slog.Logger
}

func NewProvider(endpoint string, timeout time.Duration, logger *slog.Logger) *Provider {
	httpClient := &http.Client{Timeout: timeout}
	client := overpass.NewWithSettings(endpoint, 1, httpClient)
	return &Provider{
		client: &client,
		logger: logger.With("component", "overpass_provider"),
	}
}

// FetchLots queries amenity=parking features inside bbox.
func (p *Provider) FetchLots(bbox geo.BoundingBox) ([]domain.LotFeature, error) {
	result, err := p.query(bbox, "parking")
	if err != nil {
		return nil, err
	}

	var lots []domain.LotFeature
	for _, f := range elementsToFeatures(result, "parking") {
		lots = append(lots, domain.LotFeature{
			ID:       f.id,
			Name:     lotName(f.tags),
			Tags:     f.tags,
			Geometry: f.geometry,
			Centroid: f.geometry.Centroid(),
			AreaM2:   f.geometry.AreaM2(),
		})
	}
	p.logger.Info("fetched lots from overpass", "count", len(lots))
	return lots, nil
}

// FetchSpaces queries amenity=parking_space features inside bbox.
func (p *Provider) FetchSpaces(bbox geo.BoundingBox) ([]domain.SpaceFeature, error) {
	result, err := p.query(bbox, "parking_space")
	if err != nil {
		return nil, err
	}

	var spaces []domain.SpaceFeature
	for _, f := range elementsToFeatures(result, "parking_space") {
		spaces = append(spaces, domain.SpaceFeature{
			ID:       f.id,
			Tags:     f.tags,
			Geometry: f.geometry,
			Centroid: f.geometry.Centroid(),
		})
	}
	p.logger.Info("fetched spaces from overpass", "count", len(spaces))
	return spaces, nil
}

func (p *Provider) query(bbox geo.BoundingBox, amenity string) (*overpass.Result, error) {
	bboxStr := fmt.Sprintf("%f,%f,%f,%f", bbox.MinLat, bbox.MinLon, bbox.MaxLat, bbox.MaxLon)
	q := fmt.Sprintf(`
[out:json][timeout:60];
(
  node["amenity"=%q](%s);
  way["amenity"=%q](%s);
);
out body;
>;
out skel qt;
`, amenity, bboxStr, amenity, bboxStr)

	result, err := p.client.Query(q)
	if err != nil {
		return nil, fmt.Errorf("overpass query failed: %w", err)
	}
	return &result, nil
}

type overpassFeature struct {
	id       string
	tags     map[string]string
	geometry geo.Geometry
}

// elementsToFeatures converts Overpass nodes and ways into features.
// Recursed way-member nodes come back untagged, so standalone node
// features are only those actually carrying the amenity tag. Way rings
// are closed the way the snapshot files are.
func elementsToFeatures(result *overpass.Result, amenity string) []overpassFeature {
	var out []overpassFeature

	for _, node := range result.Nodes {
		if node == nil || node.Tags["amenity"] != amenity {
			continue
		}
		out = append(out, overpassFeature{
			id:       fmt.Sprintf("node/%d", node.ID),
			tags:     node.Tags,
			geometry: geo.PointGeometry(geo.Coordinate{Lat: node.Lat, Lon: node.Lon}),
		})
	}

	for _, way := range result.Ways {
		if way == nil || way.Tags["amenity"] != amenity {
			continue
		}
		ring := make([]geo.Coordinate, 0, len(way.Nodes)+1)
		for _, n := range way.Nodes {
			if n == nil {
				continue
			}
			ring = append(ring, geo.Coordinate{Lat: n.Lat, Lon: n.Lon})
		}
		if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
			ring = append(ring, ring[0])
		}
		out = append(out, overpassFeature{
			id:       fmt.Sprintf("way/%d", way.ID),
			tags:     way.Tags,
			geometry: geo.PolygonGeometry(ring),
		})
	}

	return out
}
