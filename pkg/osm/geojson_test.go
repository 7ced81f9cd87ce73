package osm

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"lotwatch/internal/geo"
)

const lotsFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {
        "id": "way/123",
        "tags": {"amenity": "parking", "name": "West Lot", "permit": "C"}
      },
      "geometry": {
        "type": "Polygon",
        "coordinates": [[
          [-83.01, 40.0],
          [-83.009, 40.0],
          [-83.009, 40.001],
          [-83.01, 40.001],
          [-83.01, 40.0]
        ]]
      }
    },
    {
      "type": "Feature",
      "properties": {
        "id": "way/456",
        "tags": {"amenity": "parking", "ref": "Lot 9"}
      },
      "geometry": {
        "type": "MultiPolygon",
        "coordinates": [
          [[[-83.02, 40.0], [-83.019, 40.0], [-83.019, 40.001], [-83.02, 40.0]]],
          [[[-83.03, 40.0], [-83.029, 40.0], [-83.029, 40.001], [-83.03, 40.0]]]
        ]
      }
    },
    {
      "type": "Feature",
      "properties": {"id": "way/789", "tags": {"amenity": "parking"}},
      "geometry": {"type": "GeometryCollection"}
    }
  ]
}`

const spacesFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"id": "node/42", "tags": {"amenity": "parking_space"}},
      "geometry": {"type": "Point", "coordinates": [-83.0095, 40.0005]}
    }
  ]
}`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadLots(t *testing.T) {
	lots, err := LoadLots(writeFixture(t, "lots.geojson", lotsFixture))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(lots) != 3 {
		t.Fatalf("loaded %d lots, want 3", len(lots))
	}

	west := lots[0]
	if west.ID != "way/123" || west.Name != "West Lot" {
		t.Errorf("lot = %+v", west)
	}
	if west.Geometry.Kind != geo.KindPolygon {
		t.Errorf("geometry kind = %v, want Polygon", west.Geometry.Kind)
	}
	if west.Centroid == nil {
		t.Fatal("expected derived centroid")
	}
	if math.Abs(west.Centroid.Lat-40.0005) > 1e-9 || math.Abs(west.Centroid.Lon-(-83.0095)) > 1e-9 {
		t.Errorf("centroid = %v", *west.Centroid)
	}
	if west.AreaM2 <= 0 {
		t.Errorf("area = %f, want positive", west.AreaM2)
	}
	if west.Tags["permit"] != "C" {
		t.Errorf("tags = %v", west.Tags)
	}

	// Name falls back to ref, and MultiPolygon keeps one outer ring per member.
	multi := lots[1]
	if multi.Name != "Lot 9" {
		t.Errorf("name = %q, want ref fallback", multi.Name)
	}
	if multi.Geometry.Kind != geo.KindMultiPolygon || len(multi.Geometry.Rings) != 2 {
		t.Errorf("geometry = %+v", multi.Geometry)
	}

	// Unrecognized geometry loads as an empty feature, never an error.
	empty := lots[2]
	if empty.Geometry.Kind != geo.KindNone || empty.Centroid != nil || empty.AreaM2 != 0 {
		t.Errorf("unrecognized geometry should decode empty, got %+v", empty)
	}
}

func TestLoadSpaces(t *testing.T) {
	spaces, err := LoadSpaces(writeFixture(t, "spaces.geojson", spacesFixture))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(spaces) != 1 {
		t.Fatalf("loaded %d spaces, want 1", len(spaces))
	}

	sp := spaces[0]
	if sp.ID != "node/42" {
		t.Errorf("id = %q", sp.ID)
	}
	// GeoJSON order is [lon, lat]; the decode boundary flips it.
	if sp.Centroid == nil || sp.Centroid.Lat != 40.0005 || sp.Centroid.Lon != -83.0095 {
		t.Errorf("centroid = %v, want flipped coordinate order", sp.Centroid)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := LoadLots(filepath.Join(t.TempDir(), "absent.geojson")); err == nil {
		t.Error("missing file should error")
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeFixture(t, "bad.geojson", "{not json")
	if _, err := LoadLots(path); err == nil {
		t.Error("malformed file should error")
	}
}
