package rank

import (
	"testing"

	"lotwatch/internal/domain"
	"lotwatch/internal/geo"
)

func lotAt(id string, lat, lon float64) domain.LotSummary {
	return domain.LotSummary{ID: id, Centroid: &geo.Coordinate{Lat: lat, Lon: lon}}
}

func ids(lots []domain.LotSummary) []string {
	out := make([]string, len(lots))
	for i, lot := range lots {
		out[i] = lot.ID
	}
	return out
}

func TestSortByDistance(t *testing.T) {
	origin := geo.Coordinate{Lat: 0, Lon: 0}
	lots := []domain.LotSummary{
		lotAt("far", 0, 3),
		lotAt("near", 0, 1),
		lotAt("mid", 0, 2),
	}

	SortByDistance(lots, origin)

	want := []string{"near", "mid", "far"}
	got := ids(lots)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestSortByDistanceNilCentroidLast(t *testing.T) {
	origin := geo.Coordinate{Lat: 0, Lon: 0}
	lots := []domain.LotSummary{
		{ID: "no-centroid-a"},
		lotAt("near", 0, 1),
		{ID: "no-centroid-b"},
	}

	SortByDistance(lots, origin)

	got := ids(lots)
	if got[0] != "near" {
		t.Errorf("order = %v, want near first", got)
	}
	// Stable sort keeps relative order among the centroid-less lots.
	if got[1] != "no-centroid-a" || got[2] != "no-centroid-b" {
		t.Errorf("order = %v, want centroid-less lots last in input order", got)
	}
}

func TestFilterRadius(t *testing.T) {
	origin := geo.Coordinate{Lat: 0, Lon: 0}
	lots := []domain.LotSummary{
		lotAt("near", 0, 0.001),  // ~111m
		lotAt("far", 0, 0.01),    // ~1112m
		{ID: "no-centroid"},
	}
	SortByDistance(lots, origin)

	got := FilterRadius(lots, origin, 500)
	if len(got) != 1 || got[0].ID != "near" {
		t.Errorf("filtered = %v, want [near]", ids(got))
	}
}

func TestFilterRadiusKeepsAllWithin(t *testing.T) {
	origin := geo.Coordinate{Lat: 0, Lon: 0}
	lots := []domain.LotSummary{
		lotAt("a", 0, 0.001),
		lotAt("b", 0.001, 0),
	}
	got := FilterRadius(lots, origin, 10000)
	if len(got) != 2 {
		t.Errorf("filtered to %v, want both kept", ids(got))
	}
}
