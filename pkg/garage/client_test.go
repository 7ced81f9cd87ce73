package garage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func intp(v int) *int         { return &v }
func floatp(v float64) *float64 { return &v }

func TestNormalizeName(t *testing.T) {
	exceptions := []string{"Carmack", "Buckeye"}

	cases := []struct {
		in   string
		want string
	}{
		{"Lane Avenue", "Lane Avenue Garage"},
		{"Lane Avenue Garage", "Lane Avenue Garage"},
		{"Carmack 1", "Carmack 1"},
		{"Buckeye Lot", "Buckeye Lot"},
		{"  Ohio Union South  ", "Ohio Union South Garage"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeName(tc.in, exceptions); got != tc.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRowOccupiedCount(t *testing.T) {
	cases := []struct {
		name string
		row  Row
		want int
	}{
		{"per-spot rows win", Row{
			Capacity: 99,
			Occupied: intp(1),
			Spots:    []Spot{{Filled: true}, {Filled: false}, {Filled: true}},
		}, 2},
		{"absolute count", Row{Capacity: 50, Occupied: intp(12)}, 12},
		{"percentage via capacity", Row{Capacity: 200, OccupiedPct: floatp(25)}, 50},
		{"percentage rounds", Row{Capacity: 3, OccupiedPct: floatp(50)}, 2},
		{"nothing reported", Row{Capacity: 50}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.row.OccupiedCount(); got != tc.want {
				t.Errorf("OccupiedCount() = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestRowTotalSpots(t *testing.T) {
	withSpots := Row{Capacity: 99, Spots: []Spot{{}, {}, {}}}
	if got := withSpots.TotalSpots(); got != 3 {
		t.Errorf("TotalSpots() = %d, want per-spot count 3", got)
	}
	noSpots := Row{Capacity: 40}
	if got := noSpots.TotalSpots(); got != 40 {
		t.Errorf("TotalSpots() = %d, want capacity 40", got)
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("apikey"); got != "secret" {
			t.Errorf("apikey = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"lastUpdate": "8/28/2026 9:15 AM",
			"garages": [
				{"name": "Lane Avenue", "capacity": 100, "occupied": 60, "permits": ["A"]},
				{"name": "Ohio Union South", "capacity": 200, "occupiedPct": 50}
			]
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret")
	snap, err := c.Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantAt := time.Date(2026, 8, 28, 9, 15, 0, 0, time.UTC)
	if !snap.FetchedAt.Equal(wantAt) {
		t.Errorf("fetched at %v, want parsed lastUpdate %v", snap.FetchedAt, wantAt)
	}
	if len(snap.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(snap.Rows))
	}
	if snap.Rows[0].OccupiedCount() != 60 || snap.Rows[1].OccupiedCount() != 100 {
		t.Errorf("occupied counts = %d, %d", snap.Rows[0].OccupiedCount(), snap.Rows[1].OccupiedCount())
	}
}

func TestFetchAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "rate limited"}`))
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "").Fetch(context.Background()); err == nil {
		t.Error("API-level error should propagate")
	}
}

func TestFetchBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, "").Fetch(context.Background()); err == nil {
		t.Error("non-200 status should propagate")
	}
}
