package resolver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"lotwatch/internal/cache"
	"lotwatch/internal/domain"
	"lotwatch/internal/geo"
	"lotwatch/internal/store"
	"lotwatch/pkg/garage"
)

type fakeGarage struct {
	snap    garage.Snapshot
	err     error
	fetches int
}

func (f *fakeGarage) Fetch(ctx context.Context) (garage.Snapshot, error) {
	f.fetches++
	return f.snap, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func squareRing(minLat, minLon, size float64) []geo.Coordinate {
	return []geo.Coordinate{
		{Lat: minLat, Lon: minLon},
		{Lat: minLat, Lon: minLon + size},
		{Lat: minLat + size, Lon: minLon + size},
		{Lat: minLat + size, Lon: minLon},
		{Lat: minLat, Lon: minLon},
	}
}

func testLot(id, name string, tags map[string]string, minLat, minLon float64) domain.LotFeature {
	g := geo.PolygonGeometry(squareRing(minLat, minLon, 1))
	return domain.LotFeature{
		ID:       id,
		Name:     name,
		Tags:     tags,
		Geometry: g,
		Centroid: g.Centroid(),
	}
}

func testSpace(id string, lat, lon float64) domain.SpaceFeature {
	return domain.SpaceFeature{
		ID:       id,
		Geometry: geo.PointGeometry(geo.Coordinate{Lat: lat, Lon: lon}),
		Centroid: &geo.Coordinate{Lat: lat, Lon: lon},
	}
}

func newResolver(t *testing.T, s *store.Store, src GarageSource, opts Options) *Resolver {
	t.Helper()
	return New(s, src, cache.NewTTL[garage.Snapshot](time.Minute), nil, opts, discardLogger())
}

func intp(v int) *int { return &v }

func TestExternalSourceWins(t *testing.T) {
	s := store.New()
	s.SetGeometry([]domain.LotFeature{
		testLot("way/1", "Lane Avenue Garage", nil, 0, 0),
	}, nil)

	src := &fakeGarage{snap: garage.Snapshot{
		FetchedAt: time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
		Rows: []garage.Row{
			{Name: "Lane Avenue", Capacity: 50, Occupied: intp(10)},
		},
	}}

	r := newResolver(t, s, src, Options{})
	summary, ok := r.Summary(context.Background(), "way/1")
	if !ok {
		t.Fatal("lot should resolve")
	}

	want := domain.Counts{Total: 50, Occupied: 10, Open: 40, Unknown: 0}
	if summary.Counts != want {
		t.Errorf("counts = %+v, want %+v", summary.Counts, want)
	}
	if !summary.Counts.Valid() {
		t.Error("counts must satisfy total = occupied + open + unknown")
	}
	if summary.Metadata[domain.MetaCountsSource] != string(domain.SourceExternal) {
		t.Errorf("counts source = %q, want external", summary.Metadata[domain.MetaCountsSource])
	}
	if summary.Capacity == nil || summary.Capacity.Source != domain.SourceExternal {
		t.Errorf("capacity = %+v, want external snapshot", summary.Capacity)
	}
	if !summary.Capacity.ObservedAt.Equal(src.snap.FetchedAt) {
		t.Errorf("capacity observed at %v, want snapshot time", summary.Capacity.ObservedAt)
	}
}

func TestExternalCountsClamped(t *testing.T) {
	s := store.New()
	s.SetGeometry([]domain.LotFeature{
		testLot("way/1", "Lane Avenue Garage", nil, 0, 0),
	}, nil)

	cases := []struct {
		name     string
		occupied int
		want     domain.Counts
	}{
		{"over capacity", 80, domain.Counts{Total: 50, Occupied: 50, Open: 0}},
		{"negative", -5, domain.Counts{Total: 50, Occupied: 0, Open: 50}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := &fakeGarage{snap: garage.Snapshot{Rows: []garage.Row{
				{Name: "Lane Avenue", Capacity: 50, Occupied: intp(tc.occupied)},
			}}}
			r := newResolver(t, s, src, Options{})
			summary, _ := r.Summary(context.Background(), "way/1")
			if summary.Counts != tc.want {
				t.Errorf("counts = %+v, want %+v", summary.Counts, tc.want)
			}
			if !summary.Counts.Valid() {
				t.Error("clamped counts must stay internally consistent")
			}
		})
	}
}

func TestProtectedLotUsesSeed(t *testing.T) {
	s := store.New()
	s.SetGeometry(
		[]domain.LotFeature{testLot("way/1", "Lane Avenue Garage", nil, 0, 0)},
		[]domain.SpaceFeature{
			testSpace("way/10", 0.4, 0.4),
			testSpace("way/11", 0.6, 0.6),
		},
	)
	s.ReplaceOccupancy(&domain.OccupancyBatch{
		FetchedAt: time.Now(),
		Occupied:  map[string]bool{"way/10": true},
	})

	src := &fakeGarage{snap: garage.Snapshot{Rows: []garage.Row{
		{Name: "Lane Avenue", Capacity: 999, Occupied: intp(1)},
	}}}

	r := newResolver(t, s, src, Options{ProtectedLots: []string{"way/1"}})
	summary, _ := r.Summary(context.Background(), "way/1")

	want := domain.Counts{Total: 2, Occupied: 1, Open: 1}
	if summary.Counts != want {
		t.Errorf("counts = %+v, want seeded %+v", summary.Counts, want)
	}
	if summary.Metadata[domain.MetaCountsSource] != string(domain.SourceSeed) {
		t.Errorf("counts source = %q, want seed", summary.Metadata[domain.MetaCountsSource])
	}
}

func TestSeedFallbackWhenGarageUnavailable(t *testing.T) {
	s := store.New()
	s.SetGeometry(
		[]domain.LotFeature{testLot("way/1", "West Lot", nil, 0, 0)},
		[]domain.SpaceFeature{
			testSpace("way/10", 0.4, 0.4),
			testSpace("way/11", 0.6, 0.6),
			testSpace("way/12", 0.5, 0.5),
		},
	)
	s.ReplaceOccupancy(&domain.OccupancyBatch{
		FetchedAt: time.Now(),
		Occupied:  map[string]bool{"way/10": true, "way/12": true},
	})

	src := &fakeGarage{err: errors.New("connection refused")}
	r := newResolver(t, s, src, Options{})

	summary, _ := r.Summary(context.Background(), "way/1")
	want := domain.Counts{Total: 3, Occupied: 2, Open: 1}
	if summary.Counts != want {
		t.Errorf("counts = %+v, want %+v", summary.Counts, want)
	}
	if summary.Metadata[domain.MetaCountsSource] != string(domain.SourceSeed) {
		t.Errorf("counts source = %q, want seed on garage failure", summary.Metadata[domain.MetaCountsSource])
	}
}

func TestManualFallback(t *testing.T) {
	s := store.New()
	s.SetGeometry([]domain.LotFeature{testLot("way/1", "Gravel Lot", nil, 0, 0)}, nil)
	s.ReplaceStalls("way/1", []domain.ManualStall{
		{ID: "a", LotID: "way/1", Status: domain.StallOccupied},
		{ID: "b", LotID: "way/1", Status: domain.StallOpen},
		{ID: "c", LotID: "way/1", Status: domain.StallUnknown},
	})

	r := newResolver(t, s, nil, Options{})
	summary, _ := r.Summary(context.Background(), "way/1")

	want := domain.Counts{Total: 3, Occupied: 1, Open: 1, Unknown: 1}
	if summary.Counts != want {
		t.Errorf("counts = %+v, want %+v", summary.Counts, want)
	}
	if !summary.Counts.Valid() {
		t.Error("manual counts must balance")
	}
	if summary.Metadata[domain.MetaCountsSource] != string(domain.SourceManual) {
		t.Errorf("counts source = %q, want manual", summary.Metadata[domain.MetaCountsSource])
	}
	if summary.Capacity == nil || summary.Capacity.Source != domain.SourceManual {
		t.Errorf("capacity = %+v, want manual snapshot", summary.Capacity)
	}
}

func TestNothingKnownResolvesToZeros(t *testing.T) {
	s := store.New()
	s.SetGeometry([]domain.LotFeature{testLot("way/1", "Empty Lot", nil, 0, 0)}, nil)

	r := newResolver(t, s, nil, Options{})
	summary, ok := r.Summary(context.Background(), "way/1")
	if !ok {
		t.Fatal("known lot must always resolve")
	}
	if summary.Counts != (domain.Counts{}) {
		t.Errorf("counts = %+v, want zeros", summary.Counts)
	}
	if summary.Metadata[domain.MetaCountsSource] != string(domain.SourceSeed) {
		t.Errorf("counts source = %q, want seed attribution", summary.Metadata[domain.MetaCountsSource])
	}
}

func TestSummaryUnknownLot(t *testing.T) {
	r := newResolver(t, store.New(), nil, Options{})
	if _, ok := r.Summary(context.Background(), "way/404"); ok {
		t.Error("unknown lot must report not found")
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	s := store.New()
	s.SetGeometry(
		[]domain.LotFeature{testLot("way/1", "West Lot", map[string]string{"permit": "C"}, 0, 0)},
		[]domain.SpaceFeature{testSpace("way/10", 0.5, 0.5)},
	)
	s.ReplaceOccupancy(&domain.OccupancyBatch{
		FetchedAt: time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC),
		Occupied:  map[string]bool{"way/10": true},
	})

	r := newResolver(t, s, nil, Options{})
	first, _ := r.Summary(context.Background(), "way/1")
	second, _ := r.Summary(context.Background(), "way/1")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("same inputs resolved differently:\n%+v\n%+v", first, second)
	}
}

func TestPermitsMergedAcrossSources(t *testing.T) {
	s := store.New()
	s.SetGeometry([]domain.LotFeature{
		testLot("way/1", "Lane Avenue Garage", map[string]string{"permit": "C;B"}, 0, 0),
	}, nil)
	s.ReplaceStalls("way/1", []domain.ManualStall{
		{ID: "a", LotID: "way/1", Permits: []string{"D", "C"}, Status: domain.StallOpen},
	})

	src := &fakeGarage{snap: garage.Snapshot{Rows: []garage.Row{
		{Name: "Lane Avenue", Capacity: 10, Occupied: intp(2), Permits: []string{"A", "C"}},
	}}}

	r := newResolver(t, s, src, Options{})
	summary, _ := r.Summary(context.Background(), "way/1")

	want := []string{"C", "B", "A", "D"}
	if !reflect.DeepEqual(summary.Permits, want) {
		t.Errorf("permits = %v, want union in first-seen order %v", summary.Permits, want)
	}
	if got := summary.Metadata[domain.MetaPermitsSource]; got != "seed,external,manual" {
		t.Errorf("permits source = %q, want all three contributors", got)
	}
}

func TestPricingPrecedence(t *testing.T) {
	s := store.New()
	s.SetGeometry([]domain.LotFeature{
		testLot("way/1", "Lane Avenue Garage", map[string]string{"charge": "$2/hr", "fee": "yes"}, 0, 0),
	}, nil)

	src := &fakeGarage{snap: garage.Snapshot{Rows: []garage.Row{
		{Name: "Lane Avenue", Capacity: 10, Occupied: intp(2), Pricing: "$3 flat"},
	}}}

	r := newResolver(t, s, src, Options{})
	summary, _ := r.Summary(context.Background(), "way/1")
	if summary.Pricing != "$3 flat" {
		t.Errorf("pricing = %q, want external row to win", summary.Pricing)
	}
	if summary.Metadata[domain.MetaPricingSource] != string(domain.SourceExternal) {
		t.Errorf("pricing source = %q", summary.Metadata[domain.MetaPricingSource])
	}

	// Without an external row the OSM charge tag wins, then the fee tag.
	r2 := newResolver(t, s, nil, Options{})
	summary2, _ := r2.Summary(context.Background(), "way/1")
	if summary2.Pricing != "$2/hr" {
		t.Errorf("pricing = %q, want charge tag", summary2.Pricing)
	}
}

func TestListSummariesFilterAndRank(t *testing.T) {
	s := store.New()
	s.SetGeometry([]domain.LotFeature{
		testLot("way/far", "Far Lot", map[string]string{"permit": "C"}, 0, 10),
		testLot("way/near", "Near Lot", map[string]string{"permit": "C"}, 0, 0),
		testLot("way/nopermit", "Other Lot", map[string]string{"permit": "A"}, 0, 1),
	}, nil)

	r := newResolver(t, s, nil, Options{})
	origin := geo.Coordinate{Lat: 0.5, Lon: 0.5}

	got := r.ListSummaries(context.Background(), ListFilter{Permit: "c", Near: &origin})
	if len(got) != 2 {
		t.Fatalf("got %d lots, want 2 after permit filter", len(got))
	}
	if got[0].ID != "way/near" || got[1].ID != "way/far" {
		t.Errorf("order = [%s %s], want nearest first", got[0].ID, got[1].ID)
	}

	// The radius cut keeps only the nearby lot.
	got = r.ListSummaries(context.Background(), ListFilter{Near: &origin, RadiusMeters: 200000})
	for _, lot := range got {
		if lot.ID == "way/far" {
			t.Error("radius filter should drop the far lot")
		}
	}
}

func TestGarageFetchIsCached(t *testing.T) {
	s := store.New()
	s.SetGeometry([]domain.LotFeature{
		testLot("way/1", "Lane Avenue Garage", nil, 0, 0),
	}, nil)

	src := &fakeGarage{snap: garage.Snapshot{Rows: []garage.Row{
		{Name: "Lane Avenue", Capacity: 10, Occupied: intp(2)},
	}}}
	r := newResolver(t, s, src, Options{})

	for i := 0; i < 3; i++ {
		r.Summary(context.Background(), "way/1")
	}
	if src.fetches != 1 {
		t.Errorf("garage fetched %d times within one TTL window, want 1", src.fetches)
	}
}

func TestWarmGarageSnapshotAvoidsFetch(t *testing.T) {
	s := store.New()
	s.SetGeometry([]domain.LotFeature{
		testLot("way/1", "Lane Avenue Garage", nil, 0, 0),
	}, nil)

	src := &fakeGarage{err: errors.New("should not be called")}
	r := newResolver(t, s, src, Options{})
	r.WarmGarageSnapshot(garage.Snapshot{
		FetchedAt: time.Date(2026, 8, 28, 8, 0, 0, 0, time.UTC),
		Rows:      []garage.Row{{Name: "Lane Avenue", Capacity: 20, Occupied: intp(5)}},
	})

	summary, _ := r.Summary(context.Background(), "way/1")
	want := domain.Counts{Total: 20, Occupied: 5, Open: 15}
	if summary.Counts != want {
		t.Errorf("counts = %+v, want warmed snapshot %+v", summary.Counts, want)
	}
	if src.fetches != 0 {
		t.Errorf("garage fetched %d times despite warm snapshot", src.fetches)
	}
}
