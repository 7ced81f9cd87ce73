// Package resolver merges the three candidate occupancy sources into one
// authoritative per-lot summary: the external garage source, the locally
// seeded per-space aggregate, and hand-entered manual stalls, in that
// precedence order. Reads never fail; every lot resolves to some Counts
// record, degrading to zeros when nothing is known.
package resolver

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"lotwatch/internal/cache"
	"lotwatch/internal/domain"
	"lotwatch/internal/geo"
	"lotwatch/internal/join"
	"lotwatch/internal/metrics"
	"lotwatch/internal/rank"
	"lotwatch/internal/store"
	"lotwatch/pkg/garage"
)

const garageCacheKey = "garage"

// GarageSource is the external structured occupancy system. A nil source
// means the lot listing runs on seeded data only.
type GarageSource interface {
	Fetch(ctx context.Context) (garage.Snapshot, error)
}

// Options configures resolution policy.
type Options struct {
	// ProtectedLots always use locally seeded counts, even when the
	// external source has a row for them.
	ProtectedLots []string
	// NameExceptions are garage-name prefixes exempt from the " Garage"
	// suffix normalization.
	NameExceptions []string
	// UnknownAsOpen controls whether unknown stalls count toward the open
	// figure used for ranking.
	UnknownAsOpen bool
	// FetchTimeout bounds one outbound garage fetch.
	FetchTimeout time.Duration
}

// Resolver computes lot summaries on every query; nothing it produces is
// persisted as a source of truth.
type Resolver struct {
	store     *store.Store
	garage    GarageSource
	snapshots *cache.TTL[garage.Snapshot]
	redis     *cache.Redis // optional, persists garage snapshots across restarts

	protected      map[string]struct{}
	nameExceptions []string
	unknownAsOpen  bool
	fetchTimeout   time.Duration
	logger         *slog.Logger
}

func New(s *store.Store, src GarageSource, snapshots *cache.TTL[garage.Snapshot], redis *cache.Redis, opts Options, logger *slog.Logger) *Resolver {
	protected := make(map[string]struct{}, len(opts.ProtectedLots))
	for _, id := range opts.ProtectedLots {
		protected[id] = struct{}{}
	}
	timeout := opts.FetchTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Resolver{
		store:          s,
		garage:         src,
		snapshots:      snapshots,
		redis:          redis,
		protected:      protected,
		nameExceptions: opts.NameExceptions,
		unknownAsOpen:  opts.UnknownAsOpen,
		fetchTimeout:   timeout,
		logger:         logger.With("component", "resolver"),
	}
}

// UnknownAsOpen exposes the configured availability policy.
func (r *Resolver) UnknownAsOpen() bool {
	return r.unknownAsOpen
}

// ListFilter narrows and orders a lot listing.
type ListFilter struct {
	Permit       string
	Near         *geo.Coordinate
	RadiusMeters float64
}

// ListSummaries resolves every lot. The permit filter is applied first,
// then distance sorting, then the radius cut (after sorting, so the result
// is a prefix of the ranked order).
func (r *Resolver) ListSummaries(ctx context.Context, f ListFilter) []domain.LotSummary {
	lots := r.store.Lots()
	aggs := r.seedAggregates()
	rows, rowsAt := r.garageRows(ctx)

	summaries := make([]domain.LotSummary, 0, len(lots))
	for _, lot := range lots {
		s := r.resolveLot(lot, aggs[lot.ID], rows, rowsAt)
		if f.Permit != "" && !hasPermit(s.Permits, f.Permit) {
			continue
		}
		summaries = append(summaries, s)
	}

	if f.Near != nil {
		rank.SortByDistance(summaries, *f.Near)
		if f.RadiusMeters > 0 {
			summaries = rank.FilterRadius(summaries, *f.Near, f.RadiusMeters)
		}
	}
	return summaries
}

// Summary resolves a single lot. The second return is the typed NotFound:
// false for an unknown lot identifier.
func (r *Resolver) Summary(ctx context.Context, id string) (domain.LotSummary, bool) {
	lot, ok := r.store.Lot(id)
	if !ok {
		return domain.LotSummary{}, false
	}
	aggs := r.seedAggregates()
	rows, rowsAt := r.garageRows(ctx)
	return r.resolveLot(lot, aggs[lot.ID], rows, rowsAt), true
}

// seedAggregates runs the spatial join over the immutable geometry and the
// current feed batch.
func (r *Resolver) seedAggregates() map[string]join.Aggregate {
	occupied := r.store.Occupancy().OccupiedSet()
	return join.AssignSpacesToLots(r.store.Spaces(), r.store.Lots(), occupied)
}

// garageRows returns the external snapshot's rows keyed by normalized,
// lowercased garage name. The snapshot is served through the TTL cache:
// one refetch per expiry, stale data on failure, never an error.
func (r *Resolver) garageRows(ctx context.Context) (map[string]*garage.Row, time.Time) {
	if r.garage == nil {
		return nil, time.Time{}
	}

	snap, ok := r.snapshots.Get(ctx, garageCacheKey, func(ctx context.Context) (garage.Snapshot, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, r.fetchTimeout)
		defer cancel()

		metrics.GarageFetchTotal.Inc()
		snap, err := r.garage.Fetch(fetchCtx)
		if err != nil {
			metrics.GarageFetchErrorsTotal.Inc()
			r.logger.Warn("garage source unavailable, serving seeded counts", "error", err)
			return snap, err
		}
		if r.redis != nil {
			if err := r.redis.SetJSON(ctx, cache.KeyGarageSnapshot, snap, 0); err != nil {
				r.logger.Debug("failed to persist garage snapshot", "error", err)
			}
		}
		return snap, nil
	})
	if !ok {
		return nil, time.Time{}
	}

	rows := make(map[string]*garage.Row, len(snap.Rows))
	for i := range snap.Rows {
		row := &snap.Rows[i]
		name := garage.NormalizeName(row.Name, r.nameExceptions)
		rows[strings.ToLower(name)] = row
	}
	return rows, snap.FetchedAt
}

// WarmGarageSnapshot pre-seeds the TTL cache, typically from redis at
// startup, so the first listing after a restart has external counts
// without waiting on an outbound call.
func (r *Resolver) WarmGarageSnapshot(snap garage.Snapshot) {
	r.snapshots.Put(garageCacheKey, snap)
}

// resolveLot merges the candidate sources for one lot. Precedence:
// external (unless protected), then seed, then manual stalls; the first
// candidate with a non-zero total wins the Counts record, while permits
// and pricing are merged across all sources that have them.
func (r *Resolver) resolveLot(lot domain.LotFeature, agg join.Aggregate, rows map[string]*garage.Row, rowsAt time.Time) domain.LotSummary {
	summary := domain.LotSummary{
		ID:       lot.ID,
		Name:     lot.Name,
		Code:     lot.Tags["ref"],
		Centroid: lot.Centroid,
		AreaM2:   lot.AreaM2,
		Metadata: make(map[string]string),
	}

	_, isProtected := r.protected[lot.ID]

	var external *domain.CapacitySnapshot
	var externalCounts domain.Counts
	var row *garage.Row
	if rows != nil && lot.Name != "" && !isProtected {
		row = rows[strings.ToLower(lot.Name)]
	}
	if row != nil {
		capTotal := row.TotalSpots()
		occ := clamp(row.OccupiedCount(), 0, capTotal)
		// the external source reports a complete total, so nothing is unknown
		externalCounts = domain.Counts{
			Total:    capTotal,
			Occupied: occ,
			Open:     capTotal - occ,
			Unknown:  0,
		}
		external = &domain.CapacitySnapshot{
			Capacity:   capTotal,
			Occupied:   occ,
			Source:     domain.SourceExternal,
			ObservedAt: rowsAt,
		}
	}

	feedAt, _ := r.store.OccupancyFetchedAt()
	seedCounts := domain.Counts{
		Total:    agg.Total,
		Occupied: agg.Occupied,
		Open:     maxInt(agg.Total-agg.Occupied, 0),
		Unknown:  0,
	}

	stalls := r.store.Stalls(lot.ID)
	var manualCounts domain.Counts
	for _, st := range stalls {
		manualCounts.Total++
		switch st.Status {
		case domain.StallOccupied:
			manualCounts.Occupied++
		case domain.StallUnknown:
			manualCounts.Unknown++
		}
	}
	manualCounts.Open = maxInt(manualCounts.Total-manualCounts.Occupied-manualCounts.Unknown, 0)

	switch {
	case external != nil && externalCounts.Total > 0:
		summary.Counts = externalCounts
		summary.Capacity = external
		summary.Metadata[domain.MetaCountsSource] = string(domain.SourceExternal)
		summary.Metadata[domain.MetaCapacitySource] = string(domain.SourceExternal)
	case seedCounts.Total > 0:
		summary.Counts = seedCounts
		summary.Capacity = &domain.CapacitySnapshot{
			Capacity:   seedCounts.Total,
			Occupied:   seedCounts.Occupied,
			Source:     domain.SourceSeed,
			ObservedAt: feedAt,
		}
		summary.Metadata[domain.MetaCountsSource] = string(domain.SourceSeed)
		summary.Metadata[domain.MetaCapacitySource] = string(domain.SourceSeed)
	case manualCounts.Total > 0:
		stallsAt, _ := r.store.StallsUpdatedAt(lot.ID)
		summary.Counts = manualCounts
		summary.Capacity = &domain.CapacitySnapshot{
			Capacity:   manualCounts.Total,
			Occupied:   manualCounts.Occupied,
			Source:     domain.SourceManual,
			ObservedAt: stallsAt,
		}
		summary.Metadata[domain.MetaCountsSource] = string(domain.SourceManual)
		summary.Metadata[domain.MetaCapacitySource] = string(domain.SourceManual)
	default:
		// nothing known about this lot; zeros, attributed to seed
		summary.Counts = domain.Counts{}
		summary.Metadata[domain.MetaCountsSource] = string(domain.SourceSeed)
	}

	r.mergePermits(&summary, lot, row, stalls)
	r.mergePricing(&summary, lot, row)

	return summary
}

// mergePermits unions permit tags across every source that has them,
// preserving first-seen order: seed tags, then the external row, then
// manual stalls. Provenance lists each contributing source.
func (r *Resolver) mergePermits(summary *domain.LotSummary, lot domain.LotFeature, row *garage.Row, stalls []domain.ManualStall) {
	seen := make(map[string]struct{})
	var sources []string

	add := func(permits []string, source domain.SourceKind) {
		contributed := false
		for _, p := range permits {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, dup := seen[p]; !dup {
				seen[p] = struct{}{}
				summary.Permits = append(summary.Permits, p)
			}
			contributed = true
		}
		if contributed {
			sources = append(sources, string(source))
		}
	}

	add(splitPermitTag(lot.Tags["permit"]), domain.SourceSeed)
	if row != nil {
		add(row.Permits, domain.SourceExternal)
	}
	var stallPermits []string
	for _, st := range stalls {
		stallPermits = append(stallPermits, st.Permits...)
	}
	add(stallPermits, domain.SourceManual)

	if len(sources) > 0 {
		summary.Metadata[domain.MetaPermitsSource] = strings.Join(sources, ",")
	}
}

// mergePricing keeps the highest-precedence pricing description on offer;
// a source that is the only one supplying pricing is never dropped.
func (r *Resolver) mergePricing(summary *domain.LotSummary, lot domain.LotFeature, row *garage.Row) {
	if row != nil && row.Pricing != "" {
		summary.Pricing = row.Pricing
		summary.Metadata[domain.MetaPricingSource] = string(domain.SourceExternal)
		return
	}
	if charge := lot.Tags["charge"]; charge != "" {
		summary.Pricing = charge
		summary.Metadata[domain.MetaPricingSource] = string(domain.SourceSeed)
		return
	}
	if fee := lot.Tags["fee"]; fee != "" {
		summary.Pricing = "fee=" + fee
		summary.Metadata[domain.MetaPricingSource] = string(domain.SourceSeed)
	}
}

// splitPermitTag splits an OSM-style multi-value tag on ";" or ",".
func splitPermitTag(v string) []string {
	if v == "" {
		return nil
	}
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ';' || r == ','
	})
}

func hasPermit(permits []string, want string) bool {
	for _, p := range permits {
		if strings.EqualFold(p, want) {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
