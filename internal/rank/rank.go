// Package rank orders lot summaries by distance from a user coordinate.
package rank

import (
	"sort"

	"lotwatch/internal/domain"
	"lotwatch/internal/geo"
)

// SortByDistance sorts lots ascending by haversine distance from origin,
// in place. Lots with no centroid sort last; ties keep input order.
func SortByDistance(lots []domain.LotSummary, origin geo.Coordinate) {
	sort.SliceStable(lots, func(i, j int) bool {
		di, oki := distance(lots[i], origin)
		dj, okj := distance(lots[j], origin)
		if oki != okj {
			return oki
		}
		if !oki {
			return false
		}
		return di < dj
	})
}

// FilterRadius drops lots farther than radiusMeters from origin. It is
// applied after sorting, so the result is a prefix of the sorted order.
// Lots with no centroid are always dropped.
func FilterRadius(lots []domain.LotSummary, origin geo.Coordinate, radiusMeters float64) []domain.LotSummary {
	out := lots[:0]
	for _, lot := range lots {
		d, ok := distance(lot, origin)
		if !ok || d > radiusMeters {
			continue
		}
		out = append(out, lot)
	}
	return out
}

func distance(lot domain.LotSummary, origin geo.Coordinate) (float64, bool) {
	if lot.Centroid == nil {
		return 0, false
	}
	return geo.DistanceMeters(origin, *lot.Centroid), true
}
