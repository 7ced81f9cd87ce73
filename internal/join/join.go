// Package join assigns mapped parking spaces to enclosing lots and
// produces per-lot seed aggregates. It knows nothing about occupancy
// semantics beyond the identity set handed to it.
package join

import (
	"lotwatch/internal/domain"
	"lotwatch/internal/geo"
)

// Aggregate is the per-lot space count derived from geometry alone plus
// the supplied occupied-ID set.
type Aggregate struct {
	Total    int
	Occupied int
}

// AssignSpacesToLots places each space into at most one lot: lots are
// scanned in the caller-provided order and the first lot whose geometry
// contains the space's centroid wins. Spaces matching no lot are dropped
// silently. The occupied set is keyed by space feature ID.
//
// Complexity is O(spaces x lots); a bounding-box pre-filter trims the
// point-in-polygon calls without changing results.
func AssignSpacesToLots(spaces []domain.SpaceFeature, lots []domain.LotFeature, occupied map[string]struct{}) map[string]Aggregate {
	bounds := make([]geo.BoundingBox, len(lots))
	hasBounds := make([]bool, len(lots))
	for i, lot := range lots {
		bounds[i], hasBounds[i] = lot.Geometry.Bounds()
	}

	out := make(map[string]Aggregate)
	for _, space := range spaces {
		centroid := space.Centroid
		if centroid == nil {
			centroid = space.Geometry.Centroid()
		}
		if centroid == nil {
			continue
		}
		for i, lot := range lots {
			if !hasBounds[i] || !bounds[i].Contains(*centroid) {
				continue
			}
			if !lot.Geometry.Contains(*centroid) {
				continue
			}
			agg := out[lot.ID]
			agg.Total++
			if _, occ := occupied[space.ID]; occ {
				agg.Occupied++
			}
			out[lot.ID] = agg
			break
		}
	}
	return out
}
