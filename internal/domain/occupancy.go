package domain

import (
	"fmt"
	"math"
	"time"

	"lotwatch/internal/geo"
)

// OccupancyBatch is one wholesale poll of the live per-space feed. Each
// poll replaces the previous batch entirely; there is no incremental merge.
type OccupancyBatch struct {
	FetchedAt time.Time
	Occupied  map[string]bool // space feature ID -> occupied flag
}

// OccupiedSet returns the IDs currently marked occupied.
func (b *OccupancyBatch) OccupiedSet() map[string]struct{} {
	set := make(map[string]struct{})
	if b == nil {
		return set
	}
	for id, occ := range b.Occupied {
		if occ {
			set[id] = struct{}{}
		}
	}
	return set
}

// StallStatus is the hand-entered state of a manually drawn stall.
type StallStatus string

const (
	StallOpen     StallStatus = "open"
	StallOccupied StallStatus = "occupied"
	StallUnknown  StallStatus = "unknown"
)

// ValidStallStatus reports whether s is a known status value.
func ValidStallStatus(s StallStatus) bool {
	switch s {
	case StallOpen, StallOccupied, StallUnknown:
		return true
	}
	return false
}

// ManualStall is a polygon-drawn stall entered by an administrator. Writes
// replace a lot's whole stall set; there are no partial updates.
type ManualStall struct {
	ID      string           `json:"id"`
	LotID   string           `json:"lotId"`
	Ring    []geo.Coordinate `json:"ring"`
	Permits []string         `json:"permits,omitempty"`
	Status  StallStatus      `json:"status"`
}

// Validate rejects degenerate manual stall geometry at the write boundary.
// This is the one place a caller-visible error is correct: silently
// accepting garbage would corrupt a human-entered dataset.
func (s *ManualStall) Validate() error {
	if !ValidStallStatus(s.Status) {
		return fmt.Errorf("stall %s: invalid status %q", s.ID, s.Status)
	}
	ring := s.Ring
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	if len(ring) < 3 {
		return fmt.Errorf("stall %s: polygon needs at least 3 distinct vertices, got %d", s.ID, len(ring))
	}
	for i, c := range ring {
		if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
			return fmt.Errorf("stall %s: vertex %d is not a finite coordinate", s.ID, i)
		}
		if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
			return fmt.Errorf("stall %s: vertex %d out of range (%f, %f)", s.ID, i, c.Lat, c.Lon)
		}
	}
	return nil
}
