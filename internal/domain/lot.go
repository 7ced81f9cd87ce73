package domain

import (
	"time"

	"lotwatch/internal/geo"
)

// SourceKind identifies which upstream populated a derived field.
type SourceKind string

const (
	SourceExternal SourceKind = "external"
	SourceSeed     SourceKind = "seed"
	SourceManual   SourceKind = "manual"
)

// LotFeature is a parking lot boundary loaded once from the geometry
// provider and immutable for the process lifetime.
type LotFeature struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Tags     map[string]string `json:"tags,omitempty"`
	Geometry geo.Geometry      `json:"-"`
	Centroid *geo.Coordinate   `json:"centroid,omitempty"`
	AreaM2   float64           `json:"areaM2"`
}

// SpaceFeature is an individual mapped parking space, typically a point
// but sometimes a degenerate polygon. The centroid is derived at load.
type SpaceFeature struct {
	ID       string            `json:"id"`
	Tags     map[string]string `json:"tags,omitempty"`
	Geometry geo.Geometry      `json:"-"`
	Centroid *geo.Coordinate   `json:"centroid,omitempty"`
}

// Counts is the derived availability record for one lot.
// Invariant: Total == Occupied + Open + Unknown, all fields >= 0.
type Counts struct {
	Total    int `json:"total"`
	Occupied int `json:"occupied"`
	Open     int `json:"open"`
	Unknown  int `json:"unknown"`
}

// Valid reports whether the counts invariant holds.
func (c Counts) Valid() bool {
	return c.Total >= 0 && c.Occupied >= 0 && c.Open >= 0 && c.Unknown >= 0 &&
		c.Total == c.Occupied+c.Open+c.Unknown
}

// Available returns the open figure used for ranking and display
// thresholds. Whether unknown stalls count as open is a policy decision,
// configured once rather than decided per call site.
func (c Counts) Available(unknownAsOpen bool) int {
	if unknownAsOpen {
		return c.Open + c.Unknown
	}
	return c.Open
}

// CapacitySnapshot records the raw capacity/occupancy pair behind a Counts
// record along with which source reported it, so precedence is auditable.
type CapacitySnapshot struct {
	Capacity   int        `json:"capacity"`
	Occupied   int        `json:"occupied"`
	Source     SourceKind `json:"source"`
	ObservedAt time.Time  `json:"observedAt"`
}

// LotSummary is the derived per-lot view served to callers. It is
// recomputed on every query and never persisted as a source of truth.
type LotSummary struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Code     string            `json:"code,omitempty"`
	Centroid *geo.Coordinate   `json:"centroid,omitempty"`
	AreaM2   float64           `json:"areaM2,omitempty"`
	Permits  []string          `json:"permits,omitempty"`
	Counts   Counts            `json:"counts"`
	Capacity *CapacitySnapshot `json:"capacity,omitempty"`
	Pricing  string            `json:"pricing,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Provenance metadata keys. Values name the contributing SourceKind(s).
const (
	MetaCountsSource   = "source:counts"
	MetaCapacitySource = "source:capacity"
	MetaPermitsSource  = "source:permits"
	MetaPricingSource  = "source:pricing"
)

// LotDelta represents a change in one lot's counts, pushed to dashboard
// subscribers after a poll cycle.
type LotDelta struct {
	LotID     string    `json:"lotId"`
	Counts    Counts    `json:"counts"`
	UpdatedAt time.Time `json:"updatedAt"`
}
