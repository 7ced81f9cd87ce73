package store

import (
	"sync"
	"time"

	"lotwatch/internal/domain"
)

// Store holds the in-memory campus state: lot and space geometry loaded
// once and immutable for the process lifetime, the latest occupancy batch
// (replaced wholesale on each poll), and per-lot manual stall sets.
type Store struct {
	mu       sync.RWMutex
	lots     []domain.LotFeature
	lotIndex map[string]int
	spaces   []domain.SpaceFeature
	batch    *domain.OccupancyBatch
	stalls   map[string][]domain.ManualStall
	stallsAt map[string]time.Time
}

func New() *Store {
	return &Store{
		lotIndex: make(map[string]int),
		stalls:   make(map[string][]domain.ManualStall),
		stallsAt: make(map[string]time.Time),
	}
}

// SetGeometry installs the lot and space features. Lot order is preserved:
// the spatial join's first-match-wins rule depends on it.
func (s *Store) SetGeometry(lots []domain.LotFeature, spaces []domain.SpaceFeature) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lots = lots
	s.spaces = spaces
	s.lotIndex = make(map[string]int, len(lots))
	for i, lot := range lots {
		s.lotIndex[lot.ID] = i
	}
}

// Lots returns the lot features in load order.
func (s *Store) Lots() []domain.LotFeature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.LotFeature(nil), s.lots...)
}

// Lot looks up one lot by ID.
func (s *Store) Lot(id string) (domain.LotFeature, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.lotIndex[id]
	if !ok {
		return domain.LotFeature{}, false
	}
	return s.lots[i], true
}

// Spaces returns the space features.
func (s *Store) Spaces() []domain.SpaceFeature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.SpaceFeature(nil), s.spaces...)
}

// ReplaceOccupancy swaps in a new feed batch.
func (s *Store) ReplaceOccupancy(batch *domain.OccupancyBatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batch = batch
}

// Occupancy returns the current batch, which may be nil before the first
// successful poll.
func (s *Store) Occupancy() *domain.OccupancyBatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.batch
}

// OccupancyFetchedAt reports the timestamp of the current batch.
func (s *Store) OccupancyFetchedAt() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.batch == nil {
		return time.Time{}, false
	}
	return s.batch.FetchedAt, true
}

// ReplaceStalls fully replaces one lot's manual stall set and records the
// write time, which stands in as the stall set's observation timestamp.
func (s *Store) ReplaceStalls(lotID string, stalls []domain.ManualStall) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(stalls) == 0 {
		delete(s.stalls, lotID)
		delete(s.stallsAt, lotID)
		return
	}
	s.stalls[lotID] = append([]domain.ManualStall(nil), stalls...)
	s.stallsAt[lotID] = time.Now()
}

// Stalls returns the manual stall set for a lot.
func (s *Store) Stalls(lotID string) []domain.ManualStall {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.ManualStall(nil), s.stalls[lotID]...)
}

// StallsUpdatedAt reports when a lot's stall set was last written.
func (s *Store) StallsUpdatedAt(lotID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.stallsAt[lotID]
	return t, ok
}

// LotCount and SpaceCount report dataset sizes for readiness and stats.
func (s *Store) LotCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lots)
}

func (s *Store) SpaceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.spaces)
}
