package store

import (
	"sync"
	"time"

	"lotwatch/internal/domain"
)

// HistoryStore is the bounded append-only observation log read by the
// forecast estimator. Retention is most-recent-N per lot, so memory stays
// flat regardless of uptime; it is not a time-series store.
type HistoryStore struct {
	mu        sync.RWMutex
	maxPerLot int
	byLot     map[string][]domain.SlotObservation
}

func NewHistoryStore(maxPerLot int) *HistoryStore {
	if maxPerLot <= 0 {
		maxPerLot = 1
	}
	return &HistoryStore{
		maxPerLot: maxPerLot,
		byLot:     make(map[string][]domain.SlotObservation),
	}
}

// Append records one observation, evicting the oldest entry for the lot
// when the window is full.
func (h *HistoryStore) Append(obs domain.SlotObservation) {
	h.mu.Lock()
	defer h.mu.Unlock()

	log := h.byLot[obs.LotID]
	log = append(log, obs)
	if len(log) > h.maxPerLot {
		log = log[len(log)-h.maxPerLot:]
	}
	h.byLot[obs.LotID] = log
}

// MaxPerLot reports the per-lot retention window.
func (h *HistoryStore) MaxPerLot() int {
	return h.maxPerLot
}

// Observations returns a copy of the retained log for one lot.
func (h *HistoryStore) Observations(lotID string) []domain.SlotObservation {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]domain.SlotObservation(nil), h.byLot[lotID]...)
}

// Query filters a lot's log to observations matching the weekday and slot.
func (h *HistoryStore) Query(lotID string, weekday time.Weekday, slot string) []domain.SlotObservation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []domain.SlotObservation
	for _, obs := range h.byLot[lotID] {
		if obs.Weekday == weekday && obs.Slot == slot {
			out = append(out, obs)
		}
	}
	return out
}

// Load seeds the store from persisted observations, oldest first.
func (h *HistoryStore) Load(observations []domain.SlotObservation) {
	for _, obs := range observations {
		h.Append(obs)
	}
}
