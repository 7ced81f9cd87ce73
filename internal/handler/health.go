package handler

import (
	"net/http"
	"time"

	"lotwatch/internal/ingestor"
	"lotwatch/internal/store"
)

type HealthHandler struct {
	ingestor *ingestor.Ingestor
	store    *store.Store
}

func NewHealthHandler(ing *ingestor.Ingestor, s *store.Store) *HealthHandler {
	return &HealthHandler{ingestor: ing, store: s}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready      bool      `json:"ready"`
	LotCount   int       `json:"lotCount"`
	SpaceCount int       `json:"spaceCount"`
	ServerTime time.Time `json:"serverTime"`
}

// Readyz reports service readiness: geometry loaded and at least one
// successful feed poll.
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.ingestor.IsReady() && h.store.LotCount() > 0
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:      ready,
		LotCount:   h.store.LotCount(),
		SpaceCount: h.store.SpaceCount(),
		ServerTime: time.Now(),
	})
}
