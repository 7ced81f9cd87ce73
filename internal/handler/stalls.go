package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"lotwatch/internal/cache"
	"lotwatch/internal/domain"
	"lotwatch/internal/geo"
	"lotwatch/internal/metrics"
	"lotwatch/internal/store"
)

// StallsSink optionally persists manual stall sets.
type StallsSink interface {
	ReplaceStalls(ctx context.Context, lotID string, stalls []domain.ManualStall) error
}

// StallsHandler owns the one write surface in the API: hand-drawn stall
// polygons. Reads degrade, writes fail loudly — accepting degenerate
// geometry here would corrupt a human-entered dataset.
type StallsHandler struct {
	store  *store.Store
	sink   StallsSink   // optional
	redis  *cache.Redis // optional, for listing invalidation
	logger *slog.Logger
}

func NewStallsHandler(s *store.Store, sink StallsSink, redis *cache.Redis, logger *slog.Logger) *StallsHandler {
	return &StallsHandler{
		store:  s,
		sink:   sink,
		redis:  redis,
		logger: logger.With("component", "stalls_handler"),
	}
}

type stallPayload struct {
	ID      string           `json:"id,omitempty"`
	Ring    []geo.Coordinate `json:"ring"`
	Permits []string         `json:"permits,omitempty"`
	Status  string           `json:"status"`
}

type putStallsRequest struct {
	Stalls []stallPayload `json:"stalls"`
}

type putStallsResponse struct {
	LotID   string    `json:"lotId"`
	Count   int       `json:"count"`
	BatchID string    `json:"batchId"`
	SavedAt time.Time `json:"savedAt"`
}

// PutStalls serves PUT /v1/lots/{type}/{id}/stalls, replacing the lot's
// whole manual stall set. There are no partial updates: the request body
// is the new set.
func (h *StallsHandler) PutStalls(w http.ResponseWriter, r *http.Request) {
	metrics.RequestsTotal.WithLabelValues("put_stalls").Inc()

	lotID := lotIDFromPath(r)
	if _, ok := h.store.Lot(lotID); !ok {
		respondError(w, http.StatusNotFound, "lot not found")
		return
	}

	var req putStallsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	stalls := make([]domain.ManualStall, 0, len(req.Stalls))
	for _, p := range req.Stalls {
		stall := domain.ManualStall{
			ID:      p.ID,
			LotID:   lotID,
			Ring:    p.Ring,
			Permits: p.Permits,
			Status:  domain.StallStatus(p.Status),
		}
		if stall.ID == "" {
			stall.ID = uuid.New().String()
		}
		if err := stall.Validate(); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		stalls = append(stalls, stall)
	}

	h.store.ReplaceStalls(lotID, stalls)

	if h.sink != nil {
		if err := h.sink.ReplaceStalls(r.Context(), lotID, stalls); err != nil {
			// in-memory state is already updated; persistence catches up on
			// the next write
			h.logger.Warn("failed to persist manual stalls", "lot_id", lotID, "error", err)
		}
	}

	if h.redis != nil {
		if err := h.redis.Delete(r.Context(), cache.KeyLotList); err != nil {
			h.logger.Debug("failed to invalidate lot listing cache", "error", err)
		}
	}

	h.logger.Info("manual stalls replaced", "lot_id", lotID, "count", len(stalls))

	respondJSON(w, http.StatusOK, putStallsResponse{
		LotID:   lotID,
		Count:   len(stalls),
		BatchID: uuid.New().String(),
		SavedAt: time.Now(),
	})
}

type stallsResponse struct {
	LotID  string               `json:"lotId"`
	Stalls []domain.ManualStall `json:"stalls"`
	Count  int                  `json:"count"`
}

// GetStalls serves GET /v1/lots/{type}/{id}/stalls.
func (h *StallsHandler) GetStalls(w http.ResponseWriter, r *http.Request) {
	metrics.RequestsTotal.WithLabelValues("get_stalls").Inc()

	lotID := lotIDFromPath(r)
	if _, ok := h.store.Lot(lotID); !ok {
		respondError(w, http.StatusNotFound, "lot not found")
		return
	}

	stalls := h.store.Stalls(lotID)
	respondJSON(w, http.StatusOK, stallsResponse{
		LotID:  lotID,
		Stalls: stalls,
		Count:  len(stalls),
	})
}
