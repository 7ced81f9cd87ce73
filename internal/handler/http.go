package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"lotwatch/internal/cache"
	"lotwatch/internal/domain"
	"lotwatch/internal/forecast"
	"lotwatch/internal/geo"
	"lotwatch/internal/metrics"
	"lotwatch/internal/resolver"
	"lotwatch/internal/store"
)

// listCacheTTL bounds how long an unfiltered listing may be served from
// redis; well under the poll interval so counts never lag a full cycle.
const listCacheTTL = 10 * time.Second

type LotsHandler struct {
	resolver *resolver.Resolver
	store    *store.Store
	history  *store.HistoryStore
	redis    *cache.Redis // optional
	logger   *slog.Logger
}

func NewLotsHandler(res *resolver.Resolver, s *store.Store, history *store.HistoryStore, redis *cache.Redis, logger *slog.Logger) *LotsHandler {
	return &LotsHandler{
		resolver: res,
		store:    s,
		history:  history,
		redis:    redis,
		logger:   logger.With("component", "lots_handler"),
	}
}

type LotsResponse struct {
	Lots       []domain.LotSummary `json:"lots"`
	Count      int                 `json:"count"`
	ServerTime time.Time           `json:"serverTime"`
}

// ListLots serves GET /v1/lots with optional permit, near and
// radiusMeters query parameters. near is display-order "lat,lon".
func (h *LotsHandler) ListLots(w http.ResponseWriter, r *http.Request) {
	metrics.RequestsTotal.WithLabelValues("list_lots").Inc()
	start := time.Now()
	defer func() {
		metrics.RequestDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	}()

	filter := resolver.ListFilter{
		Permit: r.URL.Query().Get("permit"),
	}

	if nearStr := r.URL.Query().Get("near"); nearStr != "" {
		origin, err := geo.ParseLatLon(nearStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid near parameter: "+err.Error())
			return
		}
		filter.Near = &origin
	}

	if radiusStr := r.URL.Query().Get("radiusMeters"); radiusStr != "" {
		radius, err := strconv.ParseFloat(radiusStr, 64)
		if err != nil || radius <= 0 {
			respondError(w, http.StatusBadRequest, "invalid radiusMeters: must be a positive number")
			return
		}
		if filter.Near == nil {
			respondError(w, http.StatusBadRequest, "radiusMeters requires near")
			return
		}
		filter.RadiusMeters = radius
	}

	unfiltered := filter.Permit == "" && filter.Near == nil
	if unfiltered {
		if cached, ok := h.cachedList(r.Context()); ok {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	lots := h.resolver.ListSummaries(r.Context(), filter)
	resp := LotsResponse{
		Lots:       lots,
		Count:      len(lots),
		ServerTime: time.Now(),
	}

	if unfiltered && h.redis != nil {
		if err := h.redis.SetJSON(r.Context(), cache.KeyLotList, resp, listCacheTTL); err != nil {
			h.logger.Debug("failed to cache lot listing", "error", err)
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (h *LotsHandler) cachedList(ctx context.Context) (LotsResponse, bool) {
	if h.redis == nil {
		return LotsResponse{}, false
	}
	var resp LotsResponse
	found, err := h.redis.GetJSON(ctx, cache.KeyLotList, &resp)
	if err != nil || !found {
		metrics.RedisMissesTotal.Inc()
		ServerStats.IncCacheMisses()
		return LotsResponse{}, false
	}
	metrics.RedisHitsTotal.Inc()
	ServerStats.IncCacheHits()
	return resp, true
}

// lotIDFromPath reassembles an OSM-style "type/id" feature identifier
// from its two path segments.
func lotIDFromPath(r *http.Request) string {
	return r.PathValue("type") + "/" + r.PathValue("id")
}

// GetLot serves GET /v1/lots/{type}/{id}. An unknown identifier is a 404,
// the one typed absence on the read path.
func (h *LotsHandler) GetLot(w http.ResponseWriter, r *http.Request) {
	metrics.RequestsTotal.WithLabelValues("get_lot").Inc()

	id := lotIDFromPath(r)

	summary, ok := h.resolver.Summary(r.Context(), id)
	if !ok {
		respondError(w, http.StatusNotFound, "lot not found")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

type ForecastResponse struct {
	LotID   string          `json:"lotId"`
	Weekday int             `json:"weekday"`
	Slot    string          `json:"slot"`
	Result  forecast.Result `json:"result"`
}

// GetForecast serves GET /v1/lots/{type}/{id}/forecast?weekday=&slot=.
// Weekday is 0-6 with Sunday = 0; slot is an exact "HH:MM" at the sampling
// granularity.
func (h *LotsHandler) GetForecast(w http.ResponseWriter, r *http.Request) {
	metrics.RequestsTotal.WithLabelValues("get_forecast").Inc()

	id := lotIDFromPath(r)
	if _, ok := h.store.Lot(id); !ok {
		respondError(w, http.StatusNotFound, "lot not found")
		return
	}

	weekdayStr := r.URL.Query().Get("weekday")
	weekday, err := strconv.Atoi(weekdayStr)
	if err != nil || weekday < 0 || weekday > 6 {
		respondError(w, http.StatusBadRequest, "invalid weekday: must be 0 (Sunday) through 6")
		return
	}

	slot := r.URL.Query().Get("slot")
	if _, err := time.Parse("15:04", slot); err != nil {
		respondError(w, http.StatusBadRequest, "invalid slot: expected HH:MM")
		return
	}

	history := h.history.Observations(id)
	result := forecast.Estimate(history, time.Weekday(weekday), slot)

	respondJSON(w, http.StatusOK, ForecastResponse{
		LotID:   id,
		Weekday: weekday,
		Slot:    slot,
		Result:  result,
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
