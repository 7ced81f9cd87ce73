package handler

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"lotwatch/internal/hub"
	"lotwatch/internal/middleware"
	"lotwatch/internal/store"
)

// Stats tracks server-wide counters cheap enough to bump on every request.
type Stats struct {
	startTime        time.Time
	requestCount     atomic.Int64
	wsConnections    atomic.Int64
	wsMessagesOut    atomic.Int64
	cacheHits        atomic.Int64
	cacheMisses      atomic.Int64
	rateLimitBlocked atomic.Int64
}

var ServerStats = &Stats{
	startTime: time.Now(),
}

func (s *Stats) IncRequests()         { s.requestCount.Add(1) }
func (s *Stats) IncWSConnections()    { s.wsConnections.Add(1) }
func (s *Stats) DecWSConnections()    { s.wsConnections.Add(-1) }
func (s *Stats) IncWSMessagesOut()    { s.wsMessagesOut.Add(1) }
func (s *Stats) IncCacheHits()        { s.cacheHits.Add(1) }
func (s *Stats) IncCacheMisses()      { s.cacheMisses.Add(1) }
func (s *Stats) IncRateLimitBlocked() { s.rateLimitBlocked.Add(1) }

type StatsHandler struct {
	store   *store.Store
	hub     *hub.Hub
	limiter *middleware.RateLimiter
}

func NewStatsHandler(s *store.Store, h *hub.Hub, limiter *middleware.RateLimiter) *StatsHandler {
	return &StatsHandler{store: s, hub: h, limiter: limiter}
}

type StatsResponse struct {
	UptimeSeconds    float64   `json:"uptimeSeconds"`
	Requests         int64     `json:"requests"`
	WSConnections    int64     `json:"wsConnections"`
	WSClients        int       `json:"wsClients"`
	WSMessagesOut    int64     `json:"wsMessagesOut"`
	CacheHits        int64     `json:"cacheHits"`
	CacheMisses      int64     `json:"cacheMisses"`
	RateLimitBlocked int64     `json:"rateLimitBlocked"`
	RateLimitClients int       `json:"rateLimitClients"`
	Lots             int       `json:"lots"`
	Spaces           int       `json:"spaces"`
	Goroutines       int       `json:"goroutines"`
	ServerTime       time.Time `json:"serverTime"`
}

func (h *StatsHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, StatsResponse{
		UptimeSeconds:    time.Since(ServerStats.startTime).Seconds(),
		Requests:         ServerStats.requestCount.Load(),
		WSConnections:    ServerStats.wsConnections.Load(),
		WSClients:        h.hub.ClientCount(),
		WSMessagesOut:    ServerStats.wsMessagesOut.Load(),
		CacheHits:        ServerStats.cacheHits.Load(),
		CacheMisses:      ServerStats.cacheMisses.Load(),
		RateLimitBlocked: ServerStats.rateLimitBlocked.Load(),
		RateLimitClients: h.limiter.TrackedClients(),
		Lots:             h.store.LotCount(),
		Spaces:           h.store.SpaceCount(),
		Goroutines:       runtime.NumGoroutine(),
		ServerTime:       time.Now(),
	})
}
