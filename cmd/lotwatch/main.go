package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lotwatch/internal/cache"
	"lotwatch/internal/config"
	"lotwatch/internal/domain"
	"lotwatch/internal/handler"
	"lotwatch/internal/hub"
	"lotwatch/internal/ingestor"
	"lotwatch/internal/metrics"
	"lotwatch/internal/middleware"
	"lotwatch/internal/repository"
	"lotwatch/internal/resolver"
	"lotwatch/internal/store"
	"lotwatch/pkg/garage"
	"lotwatch/pkg/osm"
	"lotwatch/pkg/spotfeed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("starting lotwatch server",
		"log_level", cfg.LogLevel.String(),
		"http_addr", cfg.HTTPAddr,
		"redis_enabled", cfg.RedisEnabled,
		"postgres_enabled", cfg.PostgresURL != "",
	)

	metrics.Register()

	lotStore := store.New()
	historyStore := store.NewHistoryStore(cfg.HistoryMaxPerLot)

	lots, spaces, err := loadGeometry(cfg, logger)
	if err != nil {
		logger.Error("failed to load parking geometry", "error", err)
		os.Exit(1)
	}
	lotStore.SetGeometry(lots, spaces)
	logger.Info("parking geometry loaded", "lots", len(lots), "spaces", len(spaces))

	var redisCache *cache.Redis
	if cfg.RedisEnabled {
		redisCache, err = cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", "error", err)
		} else {
			defer redisCache.Close()
		}
	}

	var pg *repository.Postgres
	if cfg.PostgresURL != "" {
		pg, err = repository.NewPostgres(cfg.PostgresURL, logger)
		if err != nil {
			logger.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pg.Close()

		loadPersisted(pg, lotStore, historyStore, logger)
	}

	var garageSource resolver.GarageSource
	if cfg.GarageAPIURL != "" {
		garageSource = garage.New(cfg.GarageAPIURL, cfg.GarageAPIKey)
	}

	snapshots := cache.NewTTL[garage.Snapshot](cfg.GarageCacheTTL)
	res := resolver.New(lotStore, garageSource, snapshots, redisCache, resolver.Options{
		ProtectedLots:  cfg.ProtectedLots,
		NameExceptions: cfg.GarageNameExceptions,
		UnknownAsOpen:  cfg.UnknownCountsAsOpen,
	}, logger)

	if redisCache != nil {
		warmGarageSnapshot(redisCache, res, logger)
	}

	wsHub := hub.NewHub(logger)
	feed := spotfeed.New(cfg.FeedURL, cfg.SpaceIDPrefix)

	var historySink ingestor.HistorySink
	var stallsSink handler.StallsSink
	if pg != nil {
		historySink = pg
		stallsSink = pg
	}

	ing := ingestor.New(feed, lotStore, historyStore, historySink, res, wsHub,
		cfg.FeedPollInterval, cfg.HistorySlotGranularity, logger)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerWindow, cfg.RateLimitWindow, cfg.RateLimitWhitelist, logger)
	rateLimiter.OnBlocked = handler.ServerStats.IncRateLimitBlocked

	lotsHandler := handler.NewLotsHandler(res, lotStore, historyStore, redisCache, logger)
	stallsHandler := handler.NewStallsHandler(lotStore, stallsSink, redisCache, logger)
	wsHandler := handler.NewWSHandler(wsHub, res, logger)
	healthHandler := handler.NewHealthHandler(ing, lotStore)
	statsHandler := handler.NewStatsHandler(lotStore, wsHub, rateLimiter)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/lots", lotsHandler.ListLots)
	mux.HandleFunc("GET /v1/lots/{type}/{id}", lotsHandler.GetLot)
	mux.HandleFunc("GET /v1/lots/{type}/{id}/forecast", lotsHandler.GetForecast)
	mux.HandleFunc("GET /v1/lots/{type}/{id}/stalls", stallsHandler.GetStalls)
	mux.HandleFunc("PUT /v1/lots/{type}/{id}/stalls", stallsHandler.PutStalls)
	mux.HandleFunc("/v1/ws", wsHandler.ServeWS)

	mux.HandleFunc("GET /v1/stats", statsHandler.GetStats)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /healthz", healthHandler.Healthz)
	mux.HandleFunc("GET /readyz", healthHandler.Readyz)

	var root http.Handler = mux
	root = handler.CountMiddleware(root)
	root = handler.GzipMiddleware(root)
	root = handler.CORSMiddleware(root)
	root = rateLimiter.Middleware(root)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      root,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go wsHub.Run(ctx)

	go ing.Run(ctx)

	go func() {
		logger.Info("starting HTTP server", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// loadGeometry prefers the local GeoJSON snapshots; missing files fall
// back to a one-shot Overpass fetch.
func loadGeometry(cfg *config.Config, logger *slog.Logger) ([]domain.LotFeature, []domain.SpaceFeature, error) {
	lots, lotsErr := osm.LoadLots(cfg.LotsGeoJSONPath)
	spaces, spacesErr := osm.LoadSpaces(cfg.SpacesGeoJSONPath)
	if lotsErr == nil && spacesErr == nil {
		return lots, spaces, nil
	}

	logger.Warn("geometry snapshots unavailable, fetching from overpass",
		"lots_error", lotsErr, "spaces_error", spacesErr)

	provider := osm.NewProvider(cfg.OverpassURL, cfg.OverpassTimeout, logger)
	lots, err := provider.FetchLots(cfg.OverpassBBox)
	if err != nil {
		return nil, nil, err
	}
	spaces, err = provider.FetchSpaces(cfg.OverpassBBox)
	if err != nil {
		return nil, nil, err
	}
	return lots, spaces, nil
}

// loadPersisted seeds the in-memory stores from postgres so the history
// and manual stall layers survive restarts.
func loadPersisted(pg *repository.Postgres, s *store.Store, history *store.HistoryStore, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	observations, err := pg.RecentObservations(ctx, history.MaxPerLot())
	if err != nil {
		logger.Warn("failed to load history from postgres", "error", err)
	} else if len(observations) > 0 {
		history.Load(observations)
		logger.Info("history loaded from postgres", "observations", len(observations))
	}

	stalls, err := pg.LoadStalls(ctx)
	if err != nil {
		logger.Warn("failed to load stalls from postgres", "error", err)
		return
	}
	for lotID, set := range stalls {
		s.ReplaceStalls(lotID, set)
	}
	if len(stalls) > 0 {
		logger.Info("manual stalls loaded from postgres", "lots", len(stalls))
	}
}

// warmGarageSnapshot restores the last persisted garage snapshot so the
// first listing after a restart does not block on the external source.
func warmGarageSnapshot(redisCache *cache.Redis, res *resolver.Resolver, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var snap garage.Snapshot
	found, err := redisCache.GetJSON(ctx, cache.KeyGarageSnapshot, &snap)
	if err != nil {
		logger.Warn("failed to read garage snapshot from redis", "error", err)
		return
	}
	if found {
		res.WarmGarageSnapshot(snap)
		logger.Info("garage snapshot warmed from redis", "rows", len(snap.Rows), "fetched_at", snap.FetchedAt)
	}
}
