package ingestor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lotwatch/internal/domain"
	"lotwatch/internal/metrics"
	"lotwatch/internal/resolver"
	"lotwatch/internal/store"
)

// FeedSource is the live per-space occupancy feed.
type FeedSource interface {
	Fetch(ctx context.Context) (*domain.OccupancyBatch, error)
}

// Broadcaster pushes lot count changes to dashboard subscribers.
type Broadcaster interface {
	Broadcast(deltas []domain.LotDelta)
}

// HistorySink optionally persists slot observations beyond process memory.
type HistorySink interface {
	SaveObservation(ctx context.Context, obs domain.SlotObservation) error
}

// Ingestor polls the occupancy feed, replaces the store's batch wholesale,
// resolves the lot listing, broadcasts count deltas, and samples one
// history observation per lot per time slot.
type Ingestor struct {
	feed            FeedSource
	store           *store.Store
	history         *store.HistoryStore
	sink            HistorySink
	resolver        *resolver.Resolver
	broadcaster     Broadcaster
	pollInterval    time.Duration
	slotGranularity time.Duration
	logger          *slog.Logger

	lastCounts map[string]domain.Counts
	lastSlot   string

	ready   bool
	readyMu sync.RWMutex
}

func New(feed FeedSource, s *store.Store, history *store.HistoryStore, sink HistorySink, res *resolver.Resolver, broadcaster Broadcaster, pollInterval, slotGranularity time.Duration, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		feed:            feed,
		store:           s,
		history:         history,
		sink:            sink,
		resolver:        res,
		broadcaster:     broadcaster,
		pollInterval:    pollInterval,
		slotGranularity: slotGranularity,
		logger:          logger.With("component", "ingestor"),
		lastCounts:      make(map[string]domain.Counts),
	}
}

func (i *Ingestor) Run(ctx context.Context) {
	ticker := time.NewTicker(i.pollInterval)
	defer ticker.Stop()

	i.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			i.poll(ctx)
		}
	}
}

func (i *Ingestor) poll(ctx context.Context) {
	start := time.Now()
	metrics.FeedPollsTotal.Inc()

	batch, err := i.feed.Fetch(ctx)
	if err != nil {
		metrics.FeedPollErrorsTotal.Inc()
		i.logger.Error("failed to fetch occupancy feed", "error", err)
		// the previous batch stays in place; listings degrade to stale
	} else {
		i.store.ReplaceOccupancy(batch)
		if !i.IsReady() {
			i.setReady(true)
			i.logger.Info("ingestor ready", "slots", len(batch.Occupied))
		}
	}

	summaries := i.resolver.ListSummaries(ctx, resolver.ListFilter{})
	deltas := i.diff(summaries)

	if i.broadcaster != nil && len(deltas) > 0 {
		i.broadcaster.Broadcast(deltas)
	}

	i.sample(ctx, summaries)

	i.logger.Debug("poll completed",
		"lots", len(summaries),
		"deltas", len(deltas),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// diff compares resolved counts against the previous cycle and emits one
// delta per changed lot.
func (i *Ingestor) diff(summaries []domain.LotSummary) []domain.LotDelta {
	now := time.Now()
	var deltas []domain.LotDelta
	for _, s := range summaries {
		if prev, seen := i.lastCounts[s.ID]; seen && prev == s.Counts {
			continue
		}
		i.lastCounts[s.ID] = s.Counts
		deltas = append(deltas, domain.LotDelta{
			LotID:     s.ID,
			Counts:    s.Counts,
			UpdatedAt: now,
		})
	}
	return deltas
}

// sample appends one observation per lot when the clock crosses into a new
// time slot. The open figure recorded follows the configured
// unknown-as-open policy so forecasts match what the dashboard displays.
func (i *Ingestor) sample(ctx context.Context, summaries []domain.LotSummary) {
	now := time.Now()
	slot := now.Truncate(i.slotGranularity).Format("15:04")
	slotKey := fmt.Sprintf("%d/%s", now.Weekday(), slot)
	if slotKey == i.lastSlot {
		return
	}
	i.lastSlot = slotKey

	for _, s := range summaries {
		obs := domain.SlotObservation{
			LotID:      s.ID,
			Weekday:    now.Weekday(),
			Slot:       slot,
			OpenCount:  s.Counts.Available(i.resolver.UnknownAsOpen()),
			ObservedAt: now,
		}
		i.history.Append(obs)
		if i.sink != nil {
			if err := i.sink.SaveObservation(ctx, obs); err != nil {
				i.logger.Warn("failed to persist observation", "lot_id", s.ID, "error", err)
			}
		}
	}
	i.logger.Debug("sampled history slot", "slot", slot, "lots", len(summaries))
}

func (i *Ingestor) IsReady() bool {
	i.readyMu.RLock()
	defer i.readyMu.RUnlock()
	return i.ready
}

func (i *Ingestor) setReady(ready bool) {
	i.readyMu.Lock()
	defer i.readyMu.Unlock()
	i.ready = ready
}
