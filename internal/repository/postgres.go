// Package repository provides optional Postgres write-through for the
// data that should survive a restart: the history log and manual stalls.
// In-memory stores remain the source of truth for reads.
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"lotwatch/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS slot_observations (
	id          BIGSERIAL PRIMARY KEY,
	lot_id      TEXT        NOT NULL,
	weekday     INT         NOT NULL,
	slot        TEXT        NOT NULL,
	open_count  INT         NOT NULL,
	observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_slot_observations_lot
	ON slot_observations (lot_id, observed_at DESC);

CREATE TABLE IF NOT EXISTS manual_stalls (
	lot_id     TEXT        NOT NULL,
	stall_id   TEXT        NOT NULL,
	ring       JSONB       NOT NULL,
	permits    JSONB       NOT NULL,
	status     TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (lot_id, stall_id)
);
`

type Postgres struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewPostgres(connStr string, logger *slog.Logger) (*Postgres, error) {
	db, err := sqlx.Connect("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &Postgres{
		db:     db,
		logger: logger.With("component", "postgres"),
	}, nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// SaveObservation appends one history row.
func (p *Postgres) SaveObservation(ctx context.Context, obs domain.SlotObservation) error {
	const query = `
		INSERT INTO slot_observations (lot_id, weekday, slot, open_count, observed_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := p.db.ExecContext(ctx, query,
		obs.LotID, int(obs.Weekday), obs.Slot, obs.OpenCount, obs.ObservedAt)
	if err != nil {
		return fmt.Errorf("inserting observation: %w", err)
	}
	return nil
}

type observationRow struct {
	LotID      string    `db:"lot_id"`
	Weekday    int       `db:"weekday"`
	Slot       string    `db:"slot"`
	OpenCount  int       `db:"open_count"`
	ObservedAt time.Time `db:"observed_at"`
}

// RecentObservations loads the retained history window, oldest first, for
// seeding the in-memory store at startup.
func (p *Postgres) RecentObservations(ctx context.Context, perLot int) ([]domain.SlotObservation, error) {
	const query = `
		SELECT lot_id, weekday, slot, open_count, observed_at FROM (
			SELECT lot_id, weekday, slot, open_count, observed_at,
			       ROW_NUMBER() OVER (PARTITION BY lot_id ORDER BY observed_at DESC) AS rn
			FROM slot_observations
		) windowed
		WHERE rn <= $1
		ORDER BY observed_at ASC`

	var rows []observationRow
	if err := p.db.SelectContext(ctx, &rows, query, perLot); err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}

	out := make([]domain.SlotObservation, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.SlotObservation{
			LotID:      r.LotID,
			Weekday:    time.Weekday(r.Weekday),
			Slot:       r.Slot,
			OpenCount:  r.OpenCount,
			ObservedAt: r.ObservedAt,
		})
	}
	return out, nil
}

// ReplaceStalls mirrors the in-memory full-replace semantics: the lot's
// previous rows are deleted in the same transaction.
func (p *Postgres) ReplaceStalls(ctx context.Context, lotID string, stalls []domain.ManualStall) error {
	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM manual_stalls WHERE lot_id = $1`, lotID); err != nil {
		return fmt.Errorf("clearing stalls: %w", err)
	}

	const insert = `
		INSERT INTO manual_stalls (lot_id, stall_id, ring, permits, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	now := time.Now()
	for _, stall := range stalls {
		ring, err := json.Marshal(stall.Ring)
		if err != nil {
			return fmt.Errorf("encoding ring for stall %s: %w", stall.ID, err)
		}
		permits, err := json.Marshal(stall.Permits)
		if err != nil {
			return fmt.Errorf("encoding permits for stall %s: %w", stall.ID, err)
		}
		if _, err := tx.ExecContext(ctx, insert,
			lotID, stall.ID, ring, permits, string(stall.Status), now); err != nil {
			return fmt.Errorf("inserting stall %s: %w", stall.ID, err)
		}
	}

	return tx.Commit()
}

type stallRow struct {
	LotID   string `db:"lot_id"`
	StallID string `db:"stall_id"`
	Ring    []byte `db:"ring"`
	Permits []byte `db:"permits"`
	Status  string `db:"status"`
}

// LoadStalls returns all persisted manual stall sets keyed by lot ID.
func (p *Postgres) LoadStalls(ctx context.Context) (map[string][]domain.ManualStall, error) {
	var rows []stallRow
	const query = `SELECT lot_id, stall_id, ring, permits, status FROM manual_stalls`
	if err := p.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("querying stalls: %w", err)
	}

	out := make(map[string][]domain.ManualStall)
	for _, r := range rows {
		stall := domain.ManualStall{
			ID:     r.StallID,
			LotID:  r.LotID,
			Status: domain.StallStatus(r.Status),
		}
		if err := json.Unmarshal(r.Ring, &stall.Ring); err != nil {
			p.logger.Warn("skipping stall with bad ring data", "lot_id", r.LotID, "stall_id", r.StallID, "error", err)
			continue
		}
		if err := json.Unmarshal(r.Permits, &stall.Permits); err != nil {
			p.logger.Warn("skipping stall with bad permit data", "lot_id", r.LotID, "stall_id", r.StallID, "error", err)
			continue
		}
		out[r.LotID] = append(out[r.LotID], stall)
	}
	return out, nil
}
