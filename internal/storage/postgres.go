package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"arb-explorer/internal/opportunity"
)

const (
	pgSchemaSQL = `CREATE TABLE IF NOT EXISTS snapshots (
        id           TEXT PRIMARY KEY,
        fetched_at   TIMESTAMPTZ NOT NULL,
        timeframe    TEXT NOT NULL,
        min_profit   DOUBLE PRECISION NOT NULL DEFAULT 0,
        record_count INTEGER NOT NULL DEFAULT 0,
        sample_count INTEGER NOT NULL DEFAULT 0,
        excluded     INTEGER NOT NULL DEFAULT 0,
        summary      JSONB,
        records      JSONB NOT NULL,
        samples      JSONB NOT NULL,
        created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE INDEX IF NOT EXISTS idx_snapshots_fetched ON snapshots (fetched_at DESC);

    CREATE TABLE IF NOT EXISTS alerts (
        id             BIGSERIAL PRIMARY KEY,
        opportunity_ts TIMESTAMPTZ NOT NULL,
        direction      TEXT NOT NULL,
        net_profit     NUMERIC NOT NULL,
        threshold      NUMERIC NOT NULL,
        channels       TEXT[] NOT NULL DEFAULT '{}',
        created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (opportunity_ts, direction)
    );`

	insertSnapshotSQL = `INSERT INTO snapshots (
        id,
        fetched_at,
        timeframe,
        min_profit,
        record_count,
        sample_count,
        excluded,
        summary,
        records,
        samples
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
    )
    ON CONFLICT (id) DO NOTHING;`

	selectSnapshotColumns = `SELECT
        id,
        fetched_at,
        timeframe,
        min_profit,
        record_count,
        sample_count,
        excluded,
        created_at,
        summary,
        records,
        samples
    FROM snapshots`

	latestSnapshotSQL = selectSnapshotColumns + `
    ORDER BY fetched_at DESC, created_at DESC
    LIMIT 1;`

	snapshotByIDSQL = selectSnapshotColumns + `
    WHERE id = $1;`

	listSnapshotsSQL = `SELECT
        id,
        fetched_at,
        timeframe,
        min_profit,
        record_count,
        sample_count,
        excluded,
        created_at
    FROM snapshots
    ORDER BY fetched_at DESC
    LIMIT $1;`

	deleteSnapshotsBeforeSQL = `DELETE FROM snapshots WHERE fetched_at < $1;`

	insertAlertSQL = `INSERT INTO alerts (
        opportunity_ts,
        direction,
        net_profit,
        threshold,
        channels
    ) VALUES (
        $1,$2,$3,$4,$5
    )
    ON CONFLICT (opportunity_ts, direction) DO NOTHING;`

	listRecentAlertsSQL = `SELECT
        id,
        opportunity_ts,
        direction,
        net_profit::text,
        threshold::text,
        channels,
        created_at
    FROM alerts
    ORDER BY created_at DESC, id DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alerts WHERE created_at < $1;`
)

// PGStore archives snapshots and alerts in PostgreSQL.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wires a pgx pool into a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Migrate creates the archive tables when missing.
func (s *PGStore) Migrate(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, pgSchemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// SaveSnapshot persists snap. Saving the same id twice is a no-op.
func (s *PGStore) SaveSnapshot(ctx context.Context, snap opportunity.Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	payload, err := encodeSnapshot(&snap)
	if err != nil {
		return err
	}

	var summary any
	if payload.summary != nil {
		summary = payload.summary
	}

	_, execErr := pool.Exec(ctx, insertSnapshotSQL,
		snap.ID,
		snap.FetchedAt.UTC(),
		string(snap.Timeframe),
		snap.MinProfit,
		len(snap.Records),
		len(snap.Samples),
		snap.Excluded,
		summary,
		payload.records,
		payload.samples,
	)
	if execErr != nil {
		return fmt.Errorf("insert snapshot: %w", execErr)
	}
	return nil
}

// LatestSnapshot returns the most recently fetched snapshot.
func (s *PGStore) LatestSnapshot(ctx context.Context) (opportunity.Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return opportunity.Snapshot{}, err
	}
	return scanSnapshot(pool.QueryRow(ctx, latestSnapshotSQL))
}

// LoadSnapshot returns the snapshot with the given id.
func (s *PGStore) LoadSnapshot(ctx context.Context, id string) (opportunity.Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return opportunity.Snapshot{}, err
	}
	return scanSnapshot(pool.QueryRow(ctx, snapshotByIDSQL, id))
}

// ListSnapshots lists the most recent snapshots, newest first.
func (s *PGStore) ListSnapshots(ctx context.Context, limit int) ([]SnapshotMeta, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSnapshotsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list snapshots: %w", queryErr)
	}
	defer rows.Close()

	metas := make([]SnapshotMeta, 0, limit)
	for rows.Next() {
		var (
			meta      SnapshotMeta
			timeframe string
		)
		if err := rows.Scan(
			&meta.ID,
			&meta.FetchedAt,
			&timeframe,
			&meta.MinProfit,
			&meta.RecordCount,
			&meta.SampleCount,
			&meta.Excluded,
			&meta.CreatedAt,
		); err != nil {
			return nil, err
		}
		meta.Timeframe = opportunity.Timeframe(timeframe)
		metas = append(metas, meta)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return metas, nil
}

// DeleteSnapshotsBefore prunes snapshots fetched before olderThan.
func (s *PGStore) DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteSnapshotsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete snapshots before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// RecordAlert persists an alert emission once per opportunity.
func (s *PGStore) RecordAlert(ctx context.Context, alert AlertRecord) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	channels := alert.Channels
	if channels == nil {
		channels = []string{}
	}

	tag, execErr := pool.Exec(ctx, insertAlertSQL,
		alert.OpportunityTS.UTC(),
		string(alert.Direction),
		alert.NetProfit.String(),
		alert.Threshold.String(),
		channels,
	)
	if execErr != nil {
		return false, fmt.Errorf("insert alert: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *PGStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec          AlertRecord
			direction    string
			profitStr    string
			thresholdStr string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.OpportunityTS,
			&direction,
			&profitStr,
			&thresholdStr,
			&rec.Channels,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if err := fillAlertAmounts(&rec, profitStr, thresholdStr); err != nil {
			return nil, err
		}
		rec.Direction = opportunity.Direction(direction)
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *PGStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete alerts before: %w", execErr)
	}
	return nil
}

func scanSnapshot(row pgx.Row) (opportunity.Snapshot, error) {
	var (
		meta      SnapshotMeta
		timeframe string
		payload   snapshotPayload
	)
	if err := row.Scan(
		&meta.ID,
		&meta.FetchedAt,
		&timeframe,
		&meta.MinProfit,
		&meta.RecordCount,
		&meta.SampleCount,
		&meta.Excluded,
		&meta.CreatedAt,
		&payload.summary,
		&payload.records,
		&payload.samples,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return opportunity.Snapshot{}, ErrNoSnapshot
		}
		return opportunity.Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	meta.Timeframe = opportunity.Timeframe(timeframe)
	return decodeSnapshot(meta, payload)
}

func fillAlertAmounts(rec *AlertRecord, profitStr, thresholdStr string) error {
	var err error
	if rec.NetProfit, err = decimal.NewFromString(profitStr); err != nil {
		return fmt.Errorf("parse net profit: %w", err)
	}
	if rec.Threshold, err = decimal.NewFromString(thresholdStr); err != nil {
		return fmt.Errorf("parse threshold: %w", err)
	}
	return nil
}

var _ Archive = (*PGStore)(nil)
