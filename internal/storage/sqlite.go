package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"arb-explorer/internal/opportunity"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id           TEXT PRIMARY KEY,
    fetched_at   INTEGER NOT NULL,
    timeframe    TEXT    NOT NULL,
    min_profit   REAL    NOT NULL DEFAULT 0,
    record_count INTEGER NOT NULL DEFAULT 0,
    sample_count INTEGER NOT NULL DEFAULT 0,
    excluded     INTEGER NOT NULL DEFAULT 0,
    summary      BLOB,
    records      BLOB    NOT NULL,
    samples      BLOB    NOT NULL,
    created_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS alerts (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    opportunity_ts INTEGER NOT NULL,
    direction      TEXT    NOT NULL,
    net_profit     TEXT    NOT NULL,
    threshold      TEXT    NOT NULL,
    channels       TEXT    NOT NULL DEFAULT '',
    created_at     INTEGER NOT NULL,
    UNIQUE (opportunity_ts, direction)
);

CREATE INDEX IF NOT EXISTS idx_snapshots_fetched ON snapshots(fetched_at DESC);
CREATE INDEX IF NOT EXISTS idx_alerts_created    ON alerts(created_at DESC);
`

const sqliteSnapshotColumns = `SELECT id, fetched_at, timeframe, min_profit, record_count,
    sample_count, excluded, created_at, summary, records, samples FROM snapshots`

// SQLiteStore archives snapshots in a local SQLite file. Timestamps are
// stored as unix milliseconds.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, ErrNotConfigured
	}
	return s.db, nil
}

// SaveSnapshot persists snap. Saving the same id twice is a no-op.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap opportunity.Snapshot) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	payload, err := encodeSnapshot(&snap)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT OR IGNORE INTO snapshots
			(id, fetched_at, timeframe, min_profit, record_count, sample_count, excluded,
			 summary, records, samples, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID,
		snap.FetchedAt.UnixMilli(),
		string(snap.Timeframe),
		snap.MinProfit,
		len(snap.Records),
		len(snap.Samples),
		snap.Excluded,
		payload.summary,
		payload.records,
		payload.samples,
		s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently fetched snapshot.
func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (opportunity.Snapshot, error) {
	db, err := s.getDB()
	if err != nil {
		return opportunity.Snapshot{}, err
	}
	row := db.QueryRowContext(ctx, sqliteSnapshotColumns+` ORDER BY fetched_at DESC, created_at DESC LIMIT 1`)
	return scanSQLiteSnapshot(row)
}

// LoadSnapshot returns the snapshot with the given id.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, id string) (opportunity.Snapshot, error) {
	db, err := s.getDB()
	if err != nil {
		return opportunity.Snapshot{}, err
	}
	row := db.QueryRowContext(ctx, sqliteSnapshotColumns+` WHERE id = ?`, id)
	return scanSQLiteSnapshot(row)
}

// ListSnapshots lists the most recent snapshots, newest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, limit int) ([]SnapshotMeta, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, fetched_at, timeframe, min_profit, record_count, sample_count, excluded, created_at
		FROM snapshots ORDER BY fetched_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var metas []SnapshotMeta
	for rows.Next() {
		var (
			meta               SnapshotMeta
			timeframe          string
			fetchedMs, created int64
		)
		if err := rows.Scan(&meta.ID, &fetchedMs, &timeframe, &meta.MinProfit,
			&meta.RecordCount, &meta.SampleCount, &meta.Excluded, &created); err != nil {
			return nil, err
		}
		meta.FetchedAt = time.UnixMilli(fetchedMs).UTC()
		meta.CreatedAt = time.UnixMilli(created).UTC()
		meta.Timeframe = opportunity.Timeframe(timeframe)
		metas = append(metas, meta)
	}
	return metas, rows.Err()
}

// DeleteSnapshotsBefore prunes snapshots fetched before olderThan.
func (s *SQLiteStore) DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	db, err := s.getDB()
	if err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx, `DELETE FROM snapshots WHERE fetched_at < ?`, olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("delete snapshots before: %w", err)
	}
	return res.RowsAffected()
}

// RecordAlert persists an alert emission once per opportunity.
func (s *SQLiteStore) RecordAlert(ctx context.Context, alert AlertRecord) (bool, error) {
	db, err := s.getDB()
	if err != nil {
		return false, err
	}
	res, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO alerts (opportunity_ts, direction, net_profit, threshold, channels, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		alert.OpportunityTS.UnixMilli(),
		string(alert.Direction),
		alert.NetProfit.String(),
		alert.Threshold.String(),
		strings.Join(alert.Channels, ","),
		s.now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *SQLiteStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, opportunity_ts, direction, net_profit, threshold, channels, created_at
		FROM alerts ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}
	defer rows.Close()

	var alerts []AlertRecord
	for rows.Next() {
		var (
			rec                     AlertRecord
			tsMs, createdMs         int64
			direction, channels     string
			profitStr, thresholdStr string
		)
		if err := rows.Scan(&rec.ID, &tsMs, &direction, &profitStr, &thresholdStr, &channels, &createdMs); err != nil {
			return nil, err
		}
		if err := fillAlertAmounts(&rec, profitStr, thresholdStr); err != nil {
			return nil, err
		}
		rec.OpportunityTS = time.UnixMilli(tsMs).UTC()
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		rec.Direction = opportunity.Direction(direction)
		if channels != "" {
			rec.Channels = strings.Split(channels, ",")
		}
		alerts = append(alerts, rec)
	}
	return alerts, rows.Err()
}

// DeleteAlertsBefore deletes historical alerts.
func (s *SQLiteStore) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, olderThan.UnixMilli()); err != nil {
		return fmt.Errorf("delete alerts before: %w", err)
	}
	return nil
}

func scanSQLiteSnapshot(row *sql.Row) (opportunity.Snapshot, error) {
	var (
		meta               SnapshotMeta
		timeframe          string
		fetchedMs, created int64
		payload            snapshotPayload
	)
	if err := row.Scan(&meta.ID, &fetchedMs, &timeframe, &meta.MinProfit, &meta.RecordCount,
		&meta.SampleCount, &meta.Excluded, &created,
		&payload.summary, &payload.records, &payload.samples); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return opportunity.Snapshot{}, ErrNoSnapshot
		}
		return opportunity.Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	meta.FetchedAt = time.UnixMilli(fetchedMs).UTC()
	meta.CreatedAt = time.UnixMilli(created).UTC()
	meta.Timeframe = opportunity.Timeframe(timeframe)
	return decodeSnapshot(meta, payload)
}

var _ Archive = (*SQLiteStore)(nil)
