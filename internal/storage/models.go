package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arb-explorer/internal/opportunity"
)

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: not configured")
	// ErrNoSnapshot is returned when the archive holds no matching snapshot.
	ErrNoSnapshot = errors.New("storage: no snapshot")
)

// SnapshotMeta describes an archived snapshot without its payload.
type SnapshotMeta struct {
	ID          string
	FetchedAt   time.Time
	Timeframe   opportunity.Timeframe
	MinProfit   float64
	RecordCount int
	SampleCount int
	Excluded    int
	CreatedAt   time.Time
}

// AlertRecord captures an emitted alert for de-duplication/auditing.
type AlertRecord struct {
	ID            int64
	OpportunityTS time.Time
	Direction     opportunity.Direction
	NetProfit     decimal.Decimal
	Threshold     decimal.Decimal
	Channels      []string
	CreatedAt     time.Time
}

// SnapshotStore archives fetched snapshots so offline commands can reuse them.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snap opportunity.Snapshot) error
	LatestSnapshot(ctx context.Context) (opportunity.Snapshot, error)
	LoadSnapshot(ctx context.Context, id string) (opportunity.Snapshot, error)
	ListSnapshots(ctx context.Context, limit int) ([]SnapshotMeta, error)
	DeleteSnapshotsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	// RecordAlert stores alert unless one already exists for the same
	// opportunity; inserted is false for duplicates.
	RecordAlert(ctx context.Context, alert AlertRecord) (inserted bool, err error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) error
}

// Archive is a complete storage backend.
type Archive interface {
	SnapshotStore
	AlertStore
	Close() error
}

// snapshotPayload is the encoded body of one snapshot row.
type snapshotPayload struct {
	records []byte
	samples []byte
	summary []byte
}

func encodeSnapshot(snap *opportunity.Snapshot) (snapshotPayload, error) {
	if snap.ID == "" {
		snap.ID = uuid.NewString()
	}
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}

	var (
		p   snapshotPayload
		err error
	)
	if p.records, err = opportunity.EncodeRecords(snap.Records); err != nil {
		return p, fmt.Errorf("encode records: %w", err)
	}
	if p.samples, err = opportunity.EncodeSamples(snap.Samples); err != nil {
		return p, fmt.Errorf("encode samples: %w", err)
	}
	if snap.Summary != nil {
		if p.summary, err = json.Marshal(snap.Summary); err != nil {
			return p, fmt.Errorf("encode summary: %w", err)
		}
	}
	return p, nil
}

func decodeSnapshot(meta SnapshotMeta, p snapshotPayload) (opportunity.Snapshot, error) {
	records, badRecords, err := opportunity.DecodeRecords(p.records)
	if err != nil {
		return opportunity.Snapshot{}, fmt.Errorf("decode records: %w", err)
	}
	samples, badSamples, err := opportunity.DecodeSamples(p.samples)
	if err != nil {
		return opportunity.Snapshot{}, fmt.Errorf("decode samples: %w", err)
	}

	snap := opportunity.Snapshot{
		ID:        meta.ID,
		FetchedAt: meta.FetchedAt.UTC(),
		Timeframe: meta.Timeframe,
		MinProfit: meta.MinProfit,
		Samples:   samples,
		Records:   records,
		Excluded:  meta.Excluded + badRecords + badSamples,
	}
	if len(p.summary) > 0 {
		summary, err := opportunity.DecodeSummary(p.summary)
		if err != nil {
			return opportunity.Snapshot{}, err
		}
		snap.Summary = &summary
	}
	return snap, nil
}
