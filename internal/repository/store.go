package repository

import (
	"context"
	"time"

	"github.com/kjannette/cryptostats-backend/internal/models"
)

// PriceStore is the append-only collection of price snapshots.
type PriceStore interface {
	// AppendBatch writes all records or none of them.
	AppendBatch(ctx context.Context, records []models.PriceRecord) error
	// Latest returns the record with the greatest timestamp for coin, or
	// nil when the coin has no records.
	Latest(ctx context.Context, coin string) (*models.PriceRecord, error)
	// Recent returns up to limit records for coin, newest first.
	Recent(ctx context.Context, coin string, limit int) ([]models.PriceRecord, error)
	Ping(ctx context.Context) error
}

func stampRecords(records []models.PriceRecord, now func() time.Time) []models.PriceRecord {
	out := make([]models.PriceRecord, len(records))
	ts := now()
	for i, r := range records {
		if r.Timestamp.IsZero() {
			r.Timestamp = ts
		}
		out[i] = r
	}
	return out
}
