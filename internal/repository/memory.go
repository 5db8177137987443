package repository

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/kjannette/cryptostats-backend/internal/models"
)

// MemoryPriceRepo keeps records in process memory. Nothing survives a
// restart.
type MemoryPriceRepo struct {
	mu      sync.RWMutex
	records []models.PriceRecord
	now     func() time.Time
}

func NewMemoryPriceRepo() *MemoryPriceRepo {
	return &MemoryPriceRepo{now: time.Now}
}

func (r *MemoryPriceRepo) AppendBatch(_ context.Context, records []models.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	stamped := stampRecords(records, r.now)

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range stamped {
		stamped[i].ID = strconv.Itoa(len(r.records) + i + 1)
	}
	r.records = append(r.records, stamped...)
	return nil
}

func (r *MemoryPriceRepo) Latest(ctx context.Context, coin string) (*models.PriceRecord, error) {
	recent, err := r.Recent(ctx, coin, 1)
	if err != nil || len(recent) == 0 {
		return nil, err
	}
	return &recent[0], nil
}

// Recent orders by timestamp descending; records sharing a timestamp come
// back in reverse insertion order.
func (r *MemoryPriceRepo) Recent(_ context.Context, coin string, limit int) ([]models.PriceRecord, error) {
	r.mu.RLock()
	var matched []models.PriceRecord
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].Coin == coin {
			matched = append(matched, r.records[i])
		}
	}
	r.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b models.PriceRecord) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit >= 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *MemoryPriceRepo) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored records.
func (r *MemoryPriceRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
