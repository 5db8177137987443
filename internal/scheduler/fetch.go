package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kjannette/cryptostats-backend/internal/external"
	"github.com/kjannette/cryptostats-backend/internal/logging"
	"github.com/kjannette/cryptostats-backend/internal/models"
)

// ErrIncompleteQuote means the price API response lacked a requested coin
// or one of its fields. The whole run is dropped.
var ErrIncompleteQuote = errors.New("incomplete quote")

// PriceSource returns quotes for the given coin ids in a single call.
type PriceSource interface {
	SimplePrice(ctx context.Context, ids []string) (map[string]external.Quote, error)
}

// RecordWriter persists a batch of records atomically.
type RecordWriter interface {
	AppendBatch(ctx context.Context, records []models.PriceRecord) error
}

// Fetcher pulls one quote per coin and stores them as a single batch.
type Fetcher struct {
	source PriceSource
	store  RecordWriter
	coins  []string
	now    func() time.Time
}

func NewFetcher(source PriceSource, store RecordWriter, coins []string) *Fetcher {
	return &Fetcher{
		source: source,
		store:  store,
		coins:  append([]string(nil), coins...),
		now:    time.Now,
	}
}

// Run performs one fetch. Every record of a run shares one timestamp. Any
// error leaves the store untouched.
func (f *Fetcher) Run(ctx context.Context) error {
	quotes, err := f.source.SimplePrice(ctx, f.coins)
	if err != nil {
		return fmt.Errorf("fetch quotes: %w", err)
	}

	records, err := f.buildRecords(quotes)
	if err != nil {
		return err
	}

	if err := f.store.AppendBatch(ctx, records); err != nil {
		return fmt.Errorf("store %d records: %w", len(records), err)
	}

	logging.For("fetcher").WithField("records", len(records)).Info("price data stored")
	return nil
}

func (f *Fetcher) buildRecords(quotes map[string]external.Quote) ([]models.PriceRecord, error) {
	ts := f.now().UTC()
	records := make([]models.PriceRecord, 0, len(f.coins))
	for _, coin := range f.coins {
		q, ok := quotes[coin]
		if !ok {
			return nil, fmt.Errorf("%w: %s missing from response", ErrIncompleteQuote, coin)
		}
		if !q.Complete() {
			return nil, fmt.Errorf("%w: %s lacks price, market cap or 24h change", ErrIncompleteQuote, coin)
		}
		records = append(records, models.PriceRecord{
			Coin:      coin,
			Price:     *q.USD,
			MarketCap: *q.MarketCap,
			Change24h: *q.Change24h,
			Timestamp: ts,
		})
	}
	return records, nil
}
