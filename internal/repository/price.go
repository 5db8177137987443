package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kjannette/cryptostats-backend/internal/models"
)

const priceTable = "crypto_prices"

var priceColumns = []string{"coin", "price", "market_cap", "change_24h", "timestamp"}

type PriceRepo struct {
	pool *pgxpool.Pool
}

func NewPriceRepo(pool *pgxpool.Pool) *PriceRepo {
	return &PriceRepo{pool: pool}
}

// AppendBatch copies records inside a single transaction.
func (r *PriceRepo) AppendBatch(ctx context.Context, records []models.PriceRecord) error {
	if len(records) == 0 {
		return nil
	}
	records = stampRecords(records, time.Now)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx,
		pgx.Identifier{priceTable},
		priceColumns,
		pgx.CopyFromSlice(len(records), func(i int) ([]any, error) {
			rec := records[i]
			return []any{rec.Coin, rec.Price, rec.MarketCap, rec.Change24h, rec.Timestamp}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("copy %d records: %w", len(records), err)
	}
	if int(n) != len(records) {
		return fmt.Errorf("copy: wrote %d of %d records", n, len(records))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PriceRepo) Latest(ctx context.Context, coin string) (*models.PriceRecord, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, coin, price, market_cap, change_24h, timestamp
		 FROM crypto_prices WHERE coin = $1
		 ORDER BY timestamp DESC, id DESC LIMIT 1`,
		coin,
	)
	p, err := scanPrice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *PriceRepo) Recent(ctx context.Context, coin string, limit int) ([]models.PriceRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, coin, price, market_cap, change_24h, timestamp
		 FROM crypto_prices WHERE coin = $1
		 ORDER BY timestamp DESC, id DESC LIMIT $2`,
		coin, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPrices(rows)
}

func (r *PriceRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// --- scan helpers ---

type scannable interface {
	Scan(dest ...any) error
}

func scanPrice(row scannable) (*models.PriceRecord, error) {
	var p models.PriceRecord
	var id int64
	if err := row.Scan(&id, &p.Coin, &p.Price, &p.MarketCap, &p.Change24h, &p.Timestamp); err != nil {
		return nil, err
	}
	p.ID = strconv.FormatInt(id, 10)
	return &p, nil
}

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func collectPrices(rows rowsIter) ([]models.PriceRecord, error) {
	var out []models.PriceRecord
	for rows.Next() {
		p, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
