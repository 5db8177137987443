package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kjannette/cryptostats-backend/internal/models"
	"github.com/kjannette/cryptostats-backend/internal/repository"
)

// DeviationWindow is the number of most recent records the deviation covers.
const DeviationWindow = 100

const queryTimeout = 10 * time.Second

var (
	ErrInvalidCoin = errors.New("invalid coin")
	ErrNoData      = errors.New("no data for coin")
)

type Service struct {
	store repository.PriceStore
	coins models.CoinSet
	group singleflight.Group
}

func NewService(store repository.PriceStore, coins models.CoinSet) *Service {
	return &Service{store: store, coins: coins}
}

// Latest returns the most recent record for coin.
func (s *Service) Latest(ctx context.Context, coin string) (*models.PriceRecord, error) {
	if !s.coins.Contains(coin) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCoin, coin)
	}

	v, err := s.shared(ctx, "latest:"+coin, func(ctx context.Context) (any, error) {
		return s.store.Latest(ctx, coin)
	})
	if err != nil {
		return nil, fmt.Errorf("latest %s: %w", coin, err)
	}
	rec, _ := v.(*models.PriceRecord)
	if rec == nil {
		return nil, fmt.Errorf("%w %q", ErrNoData, coin)
	}
	return rec, nil
}

// Deviation returns the population standard deviation of price over the
// DeviationWindow most recent records, formatted to two decimals.
func (s *Service) Deviation(ctx context.Context, coin string) (string, error) {
	if !s.coins.Contains(coin) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCoin, coin)
	}

	v, err := s.shared(ctx, "recent:"+coin, func(ctx context.Context) (any, error) {
		return s.store.Recent(ctx, coin, DeviationWindow)
	})
	if err != nil {
		return "", fmt.Errorf("recent %s: %w", coin, err)
	}
	records, _ := v.([]models.PriceRecord)
	if len(records) == 0 {
		return "", fmt.Errorf("%w %q", ErrNoData, coin)
	}
	if len(records) > DeviationWindow {
		records = records[:DeviationWindow]
	}

	prices := make([]float64, len(records))
	for i, r := range records {
		prices[i] = r.Price
	}
	return FormatDeviation(PopulationStdDev(prices)), nil
}

// shared runs fn once per key for all concurrent callers. The store call is
// detached from any single caller's cancellation; each caller stops waiting
// when its own ctx is done.
func (s *Service) shared(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error) {
	ch := s.group.DoChan(key, func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), queryTimeout)
		defer cancel()
		return fn(qctx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
