package stats_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kjannette/cryptostats-backend/internal/models"
	"github.com/kjannette/cryptostats-backend/internal/repository"
	"github.com/kjannette/cryptostats-backend/internal/stats"
)

var coins = models.NewCoinSet(models.DefaultCoins)

var base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, store repository.PriceStore, coin string, prices ...float64) {
	t.Helper()
	records := make([]models.PriceRecord, len(prices))
	for i, p := range prices {
		records[i] = models.PriceRecord{Coin: coin, Price: p, Timestamp: base.Add(time.Duration(i) * time.Hour)}
	}
	require.NoError(t, store.AppendBatch(context.Background(), records))
}

func TestService_InvalidCoin(t *testing.T) {
	svc := stats.NewService(repository.NewMemoryPriceRepo(), coins)

	for _, coin := range []string{"", "dogecoin", "Bitcoin", "btc"} {
		_, err := svc.Latest(context.Background(), coin)
		require.ErrorIs(t, err, stats.ErrInvalidCoin, coin)

		_, err = svc.Deviation(context.Background(), coin)
		require.ErrorIs(t, err, stats.ErrInvalidCoin, coin)
	}
}

func TestService_NoData(t *testing.T) {
	svc := stats.NewService(repository.NewMemoryPriceRepo(), coins)

	_, err := svc.Latest(context.Background(), "bitcoin")
	require.ErrorIs(t, err, stats.ErrNoData)

	_, err = svc.Deviation(context.Background(), "bitcoin")
	require.ErrorIs(t, err, stats.ErrNoData)
}

func TestService_LatestIgnoresInsertionOrder(t *testing.T) {
	store := repository.NewMemoryPriceRepo()
	ctx := context.Background()
	require.NoError(t, store.AppendBatch(ctx, []models.PriceRecord{
		{Coin: "ethereum", Price: 3600, MarketCap: 4.3e11, Change24h: 2.5, Timestamp: base.Add(3 * time.Hour)},
	}))
	require.NoError(t, store.AppendBatch(ctx, []models.PriceRecord{
		{Coin: "ethereum", Price: 3400, MarketCap: 4.1e11, Change24h: -1, Timestamp: base},
	}))

	svc := stats.NewService(store, coins)
	rec, err := svc.Latest(context.Background(), "ethereum")
	require.NoError(t, err)
	require.Equal(t, 3600.0, rec.Price)
	require.Equal(t, 4.3e11, rec.MarketCap)
	require.Equal(t, 2.5, rec.Change24h)
}

func TestService_Deviation(t *testing.T) {
	store := repository.NewMemoryPriceRepo()
	seed(t, store, "bitcoin", 10, 20, 30)
	seed(t, store, "ethereum", 3500)

	svc := stats.NewService(store, coins)

	dev, err := svc.Deviation(context.Background(), "bitcoin")
	require.NoError(t, err)
	require.Equal(t, "8.16", dev)

	dev, err = svc.Deviation(context.Background(), "ethereum")
	require.NoError(t, err)
	require.Equal(t, "0.00", dev)
}

func TestService_DeviationWindow(t *testing.T) {
	store := repository.NewMemoryPriceRepo()
	ctx := context.Background()

	recent := make([]models.PriceRecord, stats.DeviationWindow)
	for i := range recent {
		price := 10.0
		if i%2 == 1 {
			price = 30
		}
		recent[i] = models.PriceRecord{Coin: "matic-network", Price: price, Timestamp: base.Add(time.Duration(1000+i) * time.Minute)}
	}
	require.NoError(t, store.AppendBatch(ctx, recent))

	// Older outliers are written afterwards; they must fall outside the window.
	old := make([]models.PriceRecord, 50)
	for i := range old {
		old[i] = models.PriceRecord{Coin: "matic-network", Price: 1e6, Timestamp: base.Add(time.Duration(i) * time.Minute)}
	}
	require.NoError(t, store.AppendBatch(ctx, old))

	svc := stats.NewService(store, coins)
	dev, err := svc.Deviation(context.Background(), "matic-network")
	require.NoError(t, err)
	require.Equal(t, "10.00", dev)
}

type failingStore struct {
	repository.PriceStore
	err error
}

func (f failingStore) Latest(context.Context, string) (*models.PriceRecord, error) {
	return nil, f.err
}

func (f failingStore) Recent(context.Context, string, int) ([]models.PriceRecord, error) {
	return nil, f.err
}

func TestService_StoreFailure(t *testing.T) {
	boom := errors.New("connection refused")
	svc := stats.NewService(failingStore{err: boom}, coins)

	_, err := svc.Latest(context.Background(), "bitcoin")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, stats.ErrNoData)

	_, err = svc.Deviation(context.Background(), "bitcoin")
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, stats.ErrInvalidCoin)
}

func TestService_ConcurrentReads(t *testing.T) {
	store := repository.NewMemoryPriceRepo()
	seed(t, store, "bitcoin", 10, 20, 30)
	svc := stats.NewService(store, coins)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dev, err := svc.Deviation(context.Background(), "bitcoin")
			if err != nil || dev != "8.16" {
				t.Errorf("Deviation = %q, %v", dev, err)
			}
			rec, err := svc.Latest(context.Background(), "bitcoin")
			if err != nil || rec.Price != 30 {
				t.Errorf("Latest = %+v, %v", rec, err)
			}
		}()
	}
	wg.Wait()
}

// gatedStore holds reads until release is closed and reports a read that saw
// its context cancelled.
type gatedStore struct {
	repository.PriceStore
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) wait(ctx context.Context) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gatedStore) Latest(ctx context.Context, coin string) (*models.PriceRecord, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.PriceStore.Latest(ctx, coin)
}

func (g *gatedStore) Recent(ctx context.Context, coin string, limit int) ([]models.PriceRecord, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	return g.PriceStore.Recent(ctx, coin, limit)
}

func TestService_CancelledCallerDoesNotFailOthers(t *testing.T) {
	mem := repository.NewMemoryPriceRepo()
	seed(t, mem, "bitcoin", 42)
	store := &gatedStore{PriceStore: mem, entered: make(chan struct{}, 1), release: make(chan struct{})}
	svc := stats.NewService(store, coins)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := svc.Deviation(ctxA, "bitcoin")
		errA <- err
	}()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first read never reached the store")
	}

	type result struct {
		dev string
		err error
	}
	resB := make(chan result, 1)
	go func() {
		dev, err := svc.Deviation(context.Background(), "bitcoin")
		resB <- result{dev, err}
	}()
	time.Sleep(50 * time.Millisecond)

	// The first caller goes away while the shared read is in flight.
	cancelA()
	select {
	case err := <-errA:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(store.release)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		require.Equal(t, "0.00", r.dev)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}

	rec, err := svc.Latest(context.Background(), "bitcoin")
	require.NoError(t, err)
	require.Equal(t, 42.0, rec.Price)
}
