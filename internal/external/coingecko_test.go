package external_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kjannette/cryptostats-backend/internal/external"
)

func TestSimplePrice_QueryAndDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "bitcoin,ethereum", q.Get("ids"))
		require.Equal(t, "usd", q.Get("vs_currencies"))
		require.Equal(t, "true", q.Get("include_market_cap"))
		require.Equal(t, "true", q.Get("include_24hr_change"))
		require.Equal(t, "secret", q.Get("x_cg_demo_api_key"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"bitcoin": {"usd": 67000.5, "usd_market_cap": 1.3e12, "usd_24h_change": -1.25},
			"ethereum": {"usd": 3500}
		}`))
	}))
	defer srv.Close()

	client := external.NewCoinGeckoClient(external.CoinGeckoOptions{
		BaseURL:     srv.URL,
		APIKey:      "secret",
		APIKeyParam: "x_cg_demo_api_key",
	})

	quotes, err := client.SimplePrice(context.Background(), []string{"bitcoin", "ethereum"})
	require.NoError(t, err)
	require.Len(t, quotes, 2)

	btc := quotes["bitcoin"]
	require.True(t, btc.Complete())
	require.Equal(t, 67000.5, *btc.USD)
	require.Equal(t, 1.3e12, *btc.MarketCap)
	require.Equal(t, -1.25, *btc.Change24h)

	eth := quotes["ethereum"]
	require.False(t, eth.Complete(), "quote without market cap must be incomplete")
}

func TestSimplePrice_OmitsEmptyAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.URL.Query()["x_cg_pro_api_key"]
		require.False(t, present)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := external.NewCoinGeckoClient(external.CoinGeckoOptions{BaseURL: srv.URL})
	quotes, err := client.SimplePrice(context.Background(), []string{"bitcoin"})
	require.NoError(t, err)
	require.Empty(t, quotes)
}

func TestSimplePrice_Failures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"rate limited", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"malformed body", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"bitcoin": [`))
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			client := external.NewCoinGeckoClient(external.CoinGeckoOptions{BaseURL: srv.URL})
			_, err := client.SimplePrice(context.Background(), []string{"bitcoin"})
			require.Error(t, err)
			require.True(t, errors.Is(err, external.ErrUpstream), "got %v", err)
		})
	}
}

func TestSimplePrice_NoIDs(t *testing.T) {
	client := external.NewCoinGeckoClient(external.CoinGeckoOptions{})
	_, err := client.SimplePrice(context.Background(), nil)
	require.ErrorIs(t, err, external.ErrUpstream)
}

func TestSimplePrice_Unreachable(t *testing.T) {
	client := external.NewCoinGeckoClient(external.CoinGeckoOptions{BaseURL: "http://localhost:1/simple/price"})
	_, err := client.SimplePrice(context.Background(), []string{"bitcoin"})
	require.ErrorIs(t, err, external.ErrUpstream)
}
