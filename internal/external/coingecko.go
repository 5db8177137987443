package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/kjannette/cryptostats-backend/internal/httputil"
)

const DefaultCoinGeckoURL = "https://api.coingecko.com/api/v3/simple/price"

// ErrUpstream wraps every failure talking to the price API.
var ErrUpstream = errors.New("price api failure")

// Quote is one coin's entry in a /simple/price response. Fields the API left
// out are nil.
type Quote struct {
	USD       *float64 `json:"usd"`
	MarketCap *float64 `json:"usd_market_cap"`
	Change24h *float64 `json:"usd_24h_change"`
}

// Complete reports whether price, market cap and 24h change are all present.
func (q Quote) Complete() bool {
	return q.USD != nil && q.MarketCap != nil && q.Change24h != nil
}

type CoinGeckoOptions struct {
	BaseURL     string
	APIKey      string
	APIKeyParam string
	HTTPClient  *http.Client
}

type CoinGeckoClient struct {
	baseURL     string
	apiKey      string
	apiKeyParam string
	httpClient  *http.Client
}

func NewCoinGeckoClient(opts CoinGeckoOptions) *CoinGeckoClient {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultCoinGeckoURL
	}
	if opts.APIKeyParam == "" {
		opts.APIKeyParam = "x_cg_pro_api_key"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = httputil.NewClient(0)
	}
	return &CoinGeckoClient{
		baseURL:     opts.BaseURL,
		apiKey:      opts.APIKey,
		apiKeyParam: opts.APIKeyParam,
		httpClient:  opts.HTTPClient,
	}
}

// SimplePrice fetches USD price, market cap and 24h change for ids in one
// request. The returned map is keyed by coin id and may lack ids the API did
// not know about.
func (c *CoinGeckoClient) SimplePrice(ctx context.Context, ids []string) (map[string]Quote, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no coin ids requested", ErrUpstream)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrUpstream, err)
	}
	q := u.Query()
	q.Set("ids", strings.Join(ids, ","))
	q.Set("vs_currencies", "usd")
	q.Set("include_market_cap", "true")
	q.Set("include_24hr_change", "true")
	if c.apiKey != "" {
		q.Set(c.apiKeyParam, c.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstream, err)
	}

	resp, err := httputil.Do(ctx, c.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("%w: coingecko fetch: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	var data map[string]Quote
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrUpstream, err)
	}
	return data, nil
}
