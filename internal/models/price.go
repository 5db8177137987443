package models

import (
	"slices"
	"time"
)

// DefaultCoins is the CoinGecko id allow-list used when none is configured.
var DefaultCoins = []string{"bitcoin", "matic-network", "ethereum"}

// PriceRecord is one persisted snapshot for a coin. Records are never
// updated after they are written.
type PriceRecord struct {
	ID        string    `json:"id,omitempty"`
	Coin      string    `json:"coin"`
	Price     float64   `json:"price"`
	MarketCap float64   `json:"marketCap"`
	Change24h float64   `json:"change24h"`
	Timestamp time.Time `json:"timestamp"`
}

// CoinSet is a fixed allow-list of coin ids.
type CoinSet struct {
	ids []string
}

func NewCoinSet(ids []string) CoinSet {
	return CoinSet{ids: slices.Clone(ids)}
}

func (c CoinSet) Contains(coin string) bool {
	return coin != "" && slices.Contains(c.ids, coin)
}

func (c CoinSet) IDs() []string {
	return slices.Clone(c.ids)
}
