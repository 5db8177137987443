package api

import (
	"errors"
	"net/http"

	"github.com/kjannette/cryptostats-backend/internal/logging"
	"github.com/kjannette/cryptostats-backend/internal/stats"
)

const (
	msgInvalidCoin   = "Invalid coin specified."
	msgNoStats       = "No data available for the requested coin."
	msgNoDeviation   = "Not enough data to calculate deviation."
	msgInternalError = "Internal server error."
)

type statsJSON struct {
	Price     float64 `json:"price"`
	MarketCap float64 `json:"marketCap"`
	Change24h float64 `json:"24hChange"`
}

type deviationJSON struct {
	Deviation string `json:"deviation"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	coin := r.URL.Query().Get("coin")
	rec, err := s.stats.Latest(r.Context(), coin)
	if err != nil {
		s.writeQueryError(w, err, msgNoStats, "stats")
		return
	}
	writeJSON(w, http.StatusOK, statsJSON{
		Price:     rec.Price,
		MarketCap: rec.MarketCap,
		Change24h: rec.Change24h,
	})
}

func (s *Server) handleDeviation(w http.ResponseWriter, r *http.Request) {
	coin := r.URL.Query().Get("coin")
	dev, err := s.stats.Deviation(r.Context(), coin)
	if err != nil {
		s.writeQueryError(w, err, msgNoDeviation, "deviation")
		return
	}
	writeJSON(w, http.StatusOK, deviationJSON{Deviation: dev})
}

// writeQueryError maps query errors to the fixed response bodies.
func (s *Server) writeQueryError(w http.ResponseWriter, err error, notFoundMsg, route string) {
	switch {
	case errors.Is(err, stats.ErrInvalidCoin):
		writeError(w, http.StatusBadRequest, msgInvalidCoin)
	case errors.Is(err, stats.ErrNoData):
		writeError(w, http.StatusNotFound, notFoundMsg)
	default:
		logging.For("api").WithError(err).Errorf("error serving /%s", route)
		writeError(w, http.StatusInternalServerError, msgInternalError)
	}
}
