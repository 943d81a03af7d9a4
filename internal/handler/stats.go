package handler

import (
	"log/slog"
	"net/http"

	"github.com/TanguyBaudrin/familly-companion/internal/stats"
)

type StatsHandler struct {
	stats  *stats.Service
	logger *slog.Logger
}

func NewStatsHandler(s *stats.Service, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{stats: s, logger: logger}
}

func (h *StatsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	period, err := stats.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, h.logger, err, "invalid period")
		return
	}
	out, err := h.stats.Statistics(period)
	if err != nil {
		writeError(w, h.logger, err, "failed to compute statistics")
		return
	}
	writeJSON(w, http.StatusOK, out)
}
