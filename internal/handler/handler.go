// Package handler implements the JSON HTTP API.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/TanguyBaudrin/familly-companion/internal/expiry"
	"github.com/TanguyBaudrin/familly-companion/internal/points"
	"github.com/TanguyBaudrin/familly-companion/internal/stats"
	"github.com/TanguyBaudrin/familly-companion/internal/websocket"
)

func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body into v. An empty body leaves v
// untouched when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if allowEmpty && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// writeError maps engine and validation errors to responses. Anything it
// does not recognise is logged and reported as a 500 with fallback as the
// message.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, fallback string) {
	var insufficient *points.InsufficientPointsError
	switch {
	case errors.As(err, &insufficient):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":     "not enough points",
			"code":      "insufficient_points",
			"available": insufficient.Available,
			"required":  insufficient.Requested,
		})
	case errors.Is(err, points.ErrTaskExpired):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "task has expired",
			"code":  "task_expired",
		})
	case errors.Is(err, points.ErrInvalidAllocation),
		errors.Is(err, points.ErrNoValidRecipients),
		errors.Is(err, expiry.ErrInvalidDurationUnit),
		errors.Is(err, expiry.ErrInvalidDurationValue),
		errors.Is(err, stats.ErrInvalidPeriod):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, points.ErrNameTaken):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case points.IsNotFound(err), errors.Is(err, stats.ErrMemberNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	default:
		logger.Error(fallback, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fallback})
	}
}

type broadcaster struct {
	hub *websocket.Hub
}

func (b broadcaster) broadcast(msg websocket.Message) {
	if b.hub != nil {
		b.hub.Broadcast(msg)
	}
}
