package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"assetmarket/internal/market"
	"assetmarket/internal/media"
	"assetmarket/internal/models"
	"assetmarket/internal/payment"
	"assetmarket/internal/store"
)

// Handler bundles the dependencies the REST endpoints need.
type Handler struct {
	Checkout       *market.Checkout
	Settlement     *market.Engine
	Store          store.Store
	MediaProcessor *media.Processor
	Logger         *slog.Logger
}

func NewHandler(checkout *market.Checkout, settlement *market.Engine, st store.Store) *Handler {
	return &Handler{Checkout: checkout, Settlement: settlement, Store: st}
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// statusForError maps domain errors onto HTTP status codes. Settlement
// conflicts and rejected status transitions both answer 409 so retrying
// clients can tell a lost race from bad input.
func statusForError(err error) int {
	var mismatch *market.MismatchError
	var duplicate *market.DuplicateError
	var notFound *market.NotFoundError
	switch {
	case errors.Is(err, market.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.As(err, &mismatch):
		return http.StatusBadRequest
	case errors.As(err, &duplicate):
		return http.StatusConflict
	case errors.Is(err, market.ErrInvalidTransition):
		return http.StatusConflict
	case errors.As(err, &notFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, payment.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err)
}

func parseMoneyNumber(number json.Number, field string) (models.Money, error) {
	raw := strings.TrimSpace(number.String())
	if raw == "" {
		return models.Money{}, fmt.Errorf("%s is required", field)
	}
	money, err := models.ParseMoney(raw)
	if err != nil {
		return models.Money{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return money, nil
}
