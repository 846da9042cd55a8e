package sponsor

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"solrelay/internal/activity"
	dErrors "solrelay/pkg/domain-errors"
	"solrelay/pkg/platform/httputil"
	"solrelay/pkg/requestcontext"
)

// Sponsorer is the service surface the handler needs.
type Sponsorer interface {
	Sponsor(ctx context.Context, req Request) (*Result, error)
	FeePayer() (string, error)
	History(ctx context.Context, limit int) ([]activity.Entry, error)
}

type Handler struct {
	service Sponsorer
	logger  *slog.Logger
}

func NewHandler(service Sponsorer, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the sponsorship routes. guard wraps the privileged ones.
func (h *Handler) Register(r chi.Router, guard func(http.Handler) http.Handler) {
	r.Get("/sponsor/fee-payer", h.handleFeePayer)
	r.Group(func(r chi.Router) {
		if guard != nil {
			r.Use(guard)
		}
		r.Post("/sponsor", h.handleSponsor)
		r.Get("/sponsor/history", h.handleHistory)
	})
}

func (h *Handler) handleFeePayer(w http.ResponseWriter, r *http.Request) {
	key, err := h.service.FeePayer()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"feePayer": key})
}

func (h *Handler) handleSponsor(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req Request
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid sponsor request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeMissingFields, "txBase64 and nonce are required"))
		return
	}

	res, err := h.service.Sponsor(ctx, req)
	if err != nil {
		level := slog.LevelWarn
		if dErrors.HTTPStatus(codeOf(err)) >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		h.logger.Log(ctx, level, "sponsorship rejected",
			"request_id", requestID,
			"nonce", req.Nonce,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	items, err := h.service.History(ctx, ParseLimit(r.URL.Query().Get("limit")))
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read history",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if items == nil {
		items = []activity.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ParseLimit reads the history limit query value. Fractions are truncated;
// anything unparseable or non-positive means the default.
func ParseLimit(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultHistoryLimit
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || f < 1 {
		return DefaultHistoryLimit
	}
	if f > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return int(f)
}

func codeOf(err error) dErrors.Code {
	if de, ok := dErrors.As(err); ok {
		return de.Code
	}
	return dErrors.CodeInternal
}
