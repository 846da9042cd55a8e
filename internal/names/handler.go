package names

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	dErrors "solrelay/pkg/domain-errors"
	"solrelay/pkg/platform/httputil"
	"solrelay/pkg/requestcontext"
)

// Service is the registrar surface the handler needs.
type Service interface {
	CreateSubdomain(ctx context.Context, req CreateRequest) (*CreateResult, error)
	Check(ctx context.Context, domain string) (*CheckResult, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func NewHandler(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the name routes. guard wraps subdomain creation.
func (h *Handler) Register(r chi.Router, guard func(http.Handler) http.Handler) {
	r.Get("/names/check", h.handleCheck)
	r.Group(func(r chi.Router) {
		if guard != nil {
			r.Use(guard)
		}
		r.Post("/names/create-subdomain", h.handleCreateSubdomain)
	})
}

func (h *Handler) handleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := h.service.Check(ctx, r.URL.Query().Get("domain"))
	if err != nil {
		h.logger.WarnContext(ctx, "name check failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleCreateSubdomain(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req CreateRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		h.logger.WarnContext(ctx, "invalid create-subdomain request",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeMissingFields, "parentDomain, sub and targetPubkey are required"))
		return
	}

	res, err := h.service.CreateSubdomain(ctx, req)
	if err != nil {
		h.logger.WarnContext(ctx, "subdomain creation rejected",
			"request_id", requestID,
			"parent", req.ParentDomain,
			"sub", req.Sub,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}
