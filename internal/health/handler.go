// Package health reports whether the relay can reach its ledger node and
// which KV tier is serving.
package health

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"solrelay/pkg/platform/httputil"
	"solrelay/pkg/requestcontext"
)

const probeTimeout = 5 * time.Second

type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// StatusReporter returns "ready", "degraded" or "disabled".
type StatusReporter interface {
	Status(ctx context.Context) string
}

type Response struct {
	OK        bool   `json:"ok"`
	Blockhash string `json:"blockhash,omitempty"`
	Redis     string `json:"redis,omitempty"`
	Error     string `json:"error,omitempty"`
}

type Handler struct {
	chain  BlockhashSource
	kv     StatusReporter
	logger *slog.Logger
}

func NewHandler(chain BlockhashSource, kv StatusReporter, logger *slog.Logger) *Handler {
	return &Handler{chain: chain, kv: kv, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	hash, err := h.chain.LatestBlockhash(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "health check failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteJSON(w, http.StatusInternalServerError, Response{OK: false, Error: err.Error()})
		return
	}

	short := hash.String()
	if len(short) > 8 {
		short = short[:8]
	}
	httputil.WriteJSON(w, http.StatusOK, Response{
		OK:        true,
		Blockhash: short,
		Redis:     h.kv.Status(ctx),
	})
}
