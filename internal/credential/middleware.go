package credential

import (
	"log/slog"
	"net/http"

	"solrelay/pkg/platform/httputil"
	"solrelay/pkg/requestcontext"
)

// DefaultHeader carries the SAS token.
const DefaultHeader = "X-SAS-JWT"

// Require rejects requests whose header does not hold an acceptable token.
func Require(v *Verifier, header string, logger *slog.Logger) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			decision := v.Verify(ctx, r.Header.Get(header))
			if !decision.Allowed {
				logger.WarnContext(ctx, "credential rejected",
					"reason", decision.Reason,
					"request_id", requestcontext.RequestID(ctx),
					"ip", requestcontext.ClientIP(ctx),
				)
				httputil.WriteError(w, decision.Err())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
