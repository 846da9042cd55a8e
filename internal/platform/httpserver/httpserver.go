package httpserver

import (
	"net/http"
	"time"

	"solrelay/internal/platform/config"
)

// New returns the relay's listener. Zero read or write timeouts from config
// mean no limit; the header timeout and idle timeout are always set.
func New(cfg config.Server, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       90 * time.Second,
		MaxHeaderBytes:    64 << 10,
	}
}
