// Package app builds the relay's components once, in dependency order, and
// owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"solrelay/internal/activity"
	"solrelay/internal/credential"
	"solrelay/internal/dedupe"
	"solrelay/internal/health"
	"solrelay/internal/names"
	"solrelay/internal/platform/config"
	"solrelay/internal/platform/kv"
	"solrelay/internal/platform/metrics"
	redisclient "solrelay/internal/platform/redis"
	"solrelay/internal/ratelimit"
	"solrelay/internal/solana/chain"
	"solrelay/internal/solana/keys"
	"solrelay/internal/sponsor"
	httptransport "solrelay/internal/transport/http"
)

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Redis    *redisclient.Client
	KV       kv.Backend
	Chain    *chain.RPCClient

	FeePayer    solana.PrivateKey
	ParentOwner solana.PrivateKey

	Verifier  *credential.Verifier
	Limiter   *ratelimit.Limiter
	Ledger    *activity.Ledger
	Sponsor   *sponsor.Service
	Registrar *names.Registrar

	Handler http.Handler
}

// New wires every component from cfg. ctx bounds background work such as
// JWKS refresh and should live as long as the process serves traffic.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	a := &App{Config: cfg, Logger: logger}

	var err error
	if a.FeePayer, err = keys.Load(cfg.Solana.FeePayerSecret); err != nil {
		return nil, fmt.Errorf("fee payer key: %w", err)
	}
	if a.ParentOwner, err = keys.Load(cfg.Solana.ParentOwnerSecret); err != nil {
		return nil, fmt.Errorf("parent owner key: %w", err)
	}
	if a.FeePayer == nil {
		logger.Warn("fee payer key not configured, sponsorship disabled")
	}

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics = metrics.New(a.Registry)

	if a.Redis, err = redisclient.New(cfg.Redis); err != nil {
		return nil, err
	}
	var rc *redis.Client
	if a.Redis != nil {
		rc = a.Redis.Client
		logger.Info("durable backend configured", "redis", a.Redis.Endpoint())
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := a.Redis.Check(probeCtx); err != nil {
			logger.Warn("durable backend unreachable at startup, serving from memory until it recovers", "error", err)
		}
		cancel()
	}
	a.KV = kv.Select(rc, logger, a.Metrics)

	a.Chain = chain.NewRPCClient(cfg.Solana.RPCEndpoint, cfg.Solana.RPCRequestsPerSec)

	a.Verifier, err = credential.NewFromConfig(ctx, cfg.Credential,
		credential.WithLogger(logger),
		credential.WithMetrics(a.Metrics),
	)
	if err != nil {
		return nil, err
	}
	if a.Verifier.DevBypass() {
		logger.Warn("SAS dev bypass enabled, credentials are not checked")
	}

	a.Limiter, err = ratelimit.New(a.KV,
		ratelimit.WithWindow(cfg.RateLimit.Window),
		ratelimit.WithMax(cfg.RateLimit.Max),
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(a.Metrics),
	)
	if err != nil {
		return nil, err
	}

	claims, err := dedupe.New(a.KV)
	if err != nil {
		return nil, err
	}
	a.Ledger, err = activity.New(a.KV,
		activity.WithCapacity(cfg.Activity.Capacity),
		activity.WithLogger(logger),
		activity.WithMetrics(a.Metrics),
	)
	if err != nil {
		return nil, err
	}

	a.Sponsor, err = sponsor.New(claims, a.Ledger, a.Chain,
		sponsor.WithFeePayer(a.FeePayer),
		sponsor.WithTTLs(cfg.Sponsor.NonceTTL, cfg.Sponsor.DedupeTTL),
		sponsor.WithBroadcast(cfg.Solana.BroadcastAttempts, cfg.Solana.BroadcastMaxRetries),
		sponsor.WithLogger(logger),
		sponsor.WithMetrics(a.Metrics),
		sponsor.WithTracer(otel.Tracer("solrelay/sponsor")),
	)
	if err != nil {
		return nil, err
	}

	registrarOpts := []names.Option{
		names.WithKeys(a.FeePayer, a.ParentOwner),
		names.WithPriorityFee(cfg.Names.PriorityFeeMicroLamports),
		names.WithLogger(logger),
		names.WithMetrics(a.Metrics),
		names.WithTracer(otel.Tracer("solrelay/names")),
	}
	if cfg.Names.ServiceURL != "" {
		registrarOpts = append(registrarOpts, names.WithBundles(names.NewHTTPBundleClient(cfg.Names.ServiceURL)))
	}
	if a.Registrar, err = names.New(a.Chain, registrarOpts...); err != nil {
		return nil, err
	}

	rateLimit := ratelimit.NewMiddleware(a.Limiter, logger, ratelimit.WithDisabled(cfg.RateLimit.Disabled))
	a.Handler = httptransport.NewRouter(httptransport.Config{
		Logger:         logger,
		Metrics:        a.Metrics,
		Gatherer:       a.Registry,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RequestTimeout: cfg.Server.WriteTimeout,
		CredentialHdr:  cfg.Credential.Header,
		Authenticate:   credential.Require(a.Verifier, cfg.Credential.Header, logger),
		Admit:          rateLimit.RateLimit,
		Health:         health.NewHandler(a.Chain, a.KV, logger),
		Registrars: []httptransport.RouteRegistrar{
			sponsor.NewHandler(a.Sponsor, logger),
			names.NewHandler(a.Registrar, logger),
		},
	})
	return a, nil
}

// Close releases network clients. It is safe to call once the HTTP server
// has stopped.
func (a *App) Close() error {
	var errs []error
	if a.Chain != nil {
		errs = append(errs, a.Chain.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}
