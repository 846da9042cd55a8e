package httptransport

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"solrelay/internal/activity"
	"solrelay/internal/credential"
	"solrelay/internal/dedupe"
	"solrelay/internal/health"
	"solrelay/internal/names"
	"solrelay/internal/platform/kv"
	"solrelay/internal/platform/logger"
	"solrelay/internal/platform/metrics"
	"solrelay/internal/ratelimit"
	"solrelay/internal/solana/chain/chaintest"
	"solrelay/internal/sponsor"
	"solrelay/pkg/testutil"
)

type RouterSuite struct {
	suite.Suite
	signer   ed25519.PrivateKey
	feePayer solana.PrivateKey
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	chain    *chaintest.Fake
	router   http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	s.Require().NoError(err)
	s.signer = priv
	s.feePayer = testutil.NewKeypair(s.T())
	s.registry = prometheus.NewRegistry()
	s.metrics = metrics.New(s.registry)
	s.chain = &chaintest.Fake{Blockhash: testutil.Blockhash("router")}

	s.router = s.newRouter(credential.New(
		credential.WithKeyfunc(func(*jwt.Token) (any, error) { return pub, nil }),
		credential.WithMetrics(s.metrics),
	))
}

// newRouter wires real in-memory components behind verifier. Each router
// gets its own backend, so quotas and nonces are not shared between them.
func (s *RouterSuite) newRouter(verifier *credential.Verifier) http.Handler {
	log := logger.Discard()
	backend := kv.NewMemoryBackend()

	limiter, err := ratelimit.New(backend, ratelimit.WithMax(2), ratelimit.WithWindow(time.Hour))
	s.Require().NoError(err)
	claims, err := dedupe.New(backend)
	s.Require().NoError(err)
	ledger, err := activity.New(backend)
	s.Require().NoError(err)
	svc, err := sponsor.New(claims, ledger, s.chain,
		sponsor.WithFeePayer(s.feePayer),
		sponsor.WithLogger(log),
		sponsor.WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
	s.Require().NoError(err)
	registrar, err := names.New(s.chain, names.WithLogger(log))
	s.Require().NoError(err)

	return NewRouter(Config{
		Logger:         log,
		Metrics:        s.metrics,
		Gatherer:       s.registry,
		AllowedOrigins: []string{"http://localhost:3000"},
		RequestTimeout: 5 * time.Second,
		Authenticate:   credential.Require(verifier, credential.DefaultHeader, log),
		Admit:          ratelimit.NewMiddleware(limiter, log).RateLimit,
		Health:         health.NewHandler(s.chain, backend, log),
		Registrars: []RouteRegistrar{
			sponsor.NewHandler(svc, log),
			names.NewHandler(registrar, log),
		},
	})
}

func (s *RouterSuite) token(scope string) string {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"scope": scope,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString(s.signer)
	s.Require().NoError(err)
	return signed
}

func (s *RouterSuite) history(token, ip string) int {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/sponsor/history")
	if token != "" {
		req.Header.Set(credential.DefaultHeader, token)
	}
	req.Header.Set("X-Forwarded-For", ip)
	return testutil.DoRequest(s.router, req).Code
}

func (s *RouterSuite) TestPublicRoutes() {
	t := s.T()
	for _, path := range []string{"/health", "/sponsor/fee-payer", "/names/check?domain=x", "/metrics"} {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(t, http.MethodGet, path))
		assert.Equal(t, http.StatusOK, rr.Code, path)
		assert.NotEmpty(t, rr.Header().Get("X-Request-ID"), path)
	}
}

func (s *RouterSuite) TestGuardedRoutesNeedCredential() {
	s.Equal(http.StatusUnauthorized, s.history("", "198.51.100.1"))
	s.Equal(http.StatusForbidden, s.history(s.token("OTHER"), "198.51.100.1"))
	s.Equal(http.StatusOK, s.history(s.token("KYC_PASS"), "198.51.100.1"))

	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/names/create-subdomain", map[string]string{}))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *RouterSuite) TestRejectedCredentialsDoNotSpendQuota() {
	for range 5 {
		s.Equal(http.StatusUnauthorized, s.history("", "198.51.100.2"))
	}
	tok := s.token("KYC_PASS")
	s.Equal(http.StatusOK, s.history(tok, "198.51.100.2"))
	s.Equal(http.StatusOK, s.history(tok, "198.51.100.2"))
	s.Equal(http.StatusTooManyRequests, s.history(tok, "198.51.100.2"))
}

func (s *RouterSuite) TestCORSPreflight() {
	req := testutil.NewRequest(s.T(), http.MethodOptions, "/sponsor")
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "X-SAS-JWT")
	rr := testutil.DoRequest(s.router, req)

	assert.Equal(s.T(), "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}

func (s *RouterSuite) TestMetricsExposeRelayCounters() {
	s.history("", "198.51.100.3")
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	require.Equal(s.T(), http.StatusOK, rr.Code)
	assert.Contains(s.T(), rr.Body.String(), "solrelay_credential_decisions_total")
	assert.Contains(s.T(), rr.Body.String(), "solrelay_http_request_duration_seconds")
}

func (s *RouterSuite) TestBypassSponsorThenHistoryByDigest() {
	t := s.T()
	router := s.newRouter(credential.New(credential.WithDevBypass(true)))

	tx := testutil.MemoTx(t, s.feePayer.PublicKey(), testutil.NewKeypair(t), []byte("transfer memo"), testutil.Blockhash("router"))
	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	sum := sha256.Sum256(msg)

	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodPost, "/sponsor", map[string]string{
		"txBase64": testutil.EncodeTx(t, tx),
		"nonce":    "abc123",
	}))
	testutil.AssertStatusOK(t, rr)
	res := testutil.UnmarshalResponse[sponsor.Result](t, rr)
	assert.True(t, res.Accepted)
	require.NotEmpty(t, res.TxID)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/sponsor/history?limit=1"))
	testutil.AssertStatusOK(t, rr)
	history := testutil.UnmarshalResponse[struct {
		Items []activity.Entry `json:"items"`
	}](t, rr)
	require.Len(t, history.Items, 1)
	assert.Equal(t, hex.EncodeToString(sum[:]), history.Items[0].ID)
	assert.Equal(t, res.TxID, history.Items[0].TxID)
}
