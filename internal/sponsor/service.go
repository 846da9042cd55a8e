// Package sponsor completes and broadcasts client-built transactions with the
// relay's fee-payer signature.
//
// Sponsor runs the checks in a fixed order, and each one is terminal:
//
//  1. fee payer configured, request fields present
//  2. nonce never seen within its TTL
//  3. transaction decodes
//  4. relay key is the fee payer (account 0)
//  5. message content never seen within its TTL
//  6. client signatures valid, fee-payer slot signed
//  7. broadcast, detached from the caller's cancellation
//  8. activity recorded (best effort)
//
// Nonce and content claims are never released once taken, so a request that
// fails after step 2 or 5 cannot be replayed with the same nonce or message.
package sponsor

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"solrelay/internal/activity"
	"solrelay/internal/dedupe"
	"solrelay/internal/platform/metrics"
	"solrelay/internal/solana/chain"
	"solrelay/internal/solana/txcodec"
	dErrors "solrelay/pkg/domain-errors"
)

const (
	defaultNonceTTL          = 600 * time.Second
	defaultDedupeTTL         = 600 * time.Second
	defaultBroadcastAttempts = 3
	defaultRPCMaxRetries     = 2
	broadcastTimeout         = 30 * time.Second

	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

// Request is a client's sponsorship submission. ClientSig is accepted for
// compatibility and not used: client signatures travel inside the transaction.
type Request struct {
	TxBase64  string  `json:"txBase64"`
	Nonce     string  `json:"nonce"`
	ClientSig *string `json:"clientSig,omitempty"`
}

type Result struct {
	Accepted bool   `json:"accepted"`
	TxID     string `json:"txId"`
}

// Claims is the first-writer-wins store behind replay and duplicate checks.
type Claims interface {
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Ledger records and lists sponsored transactions.
type Ledger interface {
	Record(ctx context.Context, entry activity.Entry) error
	Fetch(ctx context.Context, limit int) ([]activity.Entry, error)
}

type Service struct {
	feePayer          solana.PrivateKey
	claims            Claims
	ledger            Ledger
	chain             chain.Client
	nonceTTL          time.Duration
	dedupeTTL         time.Duration
	broadcastAttempts int
	rpcMaxRetries     uint
	newBackOff        func() backoff.BackOff
	logger            *slog.Logger
	metrics           *metrics.Metrics
	tracer            trace.Tracer
}

type Option func(*Service)

// WithFeePayer sets the relay's signing key. Without it every sponsorship is
// rejected as not configured.
func WithFeePayer(key solana.PrivateKey) Option {
	return func(s *Service) { s.feePayer = key }
}

func WithTTLs(nonce, dedupe time.Duration) Option {
	return func(s *Service) {
		if nonce > 0 {
			s.nonceTTL = nonce
		}
		if dedupe > 0 {
			s.dedupeTTL = dedupe
		}
	}
}

// WithBroadcast sets the number of client-side submission attempts and the
// rebroadcast count passed to the node on each.
func WithBroadcast(attempts int, rpcMaxRetries uint) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.broadcastAttempts = attempts
		}
		s.rpcMaxRetries = rpcMaxRetries
	}
}

// WithBackOff replaces the delay policy between broadcast attempts.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(s *Service) {
		if newBackOff != nil {
			s.newBackOff = newBackOff
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

func New(claims Claims, ledger Ledger, client chain.Client, opts ...Option) (*Service, error) {
	if claims == nil {
		return nil, errors.New("claims store is required")
	}
	if ledger == nil {
		return nil, errors.New("activity ledger is required")
	}
	if client == nil {
		return nil, errors.New("chain client is required")
	}
	s := &Service{
		claims:            claims,
		ledger:            ledger,
		chain:             client,
		nonceTTL:          defaultNonceTTL,
		dedupeTTL:         defaultDedupeTTL,
		broadcastAttempts: defaultBroadcastAttempts,
		rpcMaxRetries:     defaultRPCMaxRetries,
		newBackOff:        defaultBackOff,
		logger:            slog.Default(),
		tracer:            otel.Tracer("solrelay/sponsor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

// FeePayer returns the relay's fee-payer address.
func (s *Service) FeePayer() (string, error) {
	if s.feePayer == nil {
		return "", errNotConfigured
	}
	return s.feePayer.PublicKey().String(), nil
}

var errNotConfigured = dErrors.New(dErrors.CodeNotConfigured, "relayer fee payer not configured")

// Sponsor validates, signs and broadcasts req.
func (s *Service) Sponsor(ctx context.Context, req Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "sponsor.Sponsor")
	defer span.End()

	res, err := s.sponsor(ctx, span, req)
	outcome := "accepted"
	if err != nil {
		outcome = string(dErrors.CodeInternal)
		if de, ok := dErrors.As(err); ok {
			outcome = string(de.Code)
		}
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("sponsor.outcome", outcome))
	s.metrics.ObserveSponsorOutcome(outcome)
	return res, err
}

func (s *Service) sponsor(ctx context.Context, span trace.Span, req Request) (*Result, error) {
	if s.feePayer == nil {
		return nil, errNotConfigured
	}
	nonce := req.Nonce
	if strings.TrimSpace(req.TxBase64) == "" || strings.TrimSpace(nonce) == "" {
		return nil, dErrors.New(dErrors.CodeMissingFields, "txBase64 and nonce are required")
	}

	fresh, err := s.claims.SetIfAbsent(ctx, dedupe.NonceKey(nonce), s.nonceTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSponsorInternal, "nonce check failed")
	}
	if !fresh {
		return nil, dErrors.New(dErrors.CodeNonceReplay, "nonce already used")
	}

	decoded, err := txcodec.Decode(strings.TrimSpace(req.TxBase64))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidTx, err.Error())
	}

	feePayer := s.feePayer.PublicKey()
	if got := decoded.FeePayer(); !got.Equals(feePayer) {
		return nil, dErrors.New(dErrors.CodeInvalidPayer, "transaction fee payer is not the relay").
			WithField("expected", feePayer.String()).
			WithField("got", got.String())
	}

	digest := decoded.Digest()
	span.SetAttributes(attribute.String("sponsor.msg_hash", digest))
	unique, err := s.claims.SetIfAbsent(ctx, dedupe.MessageKey(digest), s.dedupeTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSponsorInternal, "duplicate check failed")
	}
	if !unique {
		return nil, dErrors.New(dErrors.CodeDuplicateTx, "transaction already submitted")
	}

	if err := decoded.VerifyClientSignatures(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSignFailed, err.Error())
	}
	if err := decoded.SignFeePayer(s.feePayer); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSignFailed, err.Error())
	}

	// The client may disconnect once the transaction is signed; the broadcast
	// and the ledger write still have to happen.
	detached := context.WithoutCancel(ctx)
	sig, err := s.broadcast(detached, decoded.Tx)
	if err != nil {
		s.logger.ErrorContext(ctx, "broadcast failed",
			"msg_hash", digest,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeSponsorInternal, err.Error())
	}
	txID := sig.String()
	span.SetAttributes(attribute.String("sponsor.tx_id", txID))

	entry := activity.Entry{
		ID:      digest,
		Kind:    activity.KindSponsor,
		TxID:    txID,
		Signers: decoded.Signers(feePayer),
		Memo:    decoded.Memo(),
	}
	if err := s.ledger.Record(detached, entry); err != nil {
		s.logger.WarnContext(ctx, "failed to record activity",
			"msg_hash", digest,
			"tx_id", txID,
			"error", err,
		)
	}

	s.logger.InfoContext(ctx, "transaction sponsored",
		"msg_hash", digest,
		"tx_id", txID,
		"nonce", nonce,
	)
	return &Result{Accepted: true, TxID: txID}, nil
}

// broadcast submits tx with preflight, retrying transport failures with
// backoff. Errors reported by the node end the loop immediately.
func (s *Service) broadcast(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	ctx, span := s.tracer.Start(ctx, "sponsor.broadcast")
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, broadcastTimeout)
	defer cancel()

	start := time.Now()
	defer func() { s.metrics.ObserveBroadcast(time.Since(start)) }()

	maxRetries := s.rpcMaxRetries
	opts := chain.SendOptions{SkipPreflight: false, MaxRetries: &maxRetries}

	attempt := 0
	var sig solana.Signature
	op := func() error {
		attempt++
		s.metrics.IncBroadcastAttempt()
		got, err := s.chain.SendTransaction(ctx, tx, opts)
		if err != nil {
			if chain.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			s.logger.WarnContext(ctx, "broadcast attempt failed", "attempt", attempt, "error", err)
			return err
		}
		sig = got
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(s.newBackOff(), uint64(s.broadcastAttempts-1)),
		ctx,
	)
	if err := backoff.Retry(op, policy); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "broadcast failed")
		return solana.Signature{}, err
	}
	span.SetAttributes(attribute.Int("sponsor.broadcast_attempts", attempt))
	return sig, nil
}

// History returns recent sponsored transactions, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]activity.Entry, error) {
	entries, err := s.ledger.Fetch(ctx, ClampLimit(limit))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read activity")
	}
	return entries, nil
}

// ClampLimit maps a requested history size into [1, MaxHistoryLimit], with
// non-positive values meaning the default.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return min(limit, MaxHistoryLimit)
}
