// Package names registers SNS subdomains on behalf of users and answers
// availability queries for .sol names.
package names

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"strings"

	"github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"solrelay/internal/platform/metrics"
	"solrelay/internal/solana/chain"
	dErrors "solrelay/pkg/domain-errors"
	"solrelay/pkg/platform/sentinel"
)

// ComputeBudgetProgramID owns the priority-fee instruction.
var ComputeBudgetProgramID = solana.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")

const (
	defaultPriorityFee = 1000

	setComputeUnitPrice = 3
)

type CreateRequest struct {
	ParentDomain string `json:"parentDomain"`
	Sub          string `json:"sub"`
	TargetPubkey string `json:"targetPubkey"`
}

type CreateResult struct {
	Accepted bool   `json:"accepted"`
	Domain   string `json:"domain"`
	Owner    string `json:"owner"`
	TxID     string `json:"txId"`
}

// CheckResult reports whether a name account exists. Lamports and Owner are
// only set for taken names.
type CheckResult struct {
	Available bool    `json:"available"`
	Lamports  *uint64 `json:"lamports,omitempty"`
	Owner     string  `json:"owner,omitempty"`
}

type Registrar struct {
	chain       chain.Client
	bundles     Bundles
	feePayer    solana.PrivateKey
	parentOwner solana.PrivateKey
	priorityFee uint64
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
}

type Option func(*Registrar)

// WithKeys sets the two signing keys. Registration is refused unless both
// are present.
func WithKeys(feePayer, parentOwner solana.PrivateKey) Option {
	return func(r *Registrar) {
		r.feePayer = feePayer
		r.parentOwner = parentOwner
	}
}

// WithBundles sets the name-service collaborator.
func WithBundles(b Bundles) Option {
	return func(r *Registrar) { r.bundles = b }
}

// WithPriorityFee sets the compute unit price in micro-lamports.
func WithPriorityFee(microLamports uint64) Option {
	return func(r *Registrar) {
		if microLamports > 0 {
			r.priorityFee = microLamports
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registrar) { r.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registrar) { r.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(r *Registrar) { r.tracer = t }
}

func New(client chain.Client, opts ...Option) (*Registrar, error) {
	if client == nil {
		return nil, errors.New("chain client is required")
	}
	r := &Registrar{
		chain:       client,
		priorityFee: defaultPriorityFee,
		logger:      slog.Default(),
		tracer:      otel.Tracer("solrelay/names"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CreateSubdomain creates label.parent under the parent owner's authority and
// transfers it to the target owner in one transaction, sent without preflight.
func (r *Registrar) CreateSubdomain(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	ctx, span := r.tracer.Start(ctx, "names.CreateSubdomain")
	defer span.End()

	res, err := r.createSubdomain(ctx, req)
	outcome := "accepted"
	if err != nil {
		outcome = string(dErrors.CodeInternal)
		if de, ok := dErrors.As(err); ok {
			outcome = string(de.Code)
		}
		span.SetStatus(codes.Error, outcome)
	}
	r.metrics.ObserveNameRegistration(outcome)
	return res, err
}

func (r *Registrar) createSubdomain(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	if r.feePayer == nil || r.parentOwner == nil || r.bundles == nil {
		return nil, dErrors.New(dErrors.CodeNotConfigured, "relayer not configured with keys")
	}
	parent := strings.TrimSpace(req.ParentDomain)
	label := strings.TrimSpace(req.Sub)
	target := strings.TrimSpace(req.TargetPubkey)
	if parent == "" || label == "" || target == "" {
		return nil, dErrors.New(dErrors.CodeMissingFields, "parentDomain, sub and targetPubkey are required")
	}
	owner, err := solana.PublicKeyFromBase58(target)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidOwner, "targetPubkey is not a valid public key")
	}

	base := strings.TrimSuffix(parent, solSuffix)
	if strings.Contains(label, ".") || base == "" || strings.Contains(base, ".") {
		return nil, dErrors.Wrap(ErrInvalidDomain, dErrors.CodeBadRequest, "sub must be one label under a top-level .sol name")
	}

	fqdn := label + "." + base
	domain := fqdn + solSuffix
	authority := r.parentOwner.PublicKey()
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("names.domain", domain))

	create, err := r.bundles.CreateSubdomain(ctx, fqdn, authority)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build create instructions")
	}
	transfer, err := r.bundles.TransferOwnership(ctx, domain, owner, authority)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build transfer instructions")
	}

	ixs := []solana.Instruction{ComputeUnitPrice(r.priorityFee)}
	for _, group := range append(create, transfer...) {
		ixs = append(ixs, group...)
	}

	blockhash, err := r.chain.LatestBlockhash(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fetch blockhash")
	}
	tx, err := solana.NewTransaction(ixs, blockhash, solana.TransactionPayer(r.feePayer.PublicKey()))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build transaction")
	}
	if _, err := tx.Sign(r.signer); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeSignFailed, err.Error())
	}

	sig, err := r.chain.SendTransaction(context.WithoutCancel(ctx), tx, chain.SendOptions{SkipPreflight: true})
	if err != nil {
		r.logger.ErrorContext(ctx, "subdomain broadcast failed",
			"domain", domain,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to send transaction")
	}

	r.logger.InfoContext(ctx, "subdomain created",
		"domain", domain,
		"owner", owner.String(),
		"tx_id", sig.String(),
	)
	return &CreateResult{Accepted: true, Domain: domain, Owner: owner.String(), TxID: sig.String()}, nil
}

func (r *Registrar) signer(key solana.PublicKey) *solana.PrivateKey {
	switch {
	case key.Equals(r.feePayer.PublicKey()):
		return &r.feePayer
	case key.Equals(r.parentOwner.PublicKey()):
		return &r.parentOwner
	}
	return nil
}

// Check reports whether domain is still unregistered.
func (r *Registrar) Check(ctx context.Context, domain string) (*CheckResult, error) {
	normalized := Normalize(domain)
	key, err := DomainKey(normalized)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error())
	}
	acct, err := r.chain.GetAccountInfo(ctx, key)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &CheckResult{Available: true}, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up name account")
	}
	lamports := acct.Lamports
	return &CheckResult{Available: false, Lamports: &lamports, Owner: acct.Owner.String()}, nil
}

// ComputeUnitPrice builds the compute budget instruction that sets the
// priority fee.
func ComputeUnitPrice(microLamports uint64) solana.Instruction {
	data := make([]byte, 9)
	data[0] = setComputeUnitPrice
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return solana.NewInstruction(ComputeBudgetProgramID, solana.AccountMetaSlice{}, data)
}
