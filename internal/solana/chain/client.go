// Package chain is the relay's view of the Solana ledger: it fetches recent
// blockhashes, submits signed transactions and reads accounts.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"golang.org/x/time/rate"

	"solrelay/pkg/platform/sentinel"
)

// SendOptions control how the RPC node handles a submitted transaction.
type SendOptions struct {
	SkipPreflight bool
	// MaxRetries is how often the node itself rebroadcasts. Nil leaves it to
	// the node's default.
	MaxRetries *uint
}

// Account is the subset of on-chain account state the relay reads.
type Account struct {
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

// Client is implemented by RPCClient and by test fakes.
type Client interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error)
	// GetAccountInfo returns sentinel.ErrNotFound when the account does not exist.
	GetAccountInfo(ctx context.Context, key solana.PublicKey) (*Account, error)
}

// RPCClient talks JSON-RPC to a Solana node, optionally paced to stay under
// a provider's request quota.
type RPCClient struct {
	rpc     *rpc.Client
	limiter *rate.Limiter
}

// NewRPCClient dials endpoint lazily. requestsPerSecond <= 0 disables pacing.
func NewRPCClient(endpoint string, requestsPerSecond float64) *RPCClient {
	c := &RPCClient{rpc: rpc.New(endpoint)}
	if requestsPerSecond > 0 {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return c
}

func (c *RPCClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

func (c *RPCClient) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	if err := c.wait(ctx); err != nil {
		return solana.Hash{}, err
	}
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: empty response")
	}
	return out.Value.Blockhash, nil
}

func (c *RPCClient) SendTransaction(ctx context.Context, tx *solana.Transaction, opts SendOptions) (solana.Signature, error) {
	if err := c.wait(ctx); err != nil {
		return solana.Signature{}, err
	}
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       opts.SkipPreflight,
		PreflightCommitment: rpc.CommitmentConfirmed,
		MaxRetries:          opts.MaxRetries,
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

func (c *RPCClient) GetAccountInfo(ctx context.Context, key solana.PublicKey) (*Account, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := c.rpc.GetAccountInfoWithOpts(ctx, key, &rpc.GetAccountInfoOpts{
		Commitment: rpc.CommitmentConfirmed,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", key, err)
	}
	if out == nil || out.Value == nil {
		return nil, sentinel.ErrNotFound
	}
	acct := &Account{
		Lamports: out.Value.Lamports,
		Owner:    out.Value.Owner,
	}
	if out.Value.Data != nil {
		acct.Data = out.Value.Data.GetBinary()
	}
	return acct, nil
}

// Close releases the underlying HTTP transport.
func (c *RPCClient) Close() error {
	return c.rpc.Close()
}

// IsPermanent reports whether err came back from the node itself (a JSON-RPC
// error such as a failed preflight or an unknown blockhash) rather than from
// the transport. Resubmitting such a transaction cannot succeed.
func IsPermanent(err error) bool {
	var rpcErr *jsonrpc.RPCError
	return errors.As(err, &rpcErr)
}
