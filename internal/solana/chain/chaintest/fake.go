// Package chaintest provides an in-memory chain.Client for tests.
package chaintest

import (
	"context"
	"sync"

	"github.com/gagliardetto/solana-go"

	"solrelay/internal/solana/chain"
	"solrelay/pkg/platform/sentinel"
)

// Sent records one SendTransaction call.
type Sent struct {
	Tx   *solana.Transaction
	Opts chain.SendOptions
}

// Fake is a scriptable chain.Client. Its zero value answers every call
// successfully; SendTransaction returns the transaction's first signature.
type Fake struct {
	mu        sync.Mutex
	Blockhash solana.Hash
	// BlockhashErr fails LatestBlockhash.
	BlockhashErr error
	// SendErrs are returned by successive SendTransaction calls; once
	// exhausted, sends succeed.
	SendErrs []error
	Accounts map[solana.PublicKey]*chain.Account
	sent     []Sent
	attempts int
}

var _ chain.Client = (*Fake)(nil)

func (f *Fake) LatestBlockhash(context.Context) (solana.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BlockhashErr != nil {
		return solana.Hash{}, f.BlockhashErr
	}
	return f.Blockhash, nil
}

func (f *Fake) SendTransaction(ctx context.Context, tx *solana.Transaction, opts chain.SendOptions) (solana.Signature, error) {
	if err := ctx.Err(); err != nil {
		return solana.Signature{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if len(f.SendErrs) > 0 {
		err := f.SendErrs[0]
		f.SendErrs = f.SendErrs[1:]
		if err != nil {
			return solana.Signature{}, err
		}
	}
	f.sent = append(f.sent, Sent{Tx: tx, Opts: opts})
	if len(tx.Signatures) == 0 {
		return solana.Signature{}, nil
	}
	return tx.Signatures[0], nil
}

func (f *Fake) GetAccountInfo(_ context.Context, key solana.PublicKey) (*chain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if acct, ok := f.Accounts[key]; ok {
		return acct, nil
	}
	return nil, sentinel.ErrNotFound
}

// SetAccount registers an existing account.
func (f *Fake) SetAccount(key solana.PublicKey, acct *chain.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Accounts == nil {
		f.Accounts = make(map[solana.PublicKey]*chain.Account)
	}
	f.Accounts[key] = acct
}

// Sent returns the successfully submitted transactions.
func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

// Attempts counts every SendTransaction call, failed ones included.
func (f *Fake) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}
