package testutil

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

var memoProgram = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

// NewKeypair returns a fresh ed25519 keypair.
func NewKeypair(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

// Blockhash derives a deterministic recent blockhash from seed.
func Blockhash(seed string) solana.Hash {
	return solana.Hash(sha256.Sum256([]byte(seed)))
}

// MemoTx builds a transaction paid by feePayer carrying one memo instruction
// signed by client. Slot 0 (fee payer) is left zero; the client's slot holds
// a valid signature.
func MemoTx(t *testing.T, feePayer solana.PublicKey, client solana.PrivateKey, memo []byte, blockhash solana.Hash) *solana.Transaction {
	t.Helper()
	ix := solana.NewInstruction(memoProgram, solana.AccountMetaSlice{
		solana.Meta(client.PublicKey()).SIGNER(),
	}, memo)
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(feePayer))
	require.NoError(t, err)

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
	for i, key := range tx.Message.AccountKeys[:tx.Message.Header.NumRequiredSignatures] {
		if key.Equals(client.PublicKey()) {
			sig, err := client.Sign(msg)
			require.NoError(t, err)
			tx.Signatures[i] = sig
		}
	}
	return tx
}

// EncodeTx serializes tx to standard base64.
func EncodeTx(t *testing.T, tx *solana.Transaction) string {
	t.Helper()
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(raw)
}
