// Package txcodec decodes client-submitted transactions and extracts the
// facts the relay acts on: fee payer, required signers, message digest and
// memo.
package txcodec

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// MemoProgramID is the SPL memo program.
var MemoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")

var (
	ErrEmpty         = errors.New("empty transaction")
	ErrTrailingBytes = errors.New("trailing bytes after transaction")
	ErrNoAccounts    = errors.New("transaction has no account keys")
	ErrNoSigners     = errors.New("transaction requires no signatures")
)

// Decoded is a parsed transaction together with the serialized message every
// signer signs over.
type Decoded struct {
	Tx           *solana.Transaction
	MessageBytes []byte
}

// Decode parses a standard-base64 wire transaction. The signature array is
// padded with zero signatures up to the number the message requires.
func Decode(b64 string) (*Decoded, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return DecodeBytes(raw)
}

func DecodeBytes(raw []byte) (*Decoded, error) {
	if len(raw) == 0 {
		return nil, ErrEmpty
	}
	dec := bin.NewBinDecoder(raw)
	tx, err := solana.TransactionFromDecoder(dec)
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	if dec.Remaining() > 0 {
		return nil, ErrTrailingBytes
	}
	if len(tx.Message.AccountKeys) == 0 {
		return nil, ErrNoAccounts
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if required == 0 {
		return nil, ErrNoSigners
	}
	if required > len(tx.Message.AccountKeys) {
		return nil, fmt.Errorf("message requires %d signatures but has %d accounts", required, len(tx.Message.AccountKeys))
	}
	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return &Decoded{Tx: tx, MessageBytes: msg}, nil
}

// Encode serializes tx to standard base64.
func Encode(tx *solana.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// MessageDigest is the lower-case hex sha256 of the serialized message. It
// identifies transaction content independently of signatures.
func MessageDigest(message []byte) string {
	sum := sha256.Sum256(message)
	return hex.EncodeToString(sum[:])
}

func (d *Decoded) Digest() string { return MessageDigest(d.MessageBytes) }

// FeePayer is the first account key.
func (d *Decoded) FeePayer() solana.PublicKey {
	return d.Tx.Message.AccountKeys[0]
}

func (d *Decoded) RequiredSignatures() int {
	return int(d.Tx.Message.Header.NumRequiredSignatures)
}

// Signers returns the base58 keys of every signer-flagged account except
// exclude, in account order.
func (d *Decoded) Signers(exclude solana.PublicKey) []string {
	keys := d.Tx.Message.AccountKeys
	out := make([]string, 0, d.RequiredSignatures())
	for i := 0; i < d.RequiredSignatures() && i < len(keys); i++ {
		if keys[i].Equals(exclude) {
			continue
		}
		out = append(out, keys[i].String())
	}
	return out
}

// Memo returns the data of the first memo-program instruction decoded as
// UTF-8, or nil when there is none. Invalid bytes are replaced, not rejected.
func (d *Decoded) Memo() *string {
	keys := d.Tx.Message.AccountKeys
	for _, ix := range d.Tx.Message.Instructions {
		if int(ix.ProgramIDIndex) >= len(keys) || !keys[ix.ProgramIDIndex].Equals(MemoProgramID) {
			continue
		}
		// each invalid byte becomes U+FFFD
		memo := string([]rune(string(ix.Data)))
		return &memo
	}
	return nil
}

// SignFeePayer signs the message with key into signature slot 0. It does not
// touch any other slot.
func (d *Decoded) SignFeePayer(key solana.PrivateKey) error {
	if !key.PublicKey().Equals(d.FeePayer()) {
		return fmt.Errorf("key %s is not the fee payer %s", key.PublicKey(), d.FeePayer())
	}
	sig, err := key.Sign(d.MessageBytes)
	if err != nil {
		return fmt.Errorf("sign message: %w", err)
	}
	d.Tx.Signatures[0] = sig
	return nil
}

// VerifyClientSignatures checks every required signature slot other than the
// fee payer's.
func (d *Decoded) VerifyClientSignatures() error {
	keys := d.Tx.Message.AccountKeys
	for i := 1; i < d.RequiredSignatures(); i++ {
		sig := d.Tx.Signatures[i]
		if sig.IsZero() {
			return fmt.Errorf("missing signature for %s", keys[i])
		}
		if !sig.Verify(keys[i], d.MessageBytes) {
			return fmt.Errorf("invalid signature for %s", keys[i])
		}
	}
	return nil
}

// Signature is the transaction id: the fee payer's signature.
func (d *Decoded) Signature() solana.Signature {
	return d.Tx.Signatures[0]
}
