// Package keys loads the relay's privileged keypairs from configuration.
package keys

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// Load parses a 64-byte ed25519 secret key given either as base58 or as the
// JSON byte array written by the Solana CLI. An empty secret yields a nil key
// and no error: the dependent feature reports itself as not configured.
func Load(secret string) (solana.PrivateKey, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, nil
	}

	var raw []byte
	if strings.HasPrefix(secret, "[") {
		var nums []int
		if err := json.Unmarshal([]byte(secret), &nums); err != nil {
			return nil, fmt.Errorf("parse keypair array: %w", err)
		}
		raw = make([]byte, len(nums))
		for i, n := range nums {
			if n < 0 || n > 255 {
				return nil, fmt.Errorf("keypair byte %d out of range", i)
			}
			raw[i] = byte(n)
		}
	} else {
		key, err := solana.PrivateKeyFromBase58(secret)
		if err != nil {
			return nil, fmt.Errorf("parse base58 secret: %w", err)
		}
		raw = key
	}

	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key must be %d bytes, got %d", ed25519.PrivateKeySize, len(raw))
	}
	pub := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize]).Public().(ed25519.PublicKey)
	if !bytes.Equal(pub, raw[ed25519.SeedSize:]) {
		return nil, fmt.Errorf("secret key public half does not match its seed")
	}
	return solana.PrivateKey(raw), nil
}
