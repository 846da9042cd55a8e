package names

import (
	"crypto/sha256"
	"errors"
	"strings"

	"github.com/gagliardetto/solana-go"
)

var (
	// NameProgramID is the SPL Name Service program.
	NameProgramID = solana.MustPublicKeyFromBase58("namesLPneVptA9Z5rqUDD9tMTWEJwofgaYwp8cawRkX")
	// RootDomain is the parent account of every .sol name.
	RootDomain = solana.MustPublicKeyFromBase58("58PwtjSDuFHuUkYjH9BYnnQKHfwo9reZhC2zMJv9JPkx")
)

const (
	hashPrefix = "SPL Name Service"
	solSuffix  = ".sol"
)

var (
	ErrEmptyDomain   = errors.New("missing domain")
	ErrInvalidDomain = errors.New("invalid domain")
)

// Normalize trims domain and appends ".sol" when absent.
func Normalize(domain string) string {
	d := strings.TrimSpace(domain)
	if d == "" || strings.HasSuffix(d, solSuffix) {
		return d
	}
	return d + solSuffix
}

// DomainKey derives the name account address of a .sol domain or a one-level
// subdomain of one. The suffix is optional.
func DomainKey(domain string) (solana.PublicKey, error) {
	d := strings.TrimSpace(domain)
	if d == "" {
		return solana.PublicKey{}, ErrEmptyDomain
	}
	labels := strings.Split(strings.TrimSuffix(d, solSuffix), ".")
	for _, l := range labels {
		if l == "" {
			return solana.PublicKey{}, ErrInvalidDomain
		}
	}

	switch len(labels) {
	case 1:
		return nameAccountKey(hashedName(labels[0]), RootDomain)
	case 2:
		parent, err := nameAccountKey(hashedName(labels[1]), RootDomain)
		if err != nil {
			return solana.PublicKey{}, err
		}
		// Subdomain labels are hashed with a leading zero byte.
		return nameAccountKey(hashedName("\x00"+labels[0]), parent)
	default:
		return solana.PublicKey{}, ErrInvalidDomain
	}
}

func hashedName(name string) []byte {
	sum := sha256.Sum256([]byte(hashPrefix + name))
	return sum[:]
}

// nameAccountKey derives the program address over [hash, class, parent]. The
// relay never uses name classes, so the class seed is 32 zero bytes.
func nameAccountKey(hashed []byte, parent solana.PublicKey) (solana.PublicKey, error) {
	var class solana.PublicKey
	key, _, err := solana.FindProgramAddress([][]byte{hashed, class[:], parent[:]}, NameProgramID)
	return key, err
}
