// Package types holds the ledger's core value types: hashes, addresses,
// signatures, accounts and transactions.
package types

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/mr-tron/base58"
)

// decodeBase58 decodes s into exactly size bytes.
func decodeBase58(s string, size int, what string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base58 %s: %w", what, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("%s must be %d bytes, got %d", what, size, len(b))
	}
	return b, nil
}

// Hash is a SHA-256 digest. Entry hashes double as recent blockhashes.
type Hash [32]byte

// ZeroHash is the all-zero hash.
var ZeroHash Hash

// HashFromBase58 parses a base58 blockhash.
func HashFromBase58(s string) (Hash, error) {
	b, err := decodeBase58(s, len(Hash{}), "hash")
	if err != nil {
		return Hash{}, err
	}
	return Hash(b), nil
}

func (h Hash) String() string { return base58.Encode(h[:]) }

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == ZeroHash }

// SHA256 hashes data.
func SHA256(data []byte) Hash {
	return sha256.Sum256(data)
}

// Pubkey is an ed25519 public key or a program-derived address.
type Pubkey [32]byte

// ZeroPubkey is the all-zero address.
var ZeroPubkey Pubkey

// Native program addresses.
var (
	SystemProgramID          = MustPubkeyFromBase58("11111111111111111111111111111111")
	TokenProgramID           = MustPubkeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustPubkeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// PubkeyFromBytes copies a 32-byte slice into a Pubkey.
func PubkeyFromBytes(b []byte) (Pubkey, error) {
	if len(b) != len(Pubkey{}) {
		return Pubkey{}, fmt.Errorf("pubkey must be 32 bytes, got %d", len(b))
	}
	return Pubkey(b), nil
}

// PubkeyFromBase58 parses a base58 address.
func PubkeyFromBase58(s string) (Pubkey, error) {
	b, err := decodeBase58(s, len(Pubkey{}), "pubkey")
	if err != nil {
		return Pubkey{}, err
	}
	return Pubkey(b), nil
}

// MustPubkeyFromBase58 parses a base58 address and panics on error. It is
// meant for package-level constants.
func MustPubkeyFromBase58(s string) Pubkey {
	pk, err := PubkeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

func (pk Pubkey) Bytes() []byte  { return pk[:] }
func (pk Pubkey) String() string { return base58.Encode(pk[:]) }

// IsZero reports whether pk is the zero address.
func (pk Pubkey) IsZero() bool { return pk == ZeroPubkey }

// MarshalJSON encodes the address as a base58 string.
func (pk Pubkey) MarshalJSON() ([]byte, error) {
	return json.Marshal(pk.String())
}

// UnmarshalJSON decodes a base58 string. An empty string is the zero
// address.
func (pk *Pubkey) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return pk.UnmarshalText([]byte(s))
}

// MarshalText lets addresses appear in YAML and as JSON map keys.
func (pk Pubkey) MarshalText() ([]byte, error) {
	return []byte(pk.String()), nil
}

// UnmarshalText decodes a base58 address. Empty text is the zero address.
func (pk *Pubkey) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*pk = ZeroPubkey
		return nil
	}
	decoded, err := PubkeyFromBase58(string(text))
	if err != nil {
		return err
	}
	*pk = decoded
	return nil
}

// Signature is an ed25519 signature. A transaction's first signature is
// its ID.
type Signature [64]byte

// ZeroSignature is the all-zero signature.
var ZeroSignature Signature

// SignatureFromBase58 parses a base58 transaction signature.
func SignatureFromBase58(s string) (Signature, error) {
	b, err := decodeBase58(s, len(Signature{}), "signature")
	if err != nil {
		return Signature{}, err
	}
	return Signature(b), nil
}

func (sig Signature) String() string { return base58.Encode(sig[:]) }

// IsZero reports whether sig is the zero signature.
func (sig Signature) IsZero() bool { return sig == ZeroSignature }

// Lamports is an amount of the native currency.
type Lamports uint64

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL Lamports = 1_000_000_000

// ComputeUnits measures instruction execution cost.
type ComputeUnits uint64

// MaxComputeUnitsPerTransaction caps a transaction's compute budget.
const MaxComputeUnitsPerTransaction ComputeUnits = 1_400_000
