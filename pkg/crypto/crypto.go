// Package crypto checks the ed25519 signatures on submitted transactions.
// A transaction carries one signature per required signer, each over the
// serialized legacy message.
package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/fortiblox/savefi/pkg/types"
)

var (
	ErrMissingTransaction     = errors.New("crypto: missing transaction")
	ErrNoSignatures           = errors.New("crypto: transaction has no signatures")
	ErrSignatureCountMismatch = errors.New("crypto: signature count mismatch")
	ErrInvalidPublicKey       = errors.New("crypto: signer is not an ed25519 public key")
	ErrVerificationFailed     = errors.New("crypto: signature verification failed")
)

// SignerError reports the signer whose signature was rejected.
type SignerError struct {
	Index  int
	Signer types.Pubkey
	Err    error
}

func (e *SignerError) Error() string {
	return fmt.Sprintf("signer %d (%s): %v", e.Index, e.Signer, e.Err)
}

func (e *SignerError) Unwrap() error {
	return e.Err
}

// Verify checks sig over message by pubkey. Keys that do not decode to a
// curve point, such as program-derived addresses, are rejected with
// ErrInvalidPublicKey.
func Verify(pubkey types.Pubkey, message []byte, sig types.Signature) error {
	if _, err := new(edwards25519.Point).SetBytes(pubkey[:]); err != nil {
		return ErrInvalidPublicKey
	}
	if !ed25519.Verify(pubkey[:], message, sig[:]) {
		return ErrVerificationFailed
	}
	return nil
}

// VerifyTransaction checks that tx carries exactly one valid signature per
// required signer. Signers are the first NumRequiredSignatures account keys.
func VerifyTransaction(tx *types.Transaction) error {
	if tx == nil {
		return ErrMissingTransaction
	}
	if len(tx.Signatures) == 0 {
		return ErrNoSignatures
	}
	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) != required || len(tx.Message.AccountKeys) < required {
		return fmt.Errorf("%w: %d required, %d signatures, %d account keys",
			ErrSignatureCountMismatch, required, len(tx.Signatures), len(tx.Message.AccountKeys))
	}

	message, err := tx.Message.Serialize()
	if err != nil {
		return fmt.Errorf("crypto: serialize message: %w", err)
	}
	for i, sig := range tx.Signatures {
		signer := tx.Message.AccountKeys[i]
		if err := Verify(signer, message, sig); err != nil {
			return &SignerError{Index: i, Signer: signer, Err: err}
		}
	}
	return nil
}
