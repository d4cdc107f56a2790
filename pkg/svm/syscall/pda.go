package syscall

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/fortiblox/savefi/pkg/types"
)

// Program address derivation limits.
const (
	MaxSeeds   = 16
	MaxSeedLen = 32
)

// pdaMarker is hashed after the seeds and program id.
const pdaMarker = "ProgramDerivedAddress"

var (
	ErrTooManySeeds    = errors.New("too many seeds")
	ErrSeedTooLong     = errors.New("seed exceeds maximum length")
	ErrInvalidSeeds    = errors.New("seeds produce an on-curve address")
	ErrBumpNotFound    = errors.New("no viable bump seed")
	ErrAddressMismatch = errors.New("address does not match derived address")
)

// IsOnCurve reports whether pubkey decodes to an ed25519 point, that is,
// whether a private key could sign for it.
func IsOnCurve(pubkey types.Pubkey) bool {
	_, err := new(edwards25519.Point).SetBytes(pubkey[:])
	return err == nil
}

// CreateProgramAddress hashes sha256(seeds... | programID | marker) and
// rejects results that land on the curve.
func CreateProgramAddress(seeds [][]byte, programID types.Pubkey) (types.Pubkey, error) {
	if len(seeds) > MaxSeeds {
		return types.ZeroPubkey, fmt.Errorf("%w: %d > %d", ErrTooManySeeds, len(seeds), MaxSeeds)
	}
	h := sha256.New()
	for i, seed := range seeds {
		if len(seed) > MaxSeedLen {
			return types.ZeroPubkey, fmt.Errorf("%w: seed %d is %d bytes", ErrSeedTooLong, i, len(seed))
		}
		h.Write(seed)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	addr := types.Pubkey(h.Sum(nil))
	if IsOnCurve(addr) {
		return types.ZeroPubkey, ErrInvalidSeeds
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down for the first off-curve
// address. A non-nil ctx pays CUFindPDAPerIter per attempt.
func FindProgramAddress(seeds [][]byte, programID types.Pubkey, ctx *ExecutionContext) (types.Pubkey, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return types.ZeroPubkey, 0, fmt.Errorf("%w: no room for the bump seed", ErrTooManySeeds)
	}
	bump := []byte{0}
	withBump := append(append(make([][]byte, 0, len(seeds)+1), seeds...), bump)

	for b := 255; b >= 0; b-- {
		if ctx != nil {
			if err := ctx.ConsumeComputeUnits(CUFindPDAPerIter); err != nil {
				return types.ZeroPubkey, 0, err
			}
		}
		bump[0] = byte(b)
		addr, err := CreateProgramAddress(withBump, programID)
		switch {
		case err == nil:
			return addr, byte(b), nil
		case !errors.Is(err, ErrInvalidSeeds):
			return types.ZeroPubkey, 0, err
		}
	}
	return types.ZeroPubkey, 0, ErrBumpNotFound
}

// FindProgramAddressSync is FindProgramAddress off the compute meter.
func FindProgramAddressSync(seeds [][]byte, programID types.Pubkey) (types.Pubkey, uint8, error) {
	return FindProgramAddress(seeds, programID, nil)
}

// DeriveAssociatedTokenAddress returns the associated token account of
// wallet for mint.
func DeriveAssociatedTokenAddress(wallet, mint types.Pubkey) (types.Pubkey, uint8, error) {
	return FindProgramAddressSync([][]byte{wallet[:], types.TokenProgramID[:], mint[:]}, types.AssociatedTokenProgramID)
}

// VerifyProgramAddress checks that expected is the address derived from
// seeds plus bump. A non-nil ctx pays CUCreatePDA.
func VerifyProgramAddress(ctx *ExecutionContext, expected types.Pubkey, seeds [][]byte, bump uint8, programID types.Pubkey) error {
	if ctx != nil {
		if err := ctx.ConsumeComputeUnits(CUCreatePDA); err != nil {
			return err
		}
	}
	addr, err := CreateProgramAddress(append(append(make([][]byte, 0, len(seeds)+1), seeds...), []byte{bump}), programID)
	if err != nil {
		return err
	}
	if addr != expected {
		return fmt.Errorf("%w: got %s, derived %s", ErrAddressMismatch, expected, addr)
	}
	return nil
}
