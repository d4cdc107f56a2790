package savefi

import (
	"errors"

	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

// PDA seed prefixes.
var (
	SeedConfig        = []byte("config")
	SeedFeeAccount    = []byte("fee_account")
	SeedMintAuthority = []byte("mint_authority")
	SeedVault         = []byte("vault")
)

func configSeeds() [][]byte        { return [][]byte{SeedConfig} }
func feeAccountSeeds() [][]byte    { return [][]byte{SeedFeeAccount} }
func mintAuthoritySeeds() [][]byte { return [][]byte{SeedMintAuthority} }

func vaultSeeds(owner types.Pubkey) [][]byte {
	return [][]byte{SeedVault, owner.Bytes()}
}

// ConfigAddress derives the protocol config PDA.
func ConfigAddress() (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddressSync(configSeeds(), ProgramID)
}

// FeeAccountAddress derives the fee account PDA.
func FeeAccountAddress() (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddressSync(feeAccountSeeds(), ProgramID)
}

// MintAuthorityAddress derives the receipt mint authority PDA.
func MintAuthorityAddress() (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddressSync(mintAuthoritySeeds(), ProgramID)
}

// VaultAddress derives owner's vault PDA.
func VaultAddress(owner types.Pubkey) (types.Pubkey, uint8, error) {
	return syscall.FindProgramAddressSync(vaultSeeds(owner), ProgramID)
}

// VaultTokenAddress derives the receipt token account of a vault.
func VaultTokenAddress(vault, receiptMint types.Pubkey) (types.Pubkey, error) {
	addr, _, err := syscall.DeriveAssociatedTokenAddress(vault, receiptMint)
	return addr, err
}

// findAddress derives a PDA inside an instruction, charging ctx, and checks
// that acc sits at it.
func findAddress(ctx *syscall.ExecutionContext, acc *syscall.AccountInfo, seeds [][]byte, what string) (uint8, error) {
	addr, bump, err := syscall.FindProgramAddress(seeds, ProgramID, ctx)
	if err != nil {
		return 0, err
	}
	if acc.Pubkey != addr {
		return 0, wrap(ErrInvalidAccount, "%s: expected %s, got %s", what, addr, acc.Pubkey)
	}
	return bump, nil
}

// verifyAddress checks acc against a PDA whose bump is already known.
func verifyAddress(ctx *syscall.ExecutionContext, acc *syscall.AccountInfo, seeds [][]byte, bump uint8, what string) error {
	err := syscall.VerifyProgramAddress(ctx, acc.Pubkey, seeds, bump, ProgramID)
	if errors.Is(err, syscall.ErrAddressMismatch) || errors.Is(err, syscall.ErrInvalidSeeds) {
		return wrap(ErrInvalidAccount, "%s %s", what, acc.Pubkey)
	}
	return err
}
