package client

import (
	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/savefi/pkg/svm/programs/savefi"
)

// ProgramID is the vault program address.
var ProgramID = solana.PublicKey(savefi.ProgramID)

// FindConfigAddress derives the protocol config PDA.
func FindConfigAddress() (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{savefi.SeedConfig}, ProgramID)
}

// FindFeeAccountAddress derives the fee account PDA.
func FindFeeAccountAddress() (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{savefi.SeedFeeAccount}, ProgramID)
}

// FindMintAuthorityAddress derives the receipt mint authority PDA.
func FindMintAuthorityAddress() (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{savefi.SeedMintAuthority}, ProgramID)
}

// FindVaultAddress derives owner's vault PDA.
func FindVaultAddress(owner solana.PublicKey) (solana.PublicKey, uint8, error) {
	return solana.FindProgramAddress([][]byte{savefi.SeedVault, owner[:]}, ProgramID)
}

// FindVaultTokenAddress derives the receipt token account of a vault.
func FindVaultTokenAddress(vault, receiptMint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(vault, receiptMint)
	return addr, err
}
