package savefi

import (
	"errors"

	"github.com/fortiblox/savefi/pkg/svm/programs/system"
	"github.com/fortiblox/savefi/pkg/svm/programs/token"
	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

// receiptLedger mints and burns a vault's receipt tokens. The vault PDA owns
// the token account and only this program signs for it, so receipts cannot
// move anywhere else.
type receiptLedger struct {
	mint       *syscall.AccountInfo
	vaultToken *syscall.AccountInfo
	vault      types.Pubkey
}

// check verifies the accounts and that the token balance mirrors the vault
// balance.
func (r receiptLedger) check(v *Vault, receiptMint types.Pubkey) error {
	if r.mint.Pubkey != receiptMint {
		return wrap(ErrInvalidMint, "expected %s, got %s", receiptMint, r.mint.Pubkey)
	}
	want, err := VaultTokenAddress(r.vault, receiptMint)
	if err != nil {
		return err
	}
	if r.vaultToken.Pubkey != want {
		return wrap(ErrInvalidAccount, "vault token: expected %s, got %s", want, r.vaultToken.Pubkey)
	}
	acct, err := token.LoadTokenAccount(r.vaultToken)
	if err != nil {
		return wrap(ErrInvalidAccount, "vault token: %v", err)
	}
	if acct.Mint != receiptMint || acct.Owner != r.vault {
		return wrap(ErrInvalidAccount, "vault token %s not held by vault", r.vaultToken.Pubkey)
	}
	if acct.Amount != v.Balance {
		return wrap(ErrInvalidAccount, "receipt balance %d, vault balance %d", acct.Amount, v.Balance)
	}
	return nil
}

// mint issues amount receipts and credits the vault balance. authority is
// the verified mint authority PDA.
func (r receiptLedger) mintTo(v *Vault, authority types.Pubkey, amount uint64) error {
	balance, err := checkedAdd(v.Balance, amount)
	if err != nil {
		return err
	}
	if amount > 0 {
		if err := token.MintTo(r.mint, r.vaultToken, authority, amount); err != nil {
			return tokenError(err)
		}
	}
	v.Balance = balance
	return nil
}

// burn destroys amount receipts and debits the vault balance.
func (r receiptLedger) burn(v *Vault, amount uint64) error {
	balance, err := checkedSub(v.Balance, amount)
	if err != nil {
		return wrap(ErrInsufficientFunds, "burn %d of %d", amount, v.Balance)
	}
	if amount > 0 {
		if err := token.Burn(r.vaultToken, r.mint, r.vault, amount); err != nil {
			return tokenError(err)
		}
	}
	v.Balance = balance
	return nil
}

// openVaultToken creates and initializes the vault's receipt token account,
// paid for by payer.
func openVaultToken(payer, vaultToken, mint *syscall.AccountInfo, vault types.Pubkey) error {
	want, err := VaultTokenAddress(vault, mint.Pubkey)
	if err != nil {
		return err
	}
	if vaultToken.Pubkey != want {
		return wrap(ErrInvalidAccount, "vault token: expected %s, got %s", want, vaultToken.Pubkey)
	}
	if err := system.InitAccount(payer, vaultToken, token.TokenAccountSize, types.TokenProgramID); err != nil {
		return systemError(err)
	}
	if err := token.InitializeAccount(vaultToken, mint, vault); err != nil {
		return tokenError(err)
	}
	return nil
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, token.ErrOverflow):
		return wrap(ErrArithmeticOverflow, "%v", err)
	case errors.Is(err, token.ErrInvalidMint),
		errors.Is(err, token.ErrMintMismatch),
		errors.Is(err, token.ErrAuthorityMismatch),
		errors.Is(err, token.ErrFixedSupply):
		return wrap(ErrInvalidMint, "%v", err)
	case errors.Is(err, token.ErrInsufficientFunds):
		return wrap(ErrInsufficientFunds, "%v", err)
	case errors.Is(err, token.ErrAlreadyInitialized):
		return wrap(ErrAlreadyInitialized, "%v", err)
	}
	return wrap(ErrInvalidAccount, "%v", err)
}

func systemError(err error) error {
	switch {
	case errors.Is(err, system.ErrInsufficientFunds):
		return wrap(ErrInsufficientFunds, "%v", err)
	case errors.Is(err, system.ErrAccountAlreadyExists):
		return wrap(ErrAlreadyInitialized, "%v", err)
	case errors.Is(err, system.ErrAccountNotSigner):
		return wrap(ErrUnauthorized, "%v", err)
	}
	return wrap(ErrInvalidAccount, "%v", err)
}

// payFromSigner moves lamports out of a system-owned signer.
func payFromSigner(from, to *syscall.AccountInfo, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := system.Transfer(from, to, amount); err != nil {
		return systemError(err)
	}
	return nil
}

// payFromProgram moves lamports out of a program-owned account, never
// dipping below its rent-exempt minimum.
func payFromProgram(ctx *syscall.ExecutionContext, from, to *syscall.AccountInfo, amount uint64) error {
	if amount == 0 {
		return nil
	}
	needed, err := checkedAdd(uint64(types.RentExemptMinimum(uint64(len(from.Data)))), amount)
	if err != nil {
		return err
	}
	if *from.Lamports < needed {
		return wrap(ErrInsufficientFunds, "%s holds %d lamports, need %d", from.Pubkey, *from.Lamports, needed)
	}
	if err := ctx.TransferLamports(from.Pubkey, to.Pubkey, amount); err != nil {
		if errors.Is(err, syscall.ErrLamportOverflow) {
			return wrap(ErrArithmeticOverflow, "%v", err)
		}
		return wrap(ErrInvalidAccount, "%v", err)
	}
	return nil
}

// createProgramAccount allocates a rent-exempt account of size bytes owned by
// the program at a PDA the caller has already verified. Lamports already
// sitting at the address count toward rent.
func createProgramAccount(payer, acc *syscall.AccountInfo, size int) error {
	if len(acc.Data) > 0 || acc.Owner != types.SystemProgramID {
		return wrap(ErrAlreadyInitialized, "%s", acc.Pubkey)
	}
	if err := system.InitAccount(payer, acc, uint64(size), ProgramID); err != nil {
		return systemError(err)
	}
	return nil
}
