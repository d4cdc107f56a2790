package token

import (
	"fmt"
	"math/bits"

	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

func accounts(ctx *syscall.ExecutionContext, name string, n int) ([]*syscall.AccountInfo, error) {
	if ctx.AccountCount() < n {
		return nil, fmt.Errorf("%w: %s needs %d, got %d", ErrInvalidNumberOfAccounts, name, n, ctx.AccountCount())
	}
	return ctx.Accounts[:n], nil
}

// role names an account for error messages.
type role struct {
	name string
	acc  *syscall.AccountInfo
}

func writable(roles ...role) error {
	for _, r := range roles {
		if !r.acc.IsWritable {
			return fmt.Errorf("%w: %s", ErrAccountNotWritable, r.name)
		}
	}
	return nil
}

func mustSign(r role) error {
	if !r.acc.IsSigner {
		return fmt.Errorf("%w: %s", ErrAccountNotSigner, r.name)
	}
	return nil
}

func add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}

type packable interface{ Serialize() []byte }

func store(acc *syscall.AccountInfo, v packable) { copy(acc.Data, v.Serialize()) }

// uninitialized checks a token-owned account of the exact size whose state
// byte is still zero.
func uninitialized(acc *syscall.AccountInfo, what string, size int, initialized func([]byte) bool) error {
	if acc.Owner != types.TokenProgramID {
		return fmt.Errorf("%w: %s", ErrInvalidAccountOwner, what)
	}
	if len(acc.Data) != size {
		return fmt.Errorf("%w: %s must be %d bytes, is %d", ErrInvalidAccountData, what, size, len(acc.Data))
	}
	if initialized(acc.Data) {
		return ErrAlreadyInitialized
	}
	return nil
}

func handleInitializeMint(ctx *syscall.ExecutionContext, inst *InitializeMintInstruction) error {
	accs, err := accounts(ctx, "InitializeMint", 1)
	if err != nil {
		return err
	}
	mintAcc := accs[0]
	if err := writable(role{"mint", mintAcc}); err != nil {
		return err
	}
	err = uninitialized(mintAcc, "mint", MintSize, func(b []byte) bool {
		m, err := DeserializeMint(b)
		return err == nil && m.IsInitialized
	})
	if err != nil {
		return err
	}
	store(mintAcc, NewMint(inst.Decimals, &inst.MintAuthority, inst.FreezeAuthority))
	return nil
}

func handleInitializeAccount(ctx *syscall.ExecutionContext) error {
	accs, err := accounts(ctx, "InitializeAccount", 3)
	if err != nil {
		return err
	}
	return InitializeAccount(accs[0], accs[1], accs[2].Pubkey)
}

// InitializeAccount turns an allocated, token-owned account into a holder
// of mint for owner.
func InitializeAccount(tokenAcc, mintAcc *syscall.AccountInfo, owner types.Pubkey) error {
	if err := writable(role{"token account", tokenAcc}); err != nil {
		return err
	}
	err := uninitialized(tokenAcc, "token account", TokenAccountSize, func(b []byte) bool {
		a, err := DeserializeTokenAccount(b)
		return err == nil && a.State != AccountStateUninitialized
	})
	if err != nil {
		return err
	}
	if _, err := LoadMint(mintAcc); err != nil {
		return err
	}
	store(tokenAcc, NewTokenAccount(mintAcc.Pubkey, owner))
	return nil
}

// LoadMint decodes an initialized, token-owned mint.
func LoadMint(acc *syscall.AccountInfo) (*Mint, error) {
	if acc.Owner != types.TokenProgramID {
		return nil, fmt.Errorf("%w: mint owned by %s", ErrInvalidMint, acc.Owner)
	}
	m, err := DeserializeMint(acc.Data)
	switch {
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidMint, err)
	case !m.IsInitialized:
		return nil, fmt.Errorf("%w: not initialized", ErrInvalidMint)
	}
	return m, nil
}

// LoadTokenAccount decodes an initialized, token-owned holder account.
func LoadTokenAccount(acc *syscall.AccountInfo) (*TokenAccount, error) {
	if acc.Owner != types.TokenProgramID {
		return nil, fmt.Errorf("%w: token account owned by %s", ErrInvalidAccountOwner, acc.Owner)
	}
	a, err := DeserializeTokenAccount(acc.Data)
	if err != nil {
		return nil, err
	}
	if a.State == AccountStateUninitialized {
		return nil, fmt.Errorf("token account: %w", ErrNotInitialized)
	}
	return a, nil
}

// loadHolder loads a holder that must be live and hold tokens of mint.
func loadHolder(acc *syscall.AccountInfo, what string, mint types.Pubkey) (*TokenAccount, error) {
	a, err := LoadTokenAccount(acc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	if a.IsFrozen() {
		return nil, fmt.Errorf("%s: %w", what, ErrAccountFrozen)
	}
	if a.Mint != mint {
		return nil, fmt.Errorf("%s: %w", what, ErrMintMismatch)
	}
	return a, nil
}

func handleTransfer(ctx *syscall.ExecutionContext, inst *TransferInstruction) error {
	accs, err := accounts(ctx, "Transfer", 3)
	if err != nil {
		return err
	}
	srcAcc, dstAcc, auth := accs[0], accs[1], role{"authority", accs[2]}
	if err := writable(role{"source", srcAcc}, role{"destination", dstAcc}); err != nil {
		return err
	}
	if err := mustSign(auth); err != nil {
		return err
	}

	src, err := LoadTokenAccount(srcAcc)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if src.IsFrozen() {
		return fmt.Errorf("source: %w", ErrAccountFrozen)
	}
	dst, err := loadHolder(dstAcc, "destination", src.Mint)
	if err != nil {
		return err
	}
	if src.Owner != auth.acc.Pubkey {
		return ErrOwnerMismatch
	}
	if inst.Amount > src.Amount {
		return ErrInsufficientFunds
	}
	if srcAcc.Pubkey == dstAcc.Pubkey {
		return nil
	}
	if dst.Amount, err = add(dst.Amount, inst.Amount); err != nil {
		return err
	}
	src.Amount -= inst.Amount
	store(srcAcc, src)
	store(dstAcc, dst)
	return nil
}

func handleMintTo(ctx *syscall.ExecutionContext, inst *MintToInstruction) error {
	accs, err := accounts(ctx, "MintTo", 3)
	if err != nil {
		return err
	}
	if err := mustSign(role{"mint authority", accs[2]}); err != nil {
		return err
	}
	return MintTo(accs[0], accs[1], accs[2].Pubkey, inst.Amount)
}

// MintTo issues amount new tokens into dstAcc. authority must be the mint
// authority; proving it signed is the caller's job.
func MintTo(mintAcc, dstAcc *syscall.AccountInfo, authority types.Pubkey, amount uint64) error {
	if err := writable(role{"mint", mintAcc}, role{"destination", dstAcc}); err != nil {
		return err
	}
	mint, err := LoadMint(mintAcc)
	if err != nil {
		return err
	}
	dst, err := loadHolder(dstAcc, "destination", mintAcc.Pubkey)
	if err != nil {
		return err
	}
	switch {
	case !mint.MintAuthority.IsSome:
		return ErrFixedSupply
	case mint.MintAuthority.Value != authority:
		return ErrAuthorityMismatch
	}
	if mint.Supply, err = add(mint.Supply, amount); err != nil {
		return err
	}
	if dst.Amount, err = add(dst.Amount, amount); err != nil {
		return err
	}
	store(mintAcc, mint)
	store(dstAcc, dst)
	return nil
}

func handleBurn(ctx *syscall.ExecutionContext, inst *BurnInstruction) error {
	accs, err := accounts(ctx, "Burn", 3)
	if err != nil {
		return err
	}
	if err := mustSign(role{"authority", accs[2]}); err != nil {
		return err
	}
	return Burn(accs[0], accs[1], accs[2].Pubkey, inst.Amount)
}

// Burn destroys amount tokens held by srcAcc. authority must own srcAcc.
func Burn(srcAcc, mintAcc *syscall.AccountInfo, authority types.Pubkey, amount uint64) error {
	if err := writable(role{"source", srcAcc}, role{"mint", mintAcc}); err != nil {
		return err
	}
	mint, err := LoadMint(mintAcc)
	if err != nil {
		return err
	}
	src, err := loadHolder(srcAcc, "source", mintAcc.Pubkey)
	if err != nil {
		return err
	}
	if src.Owner != authority {
		return ErrOwnerMismatch
	}
	if amount > src.Amount || amount > mint.Supply {
		return ErrInsufficientFunds
	}
	src.Amount -= amount
	mint.Supply -= amount
	store(srcAcc, src)
	store(mintAcc, mint)
	return nil
}
