package client

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/fortiblox/savefi/pkg/svm/programs/savefi"
	"github.com/fortiblox/savefi/pkg/types"
)

func (c *Client) ownerAccounts(owner solana.PrivateKey) (savefi.VaultAccounts, error) {
	return c.addrs.OwnerAccounts(pubkey(owner))
}

// sendOwner builds one instruction for owner's vault and sends it.
func (c *Client) sendOwner(ctx context.Context, owner solana.PrivateKey, build func(savefi.VaultAccounts) (types.Instruction, error)) (solana.Signature, error) {
	v, err := c.ownerAccounts(owner)
	if err != nil {
		return solana.Signature{}, err
	}
	ix, err := build(v)
	if err != nil {
		return solana.Signature{}, err
	}
	return c.Send(ctx, owner, []types.Instruction{ix})
}

// InitializeVault opens owner's vault.
func (c *Client) InitializeVault(ctx context.Context, owner solana.PrivateKey, saveRate, lockDays uint8) (solana.Signature, error) {
	if !c.params.ValidSaveRate(saveRate) {
		return solana.Signature{}, fmt.Errorf("%w: %d%% not in [%d, %d]", savefi.ErrInvalidSaveRate, saveRate, c.params.MinSaveRate, c.params.MaxSaveRate)
	}
	if !c.params.ValidLockDays(lockDays) {
		return solana.Signature{}, fmt.Errorf("%w: %d days not in [%d, %d]", savefi.ErrInvalidLockPeriod, lockDays, c.params.MinLockDays, c.params.MaxLockDays)
	}
	return c.sendOwner(ctx, owner, func(v savefi.VaultAccounts) (types.Instruction, error) {
		return c.addrs.InitializeVault(v, saveRate, lockDays)
	})
}

// ProcessTrade records a trade of amount lamports and saves its share.
func (c *Client) ProcessTrade(ctx context.Context, owner solana.PrivateKey, amount uint64) (solana.Signature, error) {
	if amount == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero trade", savefi.ErrInvalidAmount)
	}
	return c.sendOwner(ctx, owner, func(v savefi.VaultAccounts) (types.Instruction, error) {
		return c.addrs.ProcessTrade(v, amount)
	})
}

// Save is ProcessTrade under the program's "save" instruction name.
func (c *Client) Save(ctx context.Context, owner solana.PrivateKey, amount uint64) (solana.Signature, error) {
	if amount == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero amount", savefi.ErrInvalidAmount)
	}
	return c.sendOwner(ctx, owner, func(v savefi.VaultAccounts) (types.Instruction, error) {
		return c.addrs.Save(v, amount)
	})
}

// Withdraw pays out the whole vault balance once the lock has ended.
func (c *Client) Withdraw(ctx context.Context, owner solana.PrivateKey) (solana.Signature, error) {
	return c.sendOwner(ctx, owner, c.addrs.Withdraw)
}

// EmergencyWithdraw withdraws amount before the lock ends, minus the
// emergency penalty.
func (c *Client) EmergencyWithdraw(ctx context.Context, owner solana.PrivateKey, amount uint64) (solana.Signature, error) {
	if amount == 0 {
		return solana.Signature{}, fmt.Errorf("%w: zero amount", savefi.ErrInvalidAmount)
	}
	return c.sendOwner(ctx, owner, func(v savefi.VaultAccounts) (types.Instruction, error) {
		return c.addrs.EmergencyWithdraw(v, amount)
	})
}

// SetSaveRate changes the vault's save rate.
func (c *Client) SetSaveRate(ctx context.Context, owner solana.PrivateKey, rate uint8) (solana.Signature, error) {
	if !c.params.ValidSaveRate(rate) {
		return solana.Signature{}, fmt.Errorf("%w: %d%% not in [%d, %d]", savefi.ErrInvalidSaveRate, rate, c.params.MinSaveRate, c.params.MaxSaveRate)
	}
	return c.sendOwner(ctx, owner, func(v savefi.VaultAccounts) (types.Instruction, error) {
		return c.addrs.SetSaveRate(v, rate)
	})
}

// SetLockPeriod changes the lock applied by future deposits.
func (c *Client) SetLockPeriod(ctx context.Context, owner solana.PrivateKey, days uint8) (solana.Signature, error) {
	if !c.params.ValidLockDays(days) {
		return solana.Signature{}, fmt.Errorf("%w: %d days not in [%d, %d]", savefi.ErrInvalidLockPeriod, days, c.params.MinLockDays, c.params.MaxLockDays)
	}
	return c.sendOwner(ctx, owner, func(v savefi.VaultAccounts) (types.Instruction, error) {
		return c.addrs.SetLockPeriod(v, days)
	})
}

// UpdateVault changes the fields of args that are set.
func (c *Client) UpdateVault(ctx context.Context, owner solana.PrivateKey, args savefi.UpdateVaultArgs) (solana.Signature, error) {
	if args.SaveRate != nil && !c.params.ValidSaveRate(*args.SaveRate) {
		return solana.Signature{}, fmt.Errorf("%w: %d%%", savefi.ErrInvalidSaveRate, *args.SaveRate)
	}
	if args.LockDays != nil && !c.params.ValidLockDays(*args.LockDays) {
		return solana.Signature{}, fmt.Errorf("%w: %d days", savefi.ErrInvalidLockPeriod, *args.LockDays)
	}
	return c.sendOwner(ctx, owner, func(v savefi.VaultAccounts) (types.Instruction, error) {
		return c.addrs.UpdateVault(v, args)
	})
}

// RenewSubscription pays the subscription fee for another period.
func (c *Client) RenewSubscription(ctx context.Context, owner solana.PrivateKey) (solana.Signature, error) {
	return c.sendOwner(ctx, owner, c.addrs.RenewSubscription)
}

// DelegateFunds grants a trading allowance of amount lamports.
func (c *Client) DelegateFunds(ctx context.Context, owner solana.PrivateKey, amount uint64) (solana.Signature, error) {
	if amount < c.params.MinDelegation {
		return solana.Signature{}, fmt.Errorf("%w: %s SOL", savefi.ErrDelegationTooSmall, FormatSOL(amount))
	}
	if amount > c.params.MaxDelegation {
		return solana.Signature{}, fmt.Errorf("%w: %s SOL", savefi.ErrDelegationTooLarge, FormatSOL(amount))
	}
	return c.sendOwner(ctx, owner, func(v savefi.VaultAccounts) (types.Instruction, error) {
		return c.addrs.DelegateFunds(v, amount)
	})
}

// RevokeDelegation clears the trading allowance.
func (c *Client) RevokeDelegation(ctx context.Context, owner solana.PrivateKey) (solana.Signature, error) {
	return c.sendOwner(ctx, owner, c.addrs.RevokeDelegation)
}

// CreateReceiptMint creates and initializes the receipt mint account mint,
// with the protocol's mint authority PDA as its authority.
func (c *Client) CreateReceiptMint(ctx context.Context, payer, mint solana.PrivateKey) (solana.Signature, error) {
	if pubkey(mint) != c.addrs.ReceiptMint {
		return solana.Signature{}, fmt.Errorf("mint key %s does not match receipt mint %s", mint.PublicKey(), c.addrs.ReceiptMint)
	}
	return c.Send(ctx, payer, c.addrs.CreateReceiptMint(pubkey(payer), c.params.ReceiptDecimals), mint)
}

// InitializeMints creates the protocol config and fee accounts.
func (c *Client) InitializeMints(ctx context.Context, admin solana.PrivateKey, feeRate uint8) (solana.Signature, error) {
	if !c.params.ValidFeeRate(feeRate) {
		return solana.Signature{}, fmt.Errorf("%w: %d%% not in [%d, %d]", savefi.ErrInvalidFeeRate, feeRate, c.params.MinFeeRate, c.params.MaxFeeRate)
	}
	return c.sendAdmin(ctx, admin, func(pk types.Pubkey) (types.Instruction, error) {
		return c.addrs.InitializeMints(pk, feeRate)
	})
}

// UpdateFee changes the protocol fee rate.
func (c *Client) UpdateFee(ctx context.Context, admin solana.PrivateKey, feeRate uint8) (solana.Signature, error) {
	if !c.params.ValidFeeRate(feeRate) {
		return solana.Signature{}, fmt.Errorf("%w: %d%% not in [%d, %d]", savefi.ErrInvalidFeeRate, feeRate, c.params.MinFeeRate, c.params.MaxFeeRate)
	}
	return c.sendAdmin(ctx, admin, func(pk types.Pubkey) (types.Instruction, error) {
		return c.addrs.UpdateFee(pk, feeRate)
	})
}

// CollectFees moves the collected fees to the admin.
func (c *Client) CollectFees(ctx context.Context, admin solana.PrivateKey) (solana.Signature, error) {
	return c.sendAdmin(ctx, admin, c.addrs.CollectFees)
}

// SetPaused pauses or resumes the protocol.
func (c *Client) SetPaused(ctx context.Context, admin solana.PrivateKey, paused bool) (solana.Signature, error) {
	return c.sendAdmin(ctx, admin, func(pk types.Pubkey) (types.Instruction, error) {
		return c.addrs.SetPaused(pk, paused)
	})
}

// SetEmergencyMode toggles emergency mode.
func (c *Client) SetEmergencyMode(ctx context.Context, admin solana.PrivateKey, enabled bool) (solana.Signature, error) {
	return c.sendAdmin(ctx, admin, func(pk types.Pubkey) (types.Instruction, error) {
		return c.addrs.SetEmergencyMode(pk, enabled)
	})
}

func (c *Client) sendAdmin(ctx context.Context, admin solana.PrivateKey, build func(types.Pubkey) (types.Instruction, error)) (solana.Signature, error) {
	ix, err := build(pubkey(admin))
	if err != nil {
		return solana.Signature{}, err
	}
	return c.Send(ctx, admin, []types.Instruction{ix})
}
