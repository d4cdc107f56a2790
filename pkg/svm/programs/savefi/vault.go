package savefi

import (
	"github.com/fortiblox/savefi/pkg/svm/syscall"
)

// loadOwnedVault reads a vault, checks its address, and checks that owner
// signed as its recorded owner.
func loadOwnedVault(ctx *syscall.ExecutionContext, owner, vaultAcc *syscall.AccountInfo) (*Vault, error) {
	if err := requireSigner(owner, "owner"); err != nil {
		return nil, err
	}
	v, err := LoadVault(vaultAcc)
	if err != nil {
		return nil, err
	}
	if err := verifyAddress(ctx, vaultAcc, vaultSeeds(v.Owner), v.Bump, "vault"); err != nil {
		return nil, err
	}
	if v.Owner != owner.Pubkey {
		return nil, wrap(ErrUnauthorized, "vault %s belongs to %s", vaultAcc.Pubkey, v.Owner)
	}
	return v, nil
}

// lockDeadline returns now plus lockDays days.
func lockDeadline(now int64, lockDays uint8) (int64, error) {
	return addSeconds(now, int64(lockDays)*SecondsPerDay)
}

// initializeVault creates the owner's vault and its receipt token account.
// Accounts:
//
//	[0] owner (signer, writable)
//	[1] vault (writable)
//	[2] vault token account (writable)
//	[3] receipt mint
//	[4] config
func (p *Program) initializeVault(ctx *syscall.ExecutionContext, args InitializeVaultArgs) error {
	accs, err := instructionAccounts(ctx, 5)
	if err != nil {
		return err
	}
	owner, vaultAcc, vaultToken, mintAcc, configAcc := accs[0], accs[1], accs[2], accs[3], accs[4]

	if err := requireSigner(owner, "owner"); err != nil {
		return err
	}
	if err := requireWritable(owner, vaultAcc, vaultToken); err != nil {
		return err
	}
	bump, err := findAddress(ctx, vaultAcc, vaultSeeds(owner.Pubkey), "vault")
	if err != nil {
		return err
	}
	if len(vaultAcc.Data) > 0 {
		return wrap(ErrAlreadyInitialized, "vault %s", vaultAcc.Pubkey)
	}
	if !p.params.ValidSaveRate(args.SaveRate) {
		return wrap(ErrInvalidSaveRate, "%d not in %d..%d", args.SaveRate, p.params.MinSaveRate, p.params.MaxSaveRate)
	}
	if !p.params.ValidLockDays(args.LockDays) {
		return wrap(ErrInvalidLockPeriod, "%d days not in %d..%d", args.LockDays, p.params.MinLockDays, p.params.MaxLockDays)
	}

	cfg, err := loadConfig(ctx, configAcc)
	if err != nil {
		return err
	}
	if cfg.Paused {
		return ErrProtocolPaused
	}
	if mintAcc.Pubkey != cfg.ReceiptMint {
		return wrap(ErrInvalidMint, "expected %s, got %s", cfg.ReceiptMint, mintAcc.Pubkey)
	}

	now := ctx.UnixTimestamp
	lockUntil, err := lockDeadline(now, args.LockDays)
	if err != nil {
		return err
	}
	expiry, err := addSeconds(lockUntil, p.params.subscriptionPeriod())
	if err != nil {
		return err
	}

	if err := createProgramAccount(owner, vaultAcc, VaultSize); err != nil {
		return err
	}
	if err := openVaultToken(owner, vaultToken, mintAcc, vaultAcc.Pubkey); err != nil {
		return err
	}
	v := &Vault{
		Owner:              owner.Pubkey,
		SaveRate:           args.SaveRate,
		LockDays:           args.LockDays,
		LockUntil:          lockUntil,
		SubscriptionExpiry: expiry,
		Bump:               bump,
	}
	if err := store(vaultAcc, v); err != nil {
		return err
	}
	ctx.Logf("vault %s opened: save_rate=%d lock_days=%d", vaultAcc.Pubkey, args.SaveRate, args.LockDays)
	return nil
}

// updateVault changes the save rate and/or lock period. Balance and
// lock_until are untouched. Accounts:
//
//	[0] owner (signer)
//	[1] vault (writable)
func (p *Program) updateVault(ctx *syscall.ExecutionContext, args UpdateVaultArgs) error {
	if args.SaveRate != nil && !p.params.ValidSaveRate(*args.SaveRate) {
		return wrap(ErrInvalidSaveRate, "%d not in %d..%d", *args.SaveRate, p.params.MinSaveRate, p.params.MaxSaveRate)
	}
	if args.LockDays != nil && !p.params.ValidLockDays(*args.LockDays) {
		return wrap(ErrInvalidLockPeriod, "%d days not in %d..%d", *args.LockDays, p.params.MinLockDays, p.params.MaxLockDays)
	}

	accs, err := instructionAccounts(ctx, 2)
	if err != nil {
		return err
	}
	owner, vaultAcc := accs[0], accs[1]
	v, err := loadOwnedVault(ctx, owner, vaultAcc)
	if err != nil {
		return err
	}

	if args.SaveRate != nil {
		v.SaveRate = *args.SaveRate
	}
	if args.LockDays != nil {
		v.LockDays = *args.LockDays
	}
	if err := store(vaultAcc, v); err != nil {
		return err
	}
	ctx.Logf("vault updated: save_rate=%d lock_days=%d", v.SaveRate, v.LockDays)
	return nil
}

// renewSubscription charges the subscription fee and extends the vault's
// active period. Accounts:
//
//	[0] owner (signer, writable)
//	[1] vault (writable)
//	[2] fee account (writable)
func (p *Program) renewSubscription(ctx *syscall.ExecutionContext) error {
	accs, err := instructionAccounts(ctx, 3)
	if err != nil {
		return err
	}
	owner, vaultAcc, feeAcc := accs[0], accs[1], accs[2]

	v, err := loadOwnedVault(ctx, owner, vaultAcc)
	if err != nil {
		return err
	}
	fee, err := loadFeeAccount(ctx, feeAcc)
	if err != nil {
		return err
	}

	collected, err := checkedAdd(fee.CollectedFees, p.params.SubscriptionFee)
	if err != nil {
		return err
	}
	now := ctx.UnixTimestamp
	base := v.SubscriptionExpiry
	if base < now {
		base = now
	}
	expiry, err := addSeconds(base, p.params.subscriptionPeriod())
	if err != nil {
		return err
	}

	if err := payFromSigner(owner, feeAcc, p.params.SubscriptionFee); err != nil {
		return err
	}
	fee.CollectedFees = collected
	v.SubscriptionExpiry = expiry
	if err := store(feeAcc, fee); err != nil {
		return err
	}
	if err := store(vaultAcc, v); err != nil {
		return err
	}
	ctx.Logf("subscription renewed until %d", expiry)
	return setReturn(ctx, expiry)
}
