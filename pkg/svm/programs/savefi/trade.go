package savefi

import (
	"github.com/fortiblox/savefi/pkg/svm/syscall"
)

// processTrade diverts the saved share of a trade into the vault. Accounts:
//
//	[0] owner (signer, writable)
//	[1] vault (writable)
//	[2] config
//	[3] fee account (writable)
//	[4] mint authority
//	[5] receipt mint (writable)
//	[6] vault token account (writable)
func (p *Program) processTrade(ctx *syscall.ExecutionContext, amount uint64) error {
	if amount == 0 {
		return wrap(ErrInvalidAmount, "trade amount is zero")
	}
	accs, err := instructionAccounts(ctx, 7)
	if err != nil {
		return err
	}
	owner, vaultAcc, configAcc, feeAcc := accs[0], accs[1], accs[2], accs[3]
	authorityAcc, mintAcc, vaultToken := accs[4], accs[5], accs[6]
	if err := requireWritable(owner, vaultAcc, feeAcc, mintAcc, vaultToken); err != nil {
		return err
	}

	cfg, err := loadConfig(ctx, configAcc)
	if err != nil {
		return err
	}
	if cfg.Paused {
		return ErrProtocolPaused
	}
	if cfg.EmergencyMode {
		return ErrEmergencyModeActive
	}

	now := ctx.UnixTimestamp
	v, err := loadOwnedVault(ctx, owner, vaultAcc)
	if err != nil {
		return err
	}
	if !v.IsActive(now) {
		return wrap(ErrVaultInactive, "subscription expired at %d", v.SubscriptionExpiry)
	}

	switch p.params.TradeGating {
	case TradeGatingAllowance:
		err = checkAllowance(v, amount, now)
	default:
		err = CheckDelegation(v, amount, now, p.params)
	}
	if err != nil {
		return err
	}
	if err := checkTransactionCount(v, now, p.params); err != nil {
		return err
	}

	fee, err := loadFeeAccount(ctx, feeAcc)
	if err != nil {
		return err
	}
	feeAmount, saved, err := SplitTrade(amount, fee.FeeRate, v.SaveRate)
	if err != nil {
		return err
	}
	collected, err := checkedAdd(fee.CollectedFees, feeAmount)
	if err != nil {
		return err
	}
	totalSaved, err := checkedAdd(v.TotalSaved, saved)
	if err != nil {
		return err
	}

	authority, err := LoadMintAuthority(authorityAcc)
	if err != nil {
		return err
	}
	if err := verifyAddress(ctx, authorityAcc, mintAuthoritySeeds(), authority.Bump, "mint authority"); err != nil {
		return err
	}
	receipts := receiptLedger{mint: mintAcc, vaultToken: vaultToken, vault: vaultAcc.Pubkey}
	if err := receipts.check(v, cfg.ReceiptMint); err != nil {
		return err
	}

	if err := payFromSigner(owner, vaultAcc, saved); err != nil {
		return err
	}
	if err := payFromSigner(owner, feeAcc, feeAmount); err != nil {
		return err
	}
	if err := receipts.mintTo(v, authorityAcc.Pubkey, saved); err != nil {
		return err
	}

	deadline, err := lockDeadline(now, v.LockDays)
	if err != nil {
		return err
	}
	if deadline > v.LockUntil {
		v.LockUntil = deadline
	}

	if p.params.TradeGating == TradeGatingAllowance {
		v.DelegatedAmount -= amount
	} else if err := RecordDelegation(v, amount, now, p.params); err != nil {
		return err
	}
	recordTransaction(v, now, p.params)
	v.LastDepositTime = now
	v.TotalSaved = totalSaved
	fee.CollectedFees = collected

	if err := store(vaultAcc, v); err != nil {
		return err
	}
	if err := store(feeAcc, fee); err != nil {
		return err
	}

	ctx.Logf("trade %d: fee=%d saved=%d balance=%d lock_until=%d", amount, feeAmount, saved, v.Balance, v.LockUntil)
	return setReturn(ctx, SaveResult{
		Fee:       feeAmount,
		Saved:     saved,
		Balance:   v.Balance,
		LockUntil: v.LockUntil,
	})
}

// delegateFunds grants the program an allowance to draw trades from.
// Accounts:
//
//	[0] owner (signer)
//	[1] vault (writable)
//	[2] config
func (p *Program) delegateFunds(ctx *syscall.ExecutionContext, amount uint64) error {
	accs, err := instructionAccounts(ctx, 3)
	if err != nil {
		return err
	}
	owner, vaultAcc, configAcc := accs[0], accs[1], accs[2]

	cfg, err := loadConfig(ctx, configAcc)
	if err != nil {
		return err
	}
	if cfg.Paused {
		return ErrProtocolPaused
	}
	v, err := loadOwnedVault(ctx, owner, vaultAcc)
	if err != nil {
		return err
	}

	now := ctx.UnixTimestamp
	if err := CheckDelegation(v, amount, now, p.params); err != nil {
		return err
	}
	expiry, err := lockDeadline(now, v.LockDays)
	if err != nil {
		return err
	}
	if err := RecordDelegation(v, amount, now, p.params); err != nil {
		return err
	}
	v.DelegatedAmount = amount
	v.DelegationExpiry = expiry

	if err := store(vaultAcc, v); err != nil {
		return err
	}
	ctx.Logf("delegated %d lamports until %d", amount, expiry)
	return nil
}

// revokeDelegation clears any outstanding allowance. Accounts:
//
//	[0] owner (signer)
//	[1] vault (writable)
func (p *Program) revokeDelegation(ctx *syscall.ExecutionContext) error {
	accs, err := instructionAccounts(ctx, 2)
	if err != nil {
		return err
	}
	owner, vaultAcc := accs[0], accs[1]
	v, err := loadOwnedVault(ctx, owner, vaultAcc)
	if err != nil {
		return err
	}
	v.DelegatedAmount = 0
	v.DelegationExpiry = 0
	if err := store(vaultAcc, v); err != nil {
		return err
	}
	ctx.Logf("delegation revoked")
	return nil
}
