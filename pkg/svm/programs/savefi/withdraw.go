package savefi

import (
	"github.com/fortiblox/savefi/pkg/svm/syscall"
)

// withdraw pays the whole balance back to the owner once the lock has
// expired. Accounts:
//
//	[0] owner (signer, writable)
//	[1] vault (writable)
//	[2] protocol config
//	[3] receipt mint (writable)
//	[4] vault token account (writable)
func (p *Program) withdraw(ctx *syscall.ExecutionContext) error {
	accs, err := instructionAccounts(ctx, 5)
	if err != nil {
		return err
	}
	owner, vaultAcc, configAcc, mintAcc, vaultToken := accs[0], accs[1], accs[2], accs[3], accs[4]
	if err := requireWritable(owner, vaultAcc, mintAcc, vaultToken); err != nil {
		return err
	}
	cfg, err := loadConfig(ctx, configAcc)
	if err != nil {
		return err
	}

	v, err := loadOwnedVault(ctx, owner, vaultAcc)
	if err != nil {
		return err
	}
	now := ctx.UnixTimestamp
	if v.IsLocked(now) {
		return wrap(ErrVaultLocked, "locked until %d", v.LockUntil)
	}
	if !v.IsActive(now) {
		return wrap(ErrVaultInactive, "subscription expired at %d", v.SubscriptionExpiry)
	}
	if v.Balance == 0 {
		return wrap(ErrInsufficientFunds, "vault is empty")
	}

	receipts := receiptLedger{mint: mintAcc, vaultToken: vaultToken, vault: vaultAcc.Pubkey}
	if err := receipts.check(v, cfg.ReceiptMint); err != nil {
		return err
	}
	amount := v.Balance
	if err := receipts.burn(v, amount); err != nil {
		return err
	}
	if err := payFromProgram(ctx, vaultAcc, owner, amount); err != nil {
		return err
	}

	v.LastWithdrawTime = now
	if err := store(vaultAcc, v); err != nil {
		return err
	}
	ctx.Logf("withdrew %d lamports", amount)
	return setReturn(ctx, amount)
}

// emergencyWithdraw releases amount regardless of the lock or subscription,
// sending a penalty to the fee account. Accounts:
//
//	[0] owner (signer, writable)
//	[1] vault (writable)
//	[2] protocol config
//	[3] fee account (writable)
//	[4] receipt mint (writable)
//	[5] vault token account (writable)
func (p *Program) emergencyWithdraw(ctx *syscall.ExecutionContext, amount uint64) error {
	if amount == 0 {
		return wrap(ErrInvalidAmount, "withdraw amount is zero")
	}
	accs, err := instructionAccounts(ctx, 6)
	if err != nil {
		return err
	}
	owner, vaultAcc, configAcc, feeAcc := accs[0], accs[1], accs[2], accs[3]
	mintAcc, vaultToken := accs[4], accs[5]
	if err := requireWritable(owner, vaultAcc, feeAcc, mintAcc, vaultToken); err != nil {
		return err
	}
	cfg, err := loadConfig(ctx, configAcc)
	if err != nil {
		return err
	}

	v, err := loadOwnedVault(ctx, owner, vaultAcc)
	if err != nil {
		return err
	}
	if amount > v.Balance {
		return wrap(ErrInsufficientFunds, "requested %d, balance %d", amount, v.Balance)
	}
	fee, err := loadFeeAccount(ctx, feeAcc)
	if err != nil {
		return err
	}

	penalty, err := percentOf(amount, p.params.EmergencyPenaltyRate)
	if err != nil {
		return err
	}
	payout := amount - penalty
	collected, err := checkedAdd(fee.CollectedFees, penalty)
	if err != nil {
		return err
	}

	receipts := receiptLedger{mint: mintAcc, vaultToken: vaultToken, vault: vaultAcc.Pubkey}
	if err := receipts.check(v, cfg.ReceiptMint); err != nil {
		return err
	}
	if err := receipts.burn(v, amount); err != nil {
		return err
	}
	if err := payFromProgram(ctx, vaultAcc, owner, payout); err != nil {
		return err
	}
	if err := payFromProgram(ctx, vaultAcc, feeAcc, penalty); err != nil {
		return err
	}

	v.LastWithdrawTime = ctx.UnixTimestamp
	fee.CollectedFees = collected
	if err := store(vaultAcc, v); err != nil {
		return err
	}
	if err := store(feeAcc, fee); err != nil {
		return err
	}
	ctx.Logf("emergency withdrawal %d: penalty=%d payout=%d", amount, penalty, payout)
	return setReturn(ctx, EmergencyWithdrawResult{Amount: amount, Penalty: penalty, Payout: payout})
}
