package savefi

import (
	"github.com/fortiblox/savefi/pkg/svm/programs/token"
	"github.com/fortiblox/savefi/pkg/svm/syscall"
)

// loadConfig reads the protocol config and checks its address.
func loadConfig(ctx *syscall.ExecutionContext, acc *syscall.AccountInfo) (*ProtocolConfig, error) {
	cfg, err := LoadProtocolConfig(acc)
	if err != nil {
		return nil, err
	}
	if err := verifyAddress(ctx, acc, configSeeds(), cfg.Bump, "config"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFeeAccount reads the fee account and checks its address.
func loadFeeAccount(ctx *syscall.ExecutionContext, acc *syscall.AccountInfo) (*FeeAccount, error) {
	fee, err := LoadFeeAccount(acc)
	if err != nil {
		return nil, err
	}
	if err := verifyAddress(ctx, acc, feeAccountSeeds(), fee.Bump, "fee account"); err != nil {
		return nil, err
	}
	return fee, nil
}

// requireAdmin loads the config and checks that admin signed as its admin.
func requireAdmin(ctx *syscall.ExecutionContext, admin, configAcc *syscall.AccountInfo) (*ProtocolConfig, error) {
	if err := requireSigner(admin, "admin"); err != nil {
		return nil, err
	}
	cfg, err := loadConfig(ctx, configAcc)
	if err != nil {
		return nil, err
	}
	if cfg.Admin != admin.Pubkey {
		return nil, wrap(ErrUnauthorized, "%s is not the protocol admin", admin.Pubkey)
	}
	return cfg, nil
}

// initializeMints creates the protocol singletons. Accounts:
//
//	[0] admin (signer, writable)
//	[1] config (writable)
//	[2] fee account (writable)
//	[3] mint authority (writable)
//	[4] receipt mint
func (p *Program) initializeMints(ctx *syscall.ExecutionContext, args InitializeMintsArgs) error {
	accs, err := instructionAccounts(ctx, 5)
	if err != nil {
		return err
	}
	admin, configAcc, feeAcc, authorityAcc, mintAcc := accs[0], accs[1], accs[2], accs[3], accs[4]

	if err := requireSigner(admin, "admin"); err != nil {
		return err
	}
	if !p.params.Admin.IsZero() && admin.Pubkey != p.params.Admin {
		return wrap(ErrUnauthorized, "%s is not the configured admin", admin.Pubkey)
	}
	if err := requireWritable(admin, configAcc, feeAcc, authorityAcc); err != nil {
		return err
	}

	configBump, err := findAddress(ctx, configAcc, configSeeds(), "config")
	if err != nil {
		return err
	}
	if len(configAcc.Data) > 0 {
		return wrap(ErrAlreadyInitialized, "config %s", configAcc.Pubkey)
	}
	if !p.params.ValidFeeRate(args.FeeRate) {
		return wrap(ErrInvalidFeeRate, "%d not in %d..%d", args.FeeRate, p.params.MinFeeRate, p.params.MaxFeeRate)
	}

	mint, err := token.LoadMint(mintAcc)
	if err != nil {
		return wrap(ErrInvalidMint, "%v", err)
	}
	if mint.Decimals != p.params.ReceiptDecimals {
		return wrap(ErrInvalidMintDecimals, "mint has %d decimals, want %d", mint.Decimals, p.params.ReceiptDecimals)
	}

	feeBump, err := findAddress(ctx, feeAcc, feeAccountSeeds(), "fee account")
	if err != nil {
		return err
	}
	authorityBump, err := findAddress(ctx, authorityAcc, mintAuthoritySeeds(), "mint authority")
	if err != nil {
		return err
	}
	if !mint.MintAuthority.IsSome || mint.MintAuthority.Value != authorityAcc.Pubkey {
		return wrap(ErrInvalidMint, "mint authority must be %s", authorityAcc.Pubkey)
	}

	if err := createProgramAccount(admin, configAcc, ProtocolConfigSize); err != nil {
		return err
	}
	if err := createProgramAccount(admin, feeAcc, FeeAccountSize); err != nil {
		return err
	}
	if err := createProgramAccount(admin, authorityAcc, MintAuthoritySize); err != nil {
		return err
	}

	if err := store(configAcc, &ProtocolConfig{
		Admin:       admin.Pubkey,
		ReceiptMint: mintAcc.Pubkey,
		Bump:        configBump,
	}); err != nil {
		return err
	}
	if err := store(feeAcc, &FeeAccount{
		Authority: admin.Pubkey,
		FeeRate:   args.FeeRate,
		Bump:      feeBump,
	}); err != nil {
		return err
	}
	if err := store(authorityAcc, &MintAuthority{Bump: authorityBump}); err != nil {
		return err
	}

	ctx.Logf("protocol initialized: admin=%s mint=%s fee_rate=%d", admin.Pubkey, mintAcc.Pubkey, args.FeeRate)
	return nil
}

// updateFee changes the platform fee rate. Accounts:
//
//	[0] admin (signer)
//	[1] config
//	[2] fee account (writable)
func (p *Program) updateFee(ctx *syscall.ExecutionContext, rate uint8) error {
	accs, err := instructionAccounts(ctx, 3)
	if err != nil {
		return err
	}
	admin, configAcc, feeAcc := accs[0], accs[1], accs[2]

	if _, err := requireAdmin(ctx, admin, configAcc); err != nil {
		return err
	}
	if !p.params.ValidFeeRate(rate) {
		return wrap(ErrInvalidFeeRate, "%d not in %d..%d", rate, p.params.MinFeeRate, p.params.MaxFeeRate)
	}
	fee, err := loadFeeAccount(ctx, feeAcc)
	if err != nil {
		return err
	}
	fee.FeeRate = rate
	if err := store(feeAcc, fee); err != nil {
		return err
	}
	ctx.Logf("fee rate set to %d", rate)
	return nil
}

// collectFees pays accumulated fees to the admin. Accounts:
//
//	[0] admin (signer, writable)
//	[1] config
//	[2] fee account (writable)
func (p *Program) collectFees(ctx *syscall.ExecutionContext) error {
	accs, err := instructionAccounts(ctx, 3)
	if err != nil {
		return err
	}
	admin, configAcc, feeAcc := accs[0], accs[1], accs[2]

	if _, err := requireAdmin(ctx, admin, configAcc); err != nil {
		return err
	}
	if err := requireWritable(admin, feeAcc); err != nil {
		return err
	}
	fee, err := loadFeeAccount(ctx, feeAcc)
	if err != nil {
		return err
	}

	now := ctx.UnixTimestamp
	if fee.LastCollectionTime > 0 && now-fee.LastCollectionTime < p.params.feeCollectionCooldown() {
		return wrap(ErrCollectionCooldown, "last collected at %d", fee.LastCollectionTime)
	}
	amount := fee.CollectedFees
	if amount == 0 {
		return wrap(ErrInsufficientFunds, "no fees to collect")
	}
	if err := payFromProgram(ctx, feeAcc, admin, amount); err != nil {
		return err
	}

	fee.CollectedFees = 0
	fee.LastCollectionTime = now
	if err := store(feeAcc, fee); err != nil {
		return err
	}
	ctx.Logf("collected %d lamports of fees", amount)
	return setReturn(ctx, amount)
}

// setFlag toggles the paused or emergency flag. Accounts:
//
//	[0] admin (signer)
//	[1] config (writable)
func (p *Program) setFlag(ctx *syscall.ExecutionContext, name string, enabled bool) error {
	accs, err := instructionAccounts(ctx, 2)
	if err != nil {
		return err
	}
	admin, configAcc := accs[0], accs[1]

	cfg, err := requireAdmin(ctx, admin, configAcc)
	if err != nil {
		return err
	}
	if name == InstructionSetPaused {
		cfg.Paused = enabled
	} else {
		cfg.EmergencyMode = enabled
	}
	if err := store(configAcc, cfg); err != nil {
		return err
	}
	ctx.Logf("%s: %t", name, enabled)
	return nil
}
