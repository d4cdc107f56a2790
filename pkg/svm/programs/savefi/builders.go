package savefi

import (
	"github.com/fortiblox/savefi/pkg/svm/programs/system"
	"github.com/fortiblox/savefi/pkg/svm/programs/token"
	"github.com/fortiblox/savefi/pkg/types"
)

// Addresses bundles the protocol PDAs clients need to build instructions.
type Addresses struct {
	Config        types.Pubkey
	FeeAccount    types.Pubkey
	MintAuthority types.Pubkey
	ReceiptMint   types.Pubkey
}

// ProtocolAddresses derives the protocol PDAs for a receipt mint.
func ProtocolAddresses(receiptMint types.Pubkey) (Addresses, error) {
	cfg, _, err := ConfigAddress()
	if err != nil {
		return Addresses{}, err
	}
	fee, _, err := FeeAccountAddress()
	if err != nil {
		return Addresses{}, err
	}
	auth, _, err := MintAuthorityAddress()
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{Config: cfg, FeeAccount: fee, MintAuthority: auth, ReceiptMint: receiptMint}, nil
}

// VaultAccounts are the per-owner addresses.
type VaultAccounts struct {
	Owner      types.Pubkey
	Vault      types.Pubkey
	VaultToken types.Pubkey
}

// OwnerAccounts derives the vault and vault token addresses of owner.
func (a Addresses) OwnerAccounts(owner types.Pubkey) (VaultAccounts, error) {
	vault, _, err := VaultAddress(owner)
	if err != nil {
		return VaultAccounts{}, err
	}
	vaultToken, err := VaultTokenAddress(vault, a.ReceiptMint)
	if err != nil {
		return VaultAccounts{}, err
	}
	return VaultAccounts{Owner: owner, Vault: vault, VaultToken: vaultToken}, nil
}

func signer(pk types.Pubkey, writable bool) types.AccountMeta {
	return types.AccountMeta{Pubkey: pk, IsSigner: true, IsWritable: writable}
}

func writable(pk types.Pubkey) types.AccountMeta {
	return types.AccountMeta{Pubkey: pk, IsWritable: true}
}

func readonly(pk types.Pubkey) types.AccountMeta {
	return types.AccountMeta{Pubkey: pk}
}

func newInstruction(name string, args any, metas ...types.AccountMeta) (types.Instruction, error) {
	data, err := EncodeInstruction(name, args)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{ProgramID: ProgramID, Accounts: metas, Data: data}, nil
}

// CreateReceiptMint builds the system and token instructions that create
// the receipt mint with the mint authority PDA as its authority. Both payer
// and the receipt mint key must sign.
func (a Addresses) CreateReceiptMint(payer types.Pubkey, decimals uint8) []types.Instruction {
	create := system.CreateAccountInstruction{
		Lamports: uint64(types.RentExemptMinimum(token.MintSize)),
		Space:    token.MintSize,
		Owner:    types.TokenProgramID,
	}
	initMint := token.InitializeMintInstruction{Decimals: decimals, MintAuthority: a.MintAuthority}
	return []types.Instruction{
		{
			ProgramID: types.SystemProgramID,
			Accounts:  []types.AccountMeta{signer(payer, true), signer(a.ReceiptMint, true)},
			Data:      create.Encode(),
		},
		{
			ProgramID: types.TokenProgramID,
			Accounts:  []types.AccountMeta{writable(a.ReceiptMint)},
			Data:      initMint.Encode(),
		},
	}
}

// InitializeMints builds initialize_mints.
func (a Addresses) InitializeMints(admin types.Pubkey, feeRate uint8) (types.Instruction, error) {
	return newInstruction(InstructionInitializeMints, InitializeMintsArgs{FeeRate: feeRate},
		signer(admin, true), writable(a.Config), writable(a.FeeAccount),
		writable(a.MintAuthority), readonly(a.ReceiptMint))
}

// InitializeVault builds initialize_vault.
func (a Addresses) InitializeVault(v VaultAccounts, saveRate, lockDays uint8) (types.Instruction, error) {
	return newInstruction(InstructionInitializeVault, InitializeVaultArgs{SaveRate: saveRate, LockDays: lockDays},
		signer(v.Owner, true), writable(v.Vault), writable(v.VaultToken),
		readonly(a.ReceiptMint), readonly(a.Config))
}

// ProcessTrade builds process_trade.
func (a Addresses) ProcessTrade(v VaultAccounts, amount uint64) (types.Instruction, error) {
	return a.trade(InstructionProcessTrade, v, amount)
}

// Save builds save, an alias of process_trade.
func (a Addresses) Save(v VaultAccounts, amount uint64) (types.Instruction, error) {
	return a.trade(InstructionSave, v, amount)
}

func (a Addresses) trade(name string, v VaultAccounts, amount uint64) (types.Instruction, error) {
	return newInstruction(name, AmountArgs{Amount: amount},
		signer(v.Owner, true), writable(v.Vault), readonly(a.Config), writable(a.FeeAccount),
		readonly(a.MintAuthority), writable(a.ReceiptMint), writable(v.VaultToken))
}

// Withdraw builds withdraw.
func (a Addresses) Withdraw(v VaultAccounts) (types.Instruction, error) {
	return newInstruction(InstructionWithdraw, nil,
		signer(v.Owner, true), writable(v.Vault), readonly(a.Config),
		writable(a.ReceiptMint), writable(v.VaultToken))
}

// EmergencyWithdraw builds emergency_withdraw.
func (a Addresses) EmergencyWithdraw(v VaultAccounts, amount uint64) (types.Instruction, error) {
	return newInstruction(InstructionEmergencyWithdraw, AmountArgs{Amount: amount},
		signer(v.Owner, true), writable(v.Vault), readonly(a.Config), writable(a.FeeAccount),
		writable(a.ReceiptMint), writable(v.VaultToken))
}

// SetSaveRate builds set_save_rate.
func (a Addresses) SetSaveRate(v VaultAccounts, rate uint8) (types.Instruction, error) {
	return newInstruction(InstructionSetSaveRate, RateArgs{Value: rate},
		signer(v.Owner, false), writable(v.Vault))
}

// SetLockPeriod builds set_lock_period.
func (a Addresses) SetLockPeriod(v VaultAccounts, days uint8) (types.Instruction, error) {
	return newInstruction(InstructionSetLockPeriod, RateArgs{Value: days},
		signer(v.Owner, false), writable(v.Vault))
}

// UpdateVault builds update_vault.
func (a Addresses) UpdateVault(v VaultAccounts, args UpdateVaultArgs) (types.Instruction, error) {
	return newInstruction(InstructionUpdateVault, args,
		signer(v.Owner, false), writable(v.Vault))
}

// RenewSubscription builds renew_subscription.
func (a Addresses) RenewSubscription(v VaultAccounts) (types.Instruction, error) {
	return newInstruction(InstructionRenewSubscription, nil,
		signer(v.Owner, true), writable(v.Vault), writable(a.FeeAccount))
}

// DelegateFunds builds delegate_funds.
func (a Addresses) DelegateFunds(v VaultAccounts, amount uint64) (types.Instruction, error) {
	return newInstruction(InstructionDelegateFunds, AmountArgs{Amount: amount},
		signer(v.Owner, false), writable(v.Vault), readonly(a.Config))
}

// RevokeDelegation builds revoke_delegation.
func (a Addresses) RevokeDelegation(v VaultAccounts) (types.Instruction, error) {
	return newInstruction(InstructionRevokeDelegation, nil,
		signer(v.Owner, false), writable(v.Vault))
}

// UpdateFee builds update_fee.
func (a Addresses) UpdateFee(admin types.Pubkey, rate uint8) (types.Instruction, error) {
	return newInstruction(InstructionUpdateFee, RateArgs{Value: rate},
		signer(admin, false), readonly(a.Config), writable(a.FeeAccount))
}

// CollectFees builds collect_fees.
func (a Addresses) CollectFees(admin types.Pubkey) (types.Instruction, error) {
	return newInstruction(InstructionCollectFees, nil,
		signer(admin, true), readonly(a.Config), writable(a.FeeAccount))
}

// SetPaused builds set_paused.
func (a Addresses) SetPaused(admin types.Pubkey, paused bool) (types.Instruction, error) {
	return newInstruction(InstructionSetPaused, FlagArgs{Enabled: paused},
		signer(admin, false), writable(a.Config))
}

// SetEmergencyMode builds set_emergency_mode.
func (a Addresses) SetEmergencyMode(admin types.Pubkey, enabled bool) (types.Instruction, error) {
	return newInstruction(InstructionSetEmergencyMode, FlagArgs{Enabled: enabled},
		signer(admin, false), writable(a.Config))
}
