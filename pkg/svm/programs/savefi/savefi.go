// Package savefi implements the savings-vault program.
//
// Each owner has one vault, a program-derived account that holds the saved
// lamports and mirrors its balance in non-transferable receipt tokens. Trades
// routed through process_trade divert a configurable share into the vault,
// extending its time lock. Withdrawals wait for the lock to expire; an
// emergency withdrawal skips the lock for a penalty paid to the fee account.
//
// All time checks read the execution context's clock, so locks, cooldowns and
// daily windows are evaluated lazily when an instruction runs.
package savefi

import (
	"fmt"

	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

// Program is the savings-vault program.
type Program struct {
	params Params
}

// New creates the program with the given platform parameters.
func New(params Params) (*Program, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("savefi params: %w", err)
	}
	return &Program{params: params}, nil
}

// Params returns the platform parameters the program enforces.
func (p *Program) Params() Params {
	return p.params
}

// GetProgramID returns the program's address.
func (p *Program) GetProgramID() types.Pubkey {
	return ProgramID
}

// InstructionName names the instruction encoded in data.
func (p *Program) InstructionName(data []byte) (string, error) {
	return InstructionName(data)
}

// Execute runs one instruction. The first 8 bytes of the data select it.
func (p *Program) Execute(ctx *syscall.ExecutionContext, instruction *types.Instruction) error {
	name, err := InstructionName(instruction.Data)
	if err != nil {
		return err
	}
	ctx.Logf("Instruction: %s", name)

	data := instruction.Data
	switch name {
	case InstructionInitializeMints:
		var args InitializeMintsArgs
		if err := decodeArgs(data, &args); err != nil {
			return err
		}
		return p.initializeMints(ctx, args)

	case InstructionInitializeVault:
		var args InitializeVaultArgs
		if err := decodeArgs(data, &args); err != nil {
			return err
		}
		return p.initializeVault(ctx, args)

	case InstructionProcessTrade, InstructionSave:
		var args AmountArgs
		if err := decodeArgs(data, &args); err != nil {
			return err
		}
		return p.processTrade(ctx, args.Amount)

	case InstructionWithdraw:
		return p.withdraw(ctx)

	case InstructionEmergencyWithdraw:
		var args AmountArgs
		if err := decodeArgs(data, &args); err != nil {
			return err
		}
		return p.emergencyWithdraw(ctx, args.Amount)

	case InstructionSetSaveRate:
		var args RateArgs
		if err := decodeArgs(data, &args); err != nil {
			return err
		}
		rate := args.Value
		return p.updateVault(ctx, UpdateVaultArgs{SaveRate: &rate})

	case InstructionSetLockPeriod:
		var args RateArgs
		if err := decodeArgs(data, &args); err != nil {
			return err
		}
		days := args.Value
		return p.updateVault(ctx, UpdateVaultArgs{LockDays: &days})

	case InstructionUpdateVault:
		var args UpdateVaultArgs
		if err := decodeArgs(data, &args); err != nil {
			return err
		}
		return p.updateVault(ctx, args)

	case InstructionRenewSubscription:
		return p.renewSubscription(ctx)

	case InstructionDelegateFunds:
		var args AmountArgs
		if err := decodeArgs(data, &args); err != nil {
			return err
		}
		return p.delegateFunds(ctx, args.Amount)

	case InstructionRevokeDelegation:
		return p.revokeDelegation(ctx)

	case InstructionUpdateFee:
		var args RateArgs
		if err := decodeArgs(data, &args); err != nil {
			return err
		}
		return p.updateFee(ctx, args.Value)

	case InstructionCollectFees:
		return p.collectFees(ctx)

	case InstructionSetPaused, InstructionSetEmergencyMode:
		var args FlagArgs
		if err := decodeArgs(data, &args); err != nil {
			return err
		}
		return p.setFlag(ctx, name, args.Enabled)
	}
	return fmt.Errorf("%w: %s not handled", ErrInvalidInstructionData, name)
}

// instructionAccounts returns the first n accounts of the instruction.
func instructionAccounts(ctx *syscall.ExecutionContext, n int) ([]*syscall.AccountInfo, error) {
	if ctx.AccountCount() < n {
		return nil, fmt.Errorf("%w: need %d, got %d", ErrNotEnoughAccounts, n, ctx.AccountCount())
	}
	out := make([]*syscall.AccountInfo, n)
	for i := range out {
		acc, err := ctx.GetAccountByIndex(i)
		if err != nil {
			return nil, err
		}
		out[i] = acc
	}
	return out, nil
}

func requireSigner(acc *syscall.AccountInfo, what string) error {
	if !acc.IsSigner {
		return wrap(ErrUnauthorized, "%s %s must sign", what, acc.Pubkey)
	}
	return nil
}

func requireWritable(accs ...*syscall.AccountInfo) error {
	for _, acc := range accs {
		if !acc.IsWritable {
			return wrap(ErrInvalidAccount, "%s must be writable", acc.Pubkey)
		}
	}
	return nil
}

func setReturn(ctx *syscall.ExecutionContext, v any) error {
	data, err := EncodeReturnData(v)
	if err != nil {
		return err
	}
	return ctx.SetReturnData(ProgramID, data)
}
