package savefi

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// Instruction names as they appear in the program interface.
const (
	InstructionInitializeMints   = "initialize_mints"
	InstructionInitializeVault   = "initialize_vault"
	InstructionProcessTrade      = "process_trade"
	InstructionSave              = "save"
	InstructionWithdraw          = "withdraw"
	InstructionEmergencyWithdraw = "emergency_withdraw"
	InstructionSetSaveRate       = "set_save_rate"
	InstructionSetLockPeriod     = "set_lock_period"
	InstructionUpdateVault       = "update_vault"
	InstructionRenewSubscription = "renew_subscription"
	InstructionDelegateFunds     = "delegate_funds"
	InstructionRevokeDelegation  = "revoke_delegation"
	InstructionUpdateFee         = "update_fee"
	InstructionCollectFees       = "collect_fees"
	InstructionSetPaused         = "set_paused"
	InstructionSetEmergencyMode  = "set_emergency_mode"
)

var instructionNames = []string{
	InstructionInitializeMints,
	InstructionInitializeVault,
	InstructionProcessTrade,
	InstructionSave,
	InstructionWithdraw,
	InstructionEmergencyWithdraw,
	InstructionSetSaveRate,
	InstructionSetLockPeriod,
	InstructionUpdateVault,
	InstructionRenewSubscription,
	InstructionDelegateFunds,
	InstructionRevokeDelegation,
	InstructionUpdateFee,
	InstructionCollectFees,
	InstructionSetPaused,
	InstructionSetEmergencyMode,
}

var instructionsByDiscriminator = func() map[Discriminator]string {
	m := make(map[Discriminator]string, len(instructionNames))
	for _, name := range instructionNames {
		m[InstructionDiscriminator(name)] = name
	}
	return m
}()

// InstructionName returns the instruction a data payload selects.
func InstructionName(data []byte) (string, error) {
	if len(data) < DiscriminatorSize {
		return "", fmt.Errorf("%w: instruction data too short", ErrInvalidInstructionData)
	}
	var d Discriminator
	copy(d[:], data)
	name, ok := instructionsByDiscriminator[d]
	if !ok {
		return "", fmt.Errorf("%w: unknown discriminator %x", ErrInvalidInstructionData, d[:])
	}
	return name, nil
}

// InitializeMintsArgs are the arguments of initialize_mints.
type InitializeMintsArgs struct {
	FeeRate uint8
}

// InitializeVaultArgs are the arguments of initialize_vault.
type InitializeVaultArgs struct {
	SaveRate uint8
	LockDays uint8
}

// AmountArgs carries the lamport amount of process_trade, emergency_withdraw
// and delegate_funds.
type AmountArgs struct {
	Amount uint64
}

// RateArgs carries the single u8 of set_save_rate, set_lock_period and
// update_fee.
type RateArgs struct {
	Value uint8
}

// FlagArgs carries the bool of set_paused and set_emergency_mode.
type FlagArgs struct {
	Enabled bool
}

// UpdateVaultArgs are the arguments of update_vault. A nil field is left
// unchanged.
type UpdateVaultArgs struct {
	SaveRate *uint8
	LockDays *uint8
}

// MarshalWithEncoder writes both fields as Borsh Option<u8>.
func (a UpdateVaultArgs) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, opt := range []*uint8{a.SaveRate, a.LockDays} {
		if err := enc.WriteBool(opt != nil); err != nil {
			return err
		}
		if opt != nil {
			if err := enc.WriteUint8(*opt); err != nil {
				return err
			}
		}
	}
	return nil
}

// UnmarshalWithDecoder reads both fields as Borsh Option<u8>.
func (a *UpdateVaultArgs) UnmarshalWithDecoder(dec *bin.Decoder) error {
	for _, dst := range []**uint8{&a.SaveRate, &a.LockDays} {
		some, err := dec.ReadBool()
		if err != nil {
			return err
		}
		*dst = nil
		if some {
			v, err := dec.ReadUint8()
			if err != nil {
				return err
			}
			*dst = &v
		}
	}
	return nil
}

// SaveResult is the return data of process_trade.
type SaveResult struct {
	Fee       uint64
	Saved     uint64
	Balance   uint64
	LockUntil int64
}

// EmergencyWithdrawResult is the return data of emergency_withdraw.
type EmergencyWithdrawResult struct {
	Amount  uint64
	Penalty uint64
	Payout  uint64
}

// EncodeInstruction builds instruction data for name with Borsh-encoded args.
// args may be nil for instructions without arguments.
func EncodeInstruction(name string, args any) ([]byte, error) {
	d := InstructionDiscriminator(name)
	if _, ok := instructionsByDiscriminator[d]; !ok {
		return nil, fmt.Errorf("%w: unknown instruction %q", ErrInvalidInstructionData, name)
	}
	buf := bytes.NewBuffer(append([]byte(nil), d[:]...))
	if args == nil {
		return buf.Bytes(), nil
	}
	enc := bin.NewBorshEncoder(buf)
	var err error
	switch a := args.(type) {
	case UpdateVaultArgs:
		err = a.MarshalWithEncoder(enc)
	case *UpdateVaultArgs:
		err = a.MarshalWithEncoder(enc)
	default:
		err = enc.Encode(args)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s args: %w", name, err)
	}
	return buf.Bytes(), nil
}

// decodeArgs decodes the Borsh arguments following the discriminator.
func decodeArgs(data []byte, args any) error {
	dec := bin.NewBorshDecoder(data[DiscriminatorSize:])
	var err error
	if a, ok := args.(*UpdateVaultArgs); ok {
		err = a.UnmarshalWithDecoder(dec)
	} else {
		err = dec.Decode(args)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}
	return nil
}

// EncodeReturnData Borsh-encodes an instruction result.
func EncodeReturnData(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := bin.NewBorshEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeReturnData decodes return data produced by EncodeReturnData.
func DecodeReturnData(data []byte, v any) error {
	return bin.NewBorshDecoder(data).Decode(v)
}
