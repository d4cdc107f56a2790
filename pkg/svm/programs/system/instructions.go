package system

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/savefi/pkg/types"
)

// Instruction tags, a little-endian u32 ahead of the payload.
const (
	InstructionCreateAccount uint32 = 0
	InstructionAssign        uint32 = 1
	InstructionTransfer      uint32 = 2
	InstructionAllocate      uint32 = 8
)

// ParseInstructionDiscriminator reads the instruction tag.
func ParseInstructionDiscriminator(data []byte) (uint32, error) {
	tag, err := bin.NewBinDecoder(data).ReadUint32(bin.LE)
	if err != nil {
		return 0, fmt.Errorf("%w: instruction too short", ErrInvalidInstructionData)
	}
	return tag, nil
}

// encode writes tag followed by the fixed-size payload fields.
func encode(tag uint32, payload any) []byte {
	var buf bytes.Buffer
	enc := bin.NewBorshEncoder(&buf)
	if err := enc.WriteUint32(tag, bin.LE); err != nil {
		panic(err)
	}
	if err := enc.Encode(payload); err != nil {
		panic(fmt.Sprintf("encode system instruction %d: %v", tag, err))
	}
	return buf.Bytes()
}

func decode(name string, data []byte, payload any) error {
	if err := bin.NewBorshDecoder(data).Decode(payload); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInstructionData, name, err)
	}
	return nil
}

// CreateAccountInstruction funds a new account, sizes its data and assigns
// its owner.
type CreateAccountInstruction struct {
	Lamports uint64
	Space    uint64
	Owner    types.Pubkey
}

func (inst *CreateAccountInstruction) Decode(data []byte) error {
	return decode("CreateAccount", data, inst)
}

func (inst *CreateAccountInstruction) Encode() []byte {
	return encode(InstructionCreateAccount, inst)
}

// AssignInstruction changes the owner of an account.
type AssignInstruction struct {
	Owner types.Pubkey
}

func (inst *AssignInstruction) Decode(data []byte) error {
	return decode("Assign", data, inst)
}

func (inst *AssignInstruction) Encode() []byte {
	return encode(InstructionAssign, inst)
}

// TransferInstruction moves lamports between system-owned accounts.
type TransferInstruction struct {
	Lamports uint64
}

func (inst *TransferInstruction) Decode(data []byte) error {
	return decode("Transfer", data, inst)
}

func (inst *TransferInstruction) Encode() []byte {
	return encode(InstructionTransfer, inst)
}

// AllocateInstruction sizes an account's data without funding it.
type AllocateInstruction struct {
	Space uint64
}

func (inst *AllocateInstruction) Decode(data []byte) error {
	return decode("Allocate", data, inst)
}

func (inst *AllocateInstruction) Encode() []byte {
	return encode(InstructionAllocate, inst)
}
