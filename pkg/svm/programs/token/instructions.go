package token

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/savefi/pkg/types"
)

// Instruction tags, the first byte of instruction data.
const (
	InstructionInitializeMint    uint8 = 0
	InstructionInitializeAccount uint8 = 1
	InstructionTransfer          uint8 = 3
	InstructionMintTo            uint8 = 7
	InstructionBurn              uint8 = 8
)

// ParseInstructionDiscriminator returns the instruction tag.
func ParseInstructionDiscriminator(data []byte) (uint8, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("%w: empty instruction", ErrInvalidInstructionData)
	}
	return data[0], nil
}

func encode(tag uint8, payload any) []byte {
	var buf bytes.Buffer
	buf.WriteByte(tag)
	if payload != nil {
		if err := bin.NewBorshEncoder(&buf).Encode(payload); err != nil {
			panic(fmt.Sprintf("encode token instruction %d: %v", tag, err))
		}
	}
	return buf.Bytes()
}

func decode(name string, data []byte, payload any) error {
	if err := bin.NewBorshDecoder(data).Decode(payload); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidInstructionData, name, err)
	}
	return nil
}

// InitializeMintInstruction sets up a mint.
// Accounts:
//
//	[0] mint (writable)
//	[1] rent sysvar (ignored)
type InitializeMintInstruction struct {
	Decimals        uint8
	MintAuthority   types.Pubkey
	FreezeAuthority *types.Pubkey `bin:"optional"`
}

func (inst *InitializeMintInstruction) Decode(data []byte) error {
	return decode("InitializeMint", data, inst)
}

func (inst *InitializeMintInstruction) Encode() []byte {
	return encode(InstructionInitializeMint, inst)
}

// InitializeAccountInstruction carries no data.
// Accounts:
//
//	[0] account (writable)
//	[1] mint
//	[2] owner
//	[3] rent sysvar (ignored)
type InitializeAccountInstruction struct{}

func (inst *InitializeAccountInstruction) Encode() []byte {
	return encode(InstructionInitializeAccount, nil)
}

// TransferInstruction moves tokens between accounts of the same mint.
// Accounts:
//
//	[0] source (writable)
//	[1] destination (writable)
//	[2] owner (signer)
type TransferInstruction struct {
	Amount uint64
}

func (inst *TransferInstruction) Decode(data []byte) error {
	return decode("Transfer", data, inst)
}

func (inst *TransferInstruction) Encode() []byte {
	return encode(InstructionTransfer, inst)
}

// MintToInstruction mints new tokens to an account.
// Accounts:
//
//	[0] mint (writable)
//	[1] destination (writable)
//	[2] mint authority (signer)
type MintToInstruction struct {
	Amount uint64
}

func (inst *MintToInstruction) Decode(data []byte) error {
	return decode("MintTo", data, inst)
}

func (inst *MintToInstruction) Encode() []byte {
	return encode(InstructionMintTo, inst)
}

// BurnInstruction destroys tokens held by an account.
// Accounts:
//
//	[0] source (writable)
//	[1] mint (writable)
//	[2] owner (signer)
type BurnInstruction struct {
	Amount uint64
}

func (inst *BurnInstruction) Decode(data []byte) error {
	return decode("Burn", data, inst)
}

func (inst *BurnInstruction) Encode() []byte {
	return encode(InstructionBurn, inst)
}
