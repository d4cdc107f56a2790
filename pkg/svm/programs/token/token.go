// Package token implements the part of the SPL Token program the vault
// needs for its receipt token: mint and account initialization, transfers,
// minting and burning.
//
// Mint and account layouts match SPL Token byte for byte, so wallets and
// explorers decode them unchanged. The savings-vault program calls
// InitializeAccount, MintTo and Burn directly after checking the authority
// itself.
package token

import (
	"fmt"

	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

type handler func(ctx *syscall.ExecutionContext, data []byte) error

type route struct {
	name   string
	handle handler
}

type decoder interface {
	Decode(data []byte) error
}

// decoded routes an instruction whose payload decodes into T.
func decoded[T any, PT interface {
	*T
	decoder
}](name string, fn func(*syscall.ExecutionContext, PT) error) route {
	return route{name: name, handle: func(ctx *syscall.ExecutionContext, data []byte) error {
		inst := PT(new(T))
		if err := inst.Decode(data); err != nil {
			return err
		}
		return fn(ctx, inst)
	}}
}

var routes = map[uint8]route{
	InstructionInitializeMint: decoded[InitializeMintInstruction]("initialize_mint", handleInitializeMint),
	InstructionInitializeAccount: {name: "initialize_account", handle: func(ctx *syscall.ExecutionContext, _ []byte) error {
		return handleInitializeAccount(ctx)
	}},
	InstructionTransfer: decoded[TransferInstruction]("transfer", handleTransfer),
	InstructionMintTo:   decoded[MintToInstruction]("mint_to", handleMintTo),
	InstructionBurn:     decoded[BurnInstruction]("burn", handleBurn),
}

func lookup(data []byte) (route, []byte, error) {
	tag, err := ParseInstructionDiscriminator(data)
	if err != nil {
		return route{}, nil, err
	}
	r, ok := routes[tag]
	if !ok {
		return route{}, nil, fmt.Errorf("%w: unsupported instruction %d", ErrInvalidInstructionData, tag)
	}
	return r, data[1:], nil
}

// Program executes token instructions.
type Program struct{}

// New creates the token program.
func New() *Program {
	return &Program{}
}

// Execute runs one token instruction.
func (p *Program) Execute(ctx *syscall.ExecutionContext, ix *types.Instruction) error {
	r, data, err := lookup(ix.Data)
	if err != nil {
		return err
	}
	return r.handle(ctx, data)
}

// InstructionName names an instruction for history and metrics.
func (p *Program) InstructionName(data []byte) (string, error) {
	r, _, err := lookup(data)
	if err != nil {
		return "", err
	}
	return r.name, nil
}

// GetProgramID returns the token program address.
func (p *Program) GetProgramID() types.Pubkey {
	return types.TokenProgramID
}
