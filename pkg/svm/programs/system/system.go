// Package system implements the lamport-moving part of the System program:
// account creation, ownership assignment, allocation and transfers.
//
// Wallets are system-owned until assigned to another program. The
// savings-vault program calls CreateAccount and Transfer directly instead
// of dispatching an instruction.
package system

import (
	"fmt"

	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

type decoder interface {
	Decode(data []byte) error
}

type route struct {
	name   string
	handle func(ctx *syscall.ExecutionContext, data []byte) error
}

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

var routes = map[uint32]route{
	InstructionCreateAccount: decoded[CreateAccountInstruction]("create_account", handleCreateAccount),
	InstructionAssign:        decoded[AssignInstruction]("assign", handleAssign),
	InstructionTransfer:      decoded[TransferInstruction]("transfer", handleTransfer),
	InstructionAllocate:      decoded[AllocateInstruction]("allocate", handleAllocate),
}

// lookup splits instruction data into its route and payload. The tag is a
// little-endian u32.
func lookup(data []byte) (route, []byte, error) {
	tag, err := ParseInstructionDiscriminator(data)
	if err != nil {
		return route{}, nil, err
	}
	r, ok := routes[tag]
	if !ok {
		return route{}, nil, fmt.Errorf("%w: unknown instruction %d", ErrInvalidInstructionData, tag)
	}
	return r, data[4:], nil
}

// Program executes system instructions.
type Program struct{}

// New creates the system program.
func New() *Program {
	return &Program{}
}

// Execute runs one system instruction.
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

// GetProgramID returns the system program address.
func (p *Program) GetProgramID() types.Pubkey {
	return types.SystemProgramID
}
