// Package compute_budget implements the Compute Budget program. Its
// instructions change no accounts; the ledger reads them before execution
// to size the transaction's compute budget.
package compute_budget

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

// ProgramID is the Compute Budget program address.
var ProgramID = types.MustPubkeyFromBase58("ComputeBudget111111111111111111111111111111")

// Instruction tags, the first byte of instruction data.
const (
	InstructionRequestHeapFrame               uint8 = 1
	InstructionSetComputeUnitLimit            uint8 = 2
	InstructionSetComputeUnitPrice            uint8 = 3
	InstructionSetLoadedAccountsDataSizeLimit uint8 = 4
)

// Limits
const (
	MaxComputeUnits      uint32 = 1_400_000
	DefaultComputeUnits  uint32 = 200_000
	MaxHeapFrameSize     uint32 = 256 * 1024
	DefaultHeapFrameSize uint32 = 32 * 1024
	HeapFrameAlignment   uint32 = 1024

	// ExecuteUnits is charged for each compute budget instruction.
	ExecuteUnits uint64 = 150
)

var (
	ErrInvalidInstructionData  = errors.New("invalid instruction data")
	ErrInvalidHeapFrameSize    = errors.New("heap frame size must be a multiple of 1024 bytes")
	ErrHeapFrameSizeTooLarge   = errors.New("heap frame size too large")
	ErrComputeUnitLimitTooHigh = errors.New("compute unit limit too high")
	ErrDuplicateInstruction    = errors.New("duplicate compute budget instruction")
	ErrUnknownInstruction      = errors.New("unknown compute budget instruction")
)

var instructionNames = map[uint8]string{
	InstructionRequestHeapFrame:               "request_heap_frame",
	InstructionSetComputeUnitLimit:            "set_compute_unit_limit",
	InstructionSetComputeUnitPrice:            "set_compute_unit_price",
	InstructionSetLoadedAccountsDataSizeLimit: "set_loaded_accounts_data_size_limit",
}

// Budget is the compute budget requested by one transaction.
type Budget struct {
	UnitLimit       uint32
	UnitPrice       uint64
	HeapFrameSize   uint32
	LoadedDataLimit uint32

	seen map[uint8]bool
}

// NewBudget returns a budget with nothing requested.
func NewBudget() *Budget {
	return &Budget{
		HeapFrameSize: DefaultHeapFrameSize,
		seen:          make(map[uint8]bool, 4),
	}
}

// Apply validates one compute budget instruction and records its request.
// Each instruction kind may appear once per transaction.
func (b *Budget) Apply(data []byte) error {
	if len(data) == 0 {
		return ErrInvalidInstructionData
	}
	tag := data[0]
	if _, ok := instructionNames[tag]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownInstruction, tag)
	}
	if b.seen[tag] {
		return fmt.Errorf("%w: %s", ErrDuplicateInstruction, instructionNames[tag])
	}
	b.seen[tag] = true

	dec := bin.NewBinDecoder(data[1:])
	switch tag {
	case InstructionSetComputeUnitPrice:
		price, err := dec.ReadUint64(bin.LE)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
		}
		b.UnitPrice = price
		return nil
	}

	v, err := dec.ReadUint32(bin.LE)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInstructionData, err)
	}
	switch tag {
	case InstructionRequestHeapFrame:
		if v%HeapFrameAlignment != 0 {
			return fmt.Errorf("%w: %d", ErrInvalidHeapFrameSize, v)
		}
		if v > MaxHeapFrameSize {
			return fmt.Errorf("%w: %d", ErrHeapFrameSizeTooLarge, v)
		}
		b.HeapFrameSize = v
	case InstructionSetComputeUnitLimit:
		if v > MaxComputeUnits {
			return fmt.Errorf("%w: %d", ErrComputeUnitLimitTooHigh, v)
		}
		b.UnitLimit = v
	case InstructionSetLoadedAccountsDataSizeLimit:
		b.LoadedDataLimit = v
	}
	return nil
}

// Limit returns the compute units available to a transaction of
// instructions instructions, capped at max. Without an explicit
// limit each instruction gets DefaultComputeUnits.
func (b *Budget) Limit(instructions int, max uint64) uint64 {
	limit := uint64(b.UnitLimit)
	if !b.seen[InstructionSetComputeUnitLimit] {
		limit = uint64(instructions) * uint64(DefaultComputeUnits)
	}
	if limit > max {
		limit = max
	}
	return limit
}

// Program executes compute budget instructions. Their effect is applied by
// the ledger before execution, so executing one only validates it.
type Program struct{}

// New creates the program.
func New() *Program { return &Program{} }

// Execute implements the ledger's program executor.
func (p *Program) Execute(ctx *syscall.ExecutionContext, ix *types.Instruction) error {
	if err := ctx.ConsumeComputeUnits(ExecuteUnits); err != nil {
		return err
	}
	return NewBudget().Apply(ix.Data)
}

// InstructionName names an instruction for history and metrics.
func (p *Program) InstructionName(data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrInvalidInstructionData
	}
	name, ok := instructionNames[data[0]]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownInstruction, data[0])
	}
	return name, nil
}

// SetComputeUnitLimit builds an instruction requesting units compute units.
func SetComputeUnitLimit(units uint32) types.Instruction {
	data := make([]byte, 5)
	data[0] = InstructionSetComputeUnitLimit
	bin.LE.PutUint32(data[1:], units)
	return types.Instruction{ProgramID: ProgramID, Data: data}
}

// SetComputeUnitPrice builds an instruction setting the priority price in
// micro-lamports per compute unit.
func SetComputeUnitPrice(microLamports uint64) types.Instruction {
	data := make([]byte, 9)
	data[0] = InstructionSetComputeUnitPrice
	bin.LE.PutUint64(data[1:], microLamports)
	return types.Instruction{ProgramID: ProgramID, Data: data}
}
