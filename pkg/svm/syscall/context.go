// Package syscall is the runtime surface native programs execute against:
// instruction accounts, the compute meter, program logs, return data and
// the transaction clock. It also derives program addresses.
package syscall

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fortiblox/savefi/pkg/types"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountNotWritable  = errors.New("account is not writable")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrComputeExhausted    = errors.New("compute units exhausted")
	ErrMaxLogsExceeded     = errors.New("maximum log entries exceeded")
	ErrInvalidAccountIndex = errors.New("invalid account index")
	ErrIllegalOwner        = errors.New("account owned by another program")
	ErrLamportOverflow     = errors.New("lamport balance overflow")
	ErrReturnDataTooLarge  = errors.New("return data too large")
)

const (
	MaxLogMessages      = 64
	MaxLogMessageLength = 10_000
	MaxReturnDataLength = 1024
)

// Compute costs charged by this package.
const (
	CUCreatePDA      = 1500
	CUFindPDAPerIter = 1500
	CULog            = 100
)

// ExecutionContext is the state of one executing instruction. It is used by
// a single goroutine.
type ExecutionContext struct {
	ProgramID       types.Pubkey
	Accounts        []*AccountInfo
	InstructionData []byte

	// UnixTimestamp is the transaction clock. Every time-dependent check
	// reads it.
	UnixTimestamp int64

	byKey     map[types.Pubkey]int
	limit     uint64
	remaining uint64
	logs      []string

	returnProgram types.Pubkey
	returnData    []byte
}

// NewExecutionContext prepares an instruction with a budget of
// computeUnits.
func NewExecutionContext(programID types.Pubkey, accounts []*AccountInfo, instructionData []byte, computeUnits uint64) *ExecutionContext {
	ctx := &ExecutionContext{
		ProgramID:       programID,
		Accounts:        accounts,
		InstructionData: instructionData,
		byKey:           make(map[types.Pubkey]int, len(accounts)),
		limit:           computeUnits,
		remaining:       computeUnits,
	}
	for i, acc := range accounts {
		if _, dup := ctx.byKey[acc.Pubkey]; !dup {
			ctx.byKey[acc.Pubkey] = i
		}
	}
	return ctx
}

// ConsumeComputeUnits charges units against the budget. Overdrawing
// empties the meter and fails.
func (ctx *ExecutionContext) ConsumeComputeUnits(units uint64) error {
	if units > ctx.remaining {
		ctx.remaining = 0
		return ErrComputeExhausted
	}
	ctx.remaining -= units
	return nil
}

func (ctx *ExecutionContext) GetComputeUnitsRemaining() uint64 { return ctx.remaining }
func (ctx *ExecutionContext) GetComputeUnitsConsumed() uint64  { return ctx.limit - ctx.remaining }

// AddLog records a log line. Lines longer than MaxLogMessageLength are
// truncated.
func (ctx *ExecutionContext) AddLog(message string) error {
	if len(ctx.logs) >= MaxLogMessages {
		return ErrMaxLogsExceeded
	}
	if len(message) > MaxLogMessageLength {
		message = message[:MaxLogMessageLength]
	}
	ctx.logs = append(ctx.logs, message)
	return nil
}

// Logf records a "Program log:" line and charges CULog. A full log buffer
// or an empty meter drops the line.
func (ctx *ExecutionContext) Logf(format string, args ...any) {
	if ctx.ConsumeComputeUnits(CULog) != nil {
		return
	}
	_ = ctx.AddLog("Program log: " + fmt.Sprintf(format, args...))
}

// GetLogs returns a copy of the recorded log lines.
func (ctx *ExecutionContext) GetLogs() []string {
	return append([]string(nil), ctx.logs...)
}

// GetAccount looks up an instruction account by address.
func (ctx *ExecutionContext) GetAccount(pubkey types.Pubkey) (*AccountInfo, error) {
	idx, ok := ctx.byKey[pubkey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pubkey)
	}
	return ctx.Accounts[idx], nil
}

// GetAccountByIndex returns the instruction account at position index.
func (ctx *ExecutionContext) GetAccountByIndex(index int) (*AccountInfo, error) {
	if index < 0 || index >= len(ctx.Accounts) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidAccountIndex, index)
	}
	return ctx.Accounts[index], nil
}

func (ctx *ExecutionContext) AccountCount() int { return len(ctx.Accounts) }

// SetReturnData replaces the instruction's return data.
func (ctx *ExecutionContext) SetReturnData(programID types.Pubkey, data []byte) error {
	if len(data) > MaxReturnDataLength {
		return fmt.Errorf("%w: %d bytes, max %d", ErrReturnDataTooLarge, len(data), MaxReturnDataLength)
	}
	ctx.returnProgram = programID
	ctx.returnData = bytes.Clone(data)
	return nil
}

// GetReturnData returns the program that set return data and a copy of it.
func (ctx *ExecutionContext) GetReturnData() (types.Pubkey, []byte) {
	return ctx.returnProgram, bytes.Clone(ctx.returnData)
}

// TransferLamports debits an account owned by the executing program and
// credits another. Both must be writable.
func (ctx *ExecutionContext) TransferLamports(from, to types.Pubkey, amount uint64) error {
	src, err := ctx.GetAccount(from)
	if err != nil {
		return err
	}
	dst, err := ctx.GetAccount(to)
	if err != nil {
		return err
	}
	for _, acc := range []*AccountInfo{src, dst} {
		if !acc.IsWritable {
			return fmt.Errorf("%w: %s", ErrAccountNotWritable, acc.Pubkey)
		}
	}
	if src.Owner != ctx.ProgramID {
		return fmt.Errorf("%w: %s", ErrIllegalOwner, from)
	}
	if *src.Lamports < amount {
		return fmt.Errorf("%w: %s holds %d, need %d", ErrInsufficientFunds, from, *src.Lamports, amount)
	}
	if *dst.Lamports+amount < *dst.Lamports {
		return fmt.Errorf("%w: %s", ErrLamportOverflow, to)
	}
	*src.Lamports -= amount
	*dst.Lamports += amount
	return nil
}
