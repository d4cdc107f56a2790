package ledger

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fortiblox/savefi/pkg/types"
)

// Transaction rejection errors. A rejected transaction is never executed
// or recorded.
var (
	ErrNoInstructions        = errors.New("ledger: transaction has no instructions")
	ErrSignatureVerification = errors.New("ledger: signature verification failed")
	ErrBlockhashNotFound     = errors.New("ledger: blockhash not found")
	ErrAlreadyProcessed      = errors.New("ledger: transaction already processed")
	ErrProgramNotFound       = errors.New("ledger: program not found")
	ErrAirdropDisabled       = errors.New("ledger: airdrops are disabled")
)

// Execution errors reported inside an InstructionError.
var (
	ErrReadOnlyModified = errors.New("read-only account modified")
	ErrUnbalanced       = errors.New("sum of account balances before and after instruction do not match")
	ErrInvalidAccount   = errors.New("account index out of range")
)

// CustomCoder is implemented by program errors that carry a numeric code.
type CustomCoder interface {
	CustomCode() uint32
}

// InstructionError reports which instruction of a transaction failed.
type InstructionError struct {
	Index     int
	ProgramID types.Pubkey
	Err       error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d (program %s) failed: %v", e.Index, e.ProgramID, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

// CustomCode returns the program error code when the cause carries one.
func (e *InstructionError) CustomCode() (uint32, bool) {
	var coder CustomCoder
	if errors.As(e.Err, &coder) {
		return coder.CustomCode(), true
	}
	return 0, false
}

// ErrorName names the cause for metrics: the program error name when it
// has one, otherwise "Custom" or "GenericError".
func (e *InstructionError) ErrorName() string {
	var named interface {
		CustomCoder
		fmt.Stringer
	}
	if errors.As(e.Err, &named) {
		return named.String()
	}
	if _, ok := e.CustomCode(); ok {
		return "Custom"
	}
	return "GenericError"
}

// MarshalJSON encodes the error the way Solana RPC reports it:
// {"InstructionError":[index,{"Custom":code}]} or [index,"GenericError"].
func (e *InstructionError) MarshalJSON() ([]byte, error) {
	var detail any = "GenericError"
	if code, ok := e.CustomCode(); ok {
		detail = map[string]uint32{"Custom": code}
	}
	return json.Marshal(map[string][]any{"InstructionError": {e.Index, detail}})
}
