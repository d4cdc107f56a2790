package client

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"

	"github.com/fortiblox/savefi/pkg/svm/programs/savefi"
)

// Transaction rejections reported by the node.
var (
	ErrBlockhashNotFound     = errors.New("blockhash not found")
	ErrAlreadyProcessed      = errors.New("transaction already processed")
	ErrSignatureVerification = errors.New("signature verification failed")
	ErrUnknownSignature      = errors.New("unknown signature")
)

// codeSignatureVerification is the node's signature failure code.
const codeSignatureVerification = -32003

// ProgramError is a vault program failure. It unwraps to its ErrorCode,
// so errors.Is(err, savefi.ErrVaultLocked) works.
type ProgramError struct {
	Code savefi.ErrorCode
	// Index is the failing instruction, or -1 when unknown.
	Index int
	Logs  []string
}

func (e *ProgramError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("program error %d: %s", e.Code.CustomCode(), e.Code)
	}
	return fmt.Sprintf("instruction %d: program error %d: %s", e.Index, e.Code.CustomCode(), e.Code)
}

func (e *ProgramError) Unwrap() error {
	return e.Code
}

// InstructionError is a failed instruction whose error is not a vault
// program code, e.g. a system program failure.
type InstructionError struct {
	Index  int
	Detail json.RawMessage
	Logs   []string
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d failed: %s", e.Index, e.Detail)
}

// errorData is the data object the node attaches to failures.
type errorData struct {
	Err  json.RawMessage `json:"err"`
	Logs []string        `json:"logs"`
}

// ParseError maps a node RPC error to a typed error by decoding its data.
// Errors that are not RPC errors are returned unchanged.
func ParseError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *jsonrpc.RPCError
	if !errors.As(err, &rpcErr) {
		return err
	}
	if rpcErr.Code == codeSignatureVerification {
		return fmt.Errorf("%w: %s", ErrSignatureVerification, rpcErr.Message)
	}
	if rpcErr.Data == nil {
		return err
	}

	raw, jerr := json.Marshal(rpcErr.Data)
	if jerr != nil {
		return err
	}
	var data errorData
	if json.Unmarshal(raw, &data) != nil || len(data.Err) == 0 {
		return err
	}
	if parsed := transactionError(data.Err, data.Logs); parsed != nil {
		return parsed
	}
	return err
}

// transactionError decodes a Solana TransactionError value: a bare string
// such as "BlockhashNotFound", {"Custom":n}, or
// {"InstructionError":[index, detail]}.
func transactionError(v interface{}, logs []string) error {
	if v == nil {
		return nil
	}
	raw, ok := v.(json.RawMessage)
	if !ok {
		var err error
		if raw, err = json.Marshal(v); err != nil {
			return fmt.Errorf("transaction failed: %v", v)
		}
	}
	if string(raw) == "null" {
		return nil
	}

	var name string
	if json.Unmarshal(raw, &name) == nil {
		switch name {
		case "BlockhashNotFound":
			return ErrBlockhashNotFound
		case "AlreadyProcessed":
			return ErrAlreadyProcessed
		case "SignatureFailure":
			return ErrSignatureVerification
		}
		return fmt.Errorf("transaction failed: %s", name)
	}

	var custom struct {
		Custom *uint32 `json:"Custom"`
	}
	if json.Unmarshal(raw, &custom) == nil && custom.Custom != nil {
		return programError(*custom.Custom, -1, logs)
	}

	var ix struct {
		InstructionError []json.RawMessage `json:"InstructionError"`
	}
	if json.Unmarshal(raw, &ix) == nil && len(ix.InstructionError) == 2 {
		var index int
		if err := json.Unmarshal(ix.InstructionError[0], &index); err != nil {
			return fmt.Errorf("transaction failed: %s", raw)
		}
		var detail struct {
			Custom *uint32 `json:"Custom"`
		}
		if json.Unmarshal(ix.InstructionError[1], &detail) == nil && detail.Custom != nil {
			return programError(*detail.Custom, index, logs)
		}
		return &InstructionError{Index: index, Detail: ix.InstructionError[1], Logs: logs}
	}
	return fmt.Errorf("transaction failed: %s", raw)
}

func programError(code uint32, index int, logs []string) error {
	ec, ok := savefi.ErrorCodeFromCustom(code)
	if !ok {
		return &InstructionError{Index: index, Detail: json.RawMessage(fmt.Sprintf(`{"Custom":%d}`, code)), Logs: logs}
	}
	return &ProgramError{Code: ec, Index: index, Logs: logs}
}

// ErrorCode extracts the vault program error code from err.
func ErrorCode(err error) (savefi.ErrorCode, bool) {
	var code savefi.ErrorCode
	if errors.As(err, &code) {
		return code, true
	}
	return 0, false
}
