package system

import "errors"

// Error is a system program failure with its SystemError code.
type Error struct {
	code uint32
	name string
	msg  string
}

func (e *Error) Error() string      { return e.msg }
func (e *Error) String() string     { return e.name }
func (e *Error) CustomCode() uint32 { return e.code }

var (
	ErrAccountAlreadyExists = &Error{0, "AccountAlreadyInUse", "account already in use"}
	ErrInsufficientFunds    = &Error{1, "ResultWithNegativeLamports", "insufficient lamports"}
	ErrAccountDataTooLarge  = &Error{3, "InvalidAccountDataLength", "account data length exceeds the maximum"}
)

var (
	ErrAccountNotRentExempt   = errors.New("account would not be rent exempt")
	ErrInvalidAccountOwner    = errors.New("account is not owned by the system program")
	ErrInvalidInstructionData = errors.New("invalid instruction data")
	ErrAccountNotSigner       = errors.New("missing required signature")
	ErrAccountNotWritable     = errors.New("account is not writable")
	ErrTransferFromData       = errors.New("transfer source must not carry data")
)
