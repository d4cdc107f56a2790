package token

import "errors"

// Error is a token program failure with its SPL TokenError code, reported
// to clients as a Custom instruction error.
type Error struct {
	code uint32
	name string
	msg  string
}

func (e *Error) Error() string      { return e.msg }
func (e *Error) String() string     { return e.name }
func (e *Error) CustomCode() uint32 { return e.code }

var (
	ErrInsufficientFunds      = &Error{1, "InsufficientFunds", "insufficient funds"}
	ErrInvalidMint            = &Error{2, "InvalidMint", "invalid mint"}
	ErrMintMismatch           = &Error{3, "MintMismatch", "account not associated with this mint"}
	ErrOwnerMismatch          = &Error{4, "OwnerMismatch", "owner does not match"}
	ErrFixedSupply            = &Error{5, "FixedSupply", "fixed supply"}
	ErrAlreadyInitialized     = &Error{6, "AlreadyInUse", "account already in use"}
	ErrNotInitialized         = &Error{9, "UninitializedState", "state is uninitialized"}
	ErrInvalidInstructionData = &Error{12, "InvalidInstruction", "invalid instruction"}
	ErrOverflow               = &Error{14, "Overflow", "operation overflowed"}
	ErrAccountFrozen          = &Error{17, "AccountFrozen", "account is frozen"}

	// Mint authority mismatches report as OwnerMismatch.
	ErrAuthorityMismatch = &Error{4, "OwnerMismatch", "mint authority does not match"}
)

// Runtime failures that carry no token error code.
var (
	ErrInvalidAccountData      = errors.New("invalid account data")
	ErrInvalidAccountOwner     = errors.New("invalid account owner")
	ErrAccountNotSigner        = errors.New("missing required signature")
	ErrAccountNotWritable      = errors.New("account is not writable")
	ErrInvalidNumberOfAccounts = errors.New("not enough account keys")
)
