package savefi

import (
	"errors"
	"fmt"
)

// Framework errors. They carry no custom code.
var (
	ErrInvalidInstructionData = errors.New("invalid instruction data")
	ErrNotEnoughAccounts      = errors.New("not enough account keys")
)

// ErrorCode is a program error reported to clients as a custom instruction
// error. Codes start at 6000 and never change meaning.
type ErrorCode uint32

// Program errors, in code order.
const (
	ErrInvalidSaveRate ErrorCode = 6000 + iota
	ErrInvalidFeeRate
	ErrInvalidLockPeriod
	ErrUnauthorized
	ErrInvalidAmount
	ErrVaultLocked
	ErrInsufficientFunds
	ErrAlreadyInitialized
	ErrProtocolPaused
	ErrInvalidMintDecimals
	ErrVaultInactive
	ErrDelegationTooSmall
	ErrDelegationTooLarge
	ErrDailyLimitExceeded
	ErrCooldownActive
	ErrDelegationExpired
	ErrInvalidMint
	ErrArithmeticOverflow
	ErrNotFound
	ErrEmergencyModeActive
	ErrCollectionCooldown
	ErrDailyTransactionLimitExceeded
	ErrInvalidAccount
	ErrDelegationExceeded

	errorCodeEnd
)

var errorNames = [...]string{
	"InvalidSaveRate",
	"InvalidFeeRate",
	"InvalidLockPeriod",
	"Unauthorized",
	"InvalidAmount",
	"VaultLocked",
	"InsufficientFunds",
	"AlreadyInitialized",
	"ProtocolPaused",
	"InvalidMintDecimals",
	"VaultInactive",
	"DelegationTooSmall",
	"DelegationTooLarge",
	"DailyLimitExceeded",
	"CooldownActive",
	"DelegationExpired",
	"InvalidMint",
	"ArithmeticOverflow",
	"NotFound",
	"EmergencyModeActive",
	"CollectionCooldown",
	"DailyTransactionLimitExceeded",
	"InvalidAccount",
	"DelegationExceeded",
}

var errorMessages = [...]string{
	"Save rate is outside the allowed range",
	"Fee rate is outside the allowed range",
	"Lock period is outside the allowed range",
	"Unauthorized access",
	"Amount must be greater than zero",
	"Vault is still locked",
	"Insufficient funds",
	"Account already initialized",
	"Protocol is paused",
	"Invalid mint decimals",
	"Vault subscription has lapsed",
	"Delegation amount below minimum",
	"Delegation amount exceeds maximum",
	"Daily delegation limit exceeded",
	"Delegation cooldown is active",
	"Delegation has expired",
	"Invalid receipt mint",
	"Arithmetic overflow",
	"Account not found",
	"Emergency mode is active",
	"Fees were collected too recently",
	"Daily transaction limit exceeded",
	"Invalid account",
	"Amount exceeds remaining delegation",
}

// Error implements error.
func (e ErrorCode) Error() string {
	if !e.Valid() {
		return fmt.Sprintf("unknown error code %d", uint32(e))
	}
	return errorMessages[e-ErrInvalidSaveRate]
}

// String returns the error name, e.g. "VaultLocked".
func (e ErrorCode) String() string {
	if !e.Valid() {
		return fmt.Sprintf("ErrorCode(%d)", uint32(e))
	}
	return errorNames[e-ErrInvalidSaveRate]
}

// CustomCode returns the numeric code carried in InstructionError.Custom.
func (e ErrorCode) CustomCode() uint32 {
	return uint32(e)
}

// Valid reports whether e is a known code.
func (e ErrorCode) Valid() bool {
	return e >= ErrInvalidSaveRate && e < errorCodeEnd
}

// ErrorCodeFromCustom maps a custom instruction error code to an ErrorCode.
func ErrorCodeFromCustom(code uint32) (ErrorCode, bool) {
	e := ErrorCode(code)
	return e, e.Valid()
}

// ErrorCodes lists every known code in order.
func ErrorCodes() []ErrorCode {
	out := make([]ErrorCode, 0, errorCodeEnd-ErrInvalidSaveRate)
	for e := ErrInvalidSaveRate; e < errorCodeEnd; e++ {
		out = append(out, e)
	}
	return out
}

// wrap attaches context to a program error while keeping it matchable with
// errors.Is and errors.As.
func wrap(code ErrorCode, format string, args ...any) error {
	return fmt.Errorf("%w: %s", code, fmt.Sprintf(format, args...))
}
