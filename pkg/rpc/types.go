// Package rpc provides the node's JSON-RPC 2.0 server. Standard methods
// follow the Solana RPC shapes so stock clients work; the vault methods
// return decoded program state.
package rpc

import (
	"encoding/json"

	"github.com/fortiblox/savefi/pkg/history"
	"github.com/fortiblox/savefi/pkg/svm/programs/savefi"
	"github.com/fortiblox/savefi/pkg/types"
)

// JSON-RPC 2.0 constants
const (
	JSONRPCVersion = "2.0"
)

// Standard JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603

	// Solana server error codes
	BlockCleanedUp                   = -32001
	SendTransactionPreflightFailure  = -32002
	SignatureVerificationFailure     = -32003
	TransactionHistoryNotAvailable   = -32008
	KeyNotFound                      = -32010
	UnsupportedEncoding              = -32011
	RateLimited                      = -32429
	TransactionPrecompileVerifyError = -32016
)

// RPCRequest represents a JSON-RPC 2.0 request.
type RPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      interface{}     `json:"id"`
}

// RPCResponse represents a JSON-RPC 2.0 response.
type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	return e.Message
}

// NewRPCError creates a new RPC error.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
	}
}

// NewRPCErrorWithData creates a new RPC error with additional data.
func NewRPCErrorWithData(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// TransactionErrorData is the data of a failed sendTransaction. Err holds
// the structured error, e.g. {"InstructionError":[0,{"Custom":6005}]}.
type TransactionErrorData struct {
	Err           interface{} `json:"err"`
	Logs          []string    `json:"logs"`
	UnitsConsumed uint64      `json:"unitsConsumed"`
}

// ProgramErrorData is the data of a read method that failed with a
// program error code, e.g. {"err":{"Custom":6018}}.
type ProgramErrorData struct {
	Err map[string]uint32 `json:"err"`
}

// Context represents the response context containing slot info.
type Context struct {
	Slot       uint64 `json:"slot"`
	APIVersion string `json:"apiVersion,omitempty"`
}

// ContextualResult wraps a result with context.
type ContextualResult struct {
	Context Context     `json:"context"`
	Value   interface{} `json:"value"`
}

// AccountInfoResult represents the result of getAccountInfo.
type AccountInfoResult struct {
	Lamports   uint64        `json:"lamports"`
	Data       []interface{} `json:"data"` // [data, encoding]
	Owner      string        `json:"owner"`
	Executable bool          `json:"executable"`
	RentEpoch  uint64        `json:"rentEpoch"`
	Space      uint64        `json:"space"`
}

// VersionResult represents the result of getVersion.
type VersionResult struct {
	SolanaCore string `json:"solana-core"`
	FeatureSet uint32 `json:"feature-set"`
}

// BlockhashResult represents a blockhash with context.
type BlockhashResult struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// SignatureStatusResult is one entry of getSignatureStatuses.
type SignatureStatusResult struct {
	Slot               uint64      `json:"slot"`
	Confirmations      *uint64     `json:"confirmations"`
	Err                interface{} `json:"err"`
	ConfirmationStatus Commitment  `json:"confirmationStatus"`
}

// AccountInfoOptions represents optional parameters for getAccountInfo.
type AccountInfoOptions struct {
	Encoding       string     `json:"encoding,omitempty"`
	DataSlice      *DataSlice `json:"dataSlice,omitempty"`
	MinContextSlot uint64     `json:"minContextSlot,omitempty"`
}

// DataSlice represents a slice of account data.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// SendTransactionOptions represents optional parameters for sendTransaction.
type SendTransactionOptions struct {
	Encoding            string     `json:"encoding,omitempty"`
	SkipPreflight       bool       `json:"skipPreflight,omitempty"`
	PreflightCommitment Commitment `json:"preflightCommitment,omitempty"`
	MaxRetries          *uint      `json:"maxRetries,omitempty"`
}

// HistoryOptions represents optional parameters for getTransactionHistory.
type HistoryOptions struct {
	Limit int `json:"limit,omitempty"`
}

// Commitment levels
type Commitment string

const (
	CommitmentFinalized Commitment = "finalized"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentProcessed Commitment = "processed"
)

// VaultResult is a decoded vault with its derived flags.
type VaultResult struct {
	Address               string `json:"address"`
	Lamports              uint64 `json:"lamports"`
	Owner                 string `json:"owner"`
	SaveRate              uint8  `json:"saveRate"`
	LockDays              uint8  `json:"lockDays"`
	Balance               uint64 `json:"balance"`
	LockUntil             int64  `json:"lockUntil"`
	SubscriptionExpiry    int64  `json:"subscriptionExpiry"`
	LastDepositTime       int64  `json:"lastDepositTime"`
	LastWithdrawTime      int64  `json:"lastWithdrawTime"`
	DayWindowStart        int64  `json:"dayWindowStart"`
	DailyDelegated        uint64 `json:"dailyDelegated"`
	DailyTransactionCount uint32 `json:"dailyTransactionCount"`
	LastDelegationTime    int64  `json:"lastDelegationTime"`
	DelegatedAmount       uint64 `json:"delegatedAmount"`
	DelegationExpiry      int64  `json:"delegationExpiry"`
	TotalSaved            uint64 `json:"totalSaved"`
	Bump                  uint8  `json:"bump"`
	IsLocked              bool   `json:"isLocked"`
	IsActive              bool   `json:"isActive"`
}

func newVaultResult(addr types.Pubkey, lamports uint64, v *savefi.Vault, now int64) VaultResult {
	return VaultResult{
		Address:               addr.String(),
		Lamports:              lamports,
		Owner:                 v.Owner.String(),
		SaveRate:              v.SaveRate,
		LockDays:              v.LockDays,
		Balance:               v.Balance,
		LockUntil:             v.LockUntil,
		SubscriptionExpiry:    v.SubscriptionExpiry,
		LastDepositTime:       v.LastDepositTime,
		LastWithdrawTime:      v.LastWithdrawTime,
		DayWindowStart:        v.DayWindowStart,
		DailyDelegated:        v.DailyDelegated,
		DailyTransactionCount: v.DailyTransactionCount,
		LastDelegationTime:    v.LastDelegationTime,
		DelegatedAmount:       v.DelegatedAmount,
		DelegationExpiry:      v.DelegationExpiry,
		TotalSaved:            v.TotalSaved,
		Bump:                  v.Bump,
		IsLocked:              v.IsLocked(now),
		IsActive:              v.IsActive(now),
	}
}

// ProtocolConfigResult is the decoded protocol config.
type ProtocolConfigResult struct {
	Address       string `json:"address"`
	Admin         string `json:"admin"`
	Paused        bool   `json:"paused"`
	EmergencyMode bool   `json:"emergencyMode"`
	ReceiptMint   string `json:"receiptMint"`
	Bump          uint8  `json:"bump"`
}

// FeeAccountResult is the decoded fee account.
type FeeAccountResult struct {
	Address            string `json:"address"`
	Lamports           uint64 `json:"lamports"`
	Authority          string `json:"authority"`
	FeeRate            uint8  `json:"feeRate"`
	CollectedFees      uint64 `json:"collectedFees"`
	LastCollectionTime int64  `json:"lastCollectionTime"`
	Bump               uint8  `json:"bump"`
}

// ProgramParamsResult describes the vault program and its constants.
type ProgramParamsResult struct {
	ProgramID string        `json:"programId"`
	Params    savefi.Params `json:"params"`
}

// TransactionRecordResult is one entry of getTransactionHistory and the
// result of getTransaction.
type TransactionRecordResult struct {
	Signature    string   `json:"signature"`
	Slot         uint64   `json:"slot"`
	Blockhash    string   `json:"blockhash"`
	BlockTime    int64    `json:"blockTime"`
	Success      bool     `json:"success"`
	Error        string   `json:"error,omitempty"`
	ErrorCode    *uint32  `json:"errorCode,omitempty"`
	ErrorName    string   `json:"errorName,omitempty"`
	Instructions []string `json:"instructions"`
	Accounts     []string `json:"accounts"`
	Logs         []string `json:"logs,omitempty"`
	ReturnData   []string `json:"returnData,omitempty"` // [data, "base64"]
}

func newTransactionRecordResult(rec *history.Record) TransactionRecordResult {
	out := TransactionRecordResult{
		Signature:    rec.Signature.String(),
		Slot:         rec.Height,
		Blockhash:    rec.Blockhash.String(),
		BlockTime:    rec.UnixTimestamp,
		Success:      rec.Success,
		Error:        rec.Error,
		ErrorCode:    rec.ErrorCode,
		Instructions: rec.Instructions,
		Accounts:     make([]string, len(rec.Accounts)),
		Logs:         rec.Logs,
	}
	for i, pk := range rec.Accounts {
		out.Accounts[i] = pk.String()
	}
	if rec.ErrorCode != nil {
		if code, ok := savefi.ErrorCodeFromCustom(*rec.ErrorCode); ok {
			out.ErrorName = code.String()
		}
	}
	if len(rec.ReturnData) > 0 {
		out.ReturnData = []string{EncodeBase64(rec.ReturnData), EncodingBase64}
	}
	return out
}
