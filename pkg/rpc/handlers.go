package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fortiblox/savefi/pkg/accounts"
	"github.com/fortiblox/savefi/pkg/history"
	"github.com/fortiblox/savefi/pkg/ledger"
	"github.com/fortiblox/savefi/pkg/logging"
	"github.com/fortiblox/savefi/pkg/poh"
	"github.com/fortiblox/savefi/pkg/svm/programs/savefi"
	"github.com/fortiblox/savefi/pkg/types"
)

// NodeVersion is reported by getVersion.
const NodeVersion = "1.18.0"

// maxSignatureStatuses bounds one getSignatureStatuses call, as Solana does.
const maxSignatureStatuses = 256

// Handler is the function signature for RPC method handlers.
type Handler func(ctx context.Context, params json.RawMessage) (interface{}, *RPCError)

// Handlers serves RPC methods from a ledger.
type Handlers struct {
	ledger   *ledger.Ledger
	params   savefi.Params
	log      logging.Logger
	handlers map[string]Handler
}

// NewHandlers creates the method table for l. params are the vault
// program's constants as published by getProgramParams.
func NewHandlers(l *ledger.Ledger, params savefi.Params, log logging.Logger) *Handlers {
	if log == nil {
		log = logging.Nop()
	}
	h := &Handlers{
		ledger:   l,
		params:   params,
		log:      log,
		handlers: make(map[string]Handler),
	}
	h.registerHandlers()
	return h
}

// GetHandler returns the handler for a method, or nil if not found.
func (h *Handlers) GetHandler(method string) Handler {
	return h.handlers[method]
}

// Methods returns the number of registered methods.
func (h *Handlers) Methods() int {
	return len(h.handlers)
}

func (h *Handlers) registerHandlers() {
	h.handlers["getAccountInfo"] = h.handleGetAccountInfo
	h.handlers["getBalance"] = h.handleGetBalance
	h.handlers["getSlot"] = h.handleGetSlot
	h.handlers["getBlockHeight"] = h.handleGetSlot
	h.handlers["getHealth"] = h.handleGetHealth
	h.handlers["getVersion"] = h.handleGetVersion
	h.handlers["getLatestBlockhash"] = h.handleGetLatestBlockhash
	h.handlers["isBlockhashValid"] = h.handleIsBlockhashValid
	h.handlers["getMinimumBalanceForRentExemption"] = h.handleGetMinimumBalanceForRentExemption
	h.handlers["getSignatureStatuses"] = h.handleGetSignatureStatuses
	h.handlers["getTransaction"] = h.handleGetTransaction
	h.handlers["getTransactionHistory"] = h.handleGetTransactionHistory
	h.handlers["sendTransaction"] = h.handleSendTransaction
	h.handlers["requestAirdrop"] = h.handleRequestAirdrop
	h.handlers["getVault"] = h.handleGetVault
	h.handlers["getProtocolConfig"] = h.handleGetProtocolConfig
	h.handlers["getFeeAccount"] = h.handleGetFeeAccount
	h.handlers["getProgramParams"] = h.handleGetProgramParams
}

// positional splits params into its positional elements and requires at
// least min of them.
func positional(params json.RawMessage, min int) ([]json.RawMessage, *RPCError) {
	var raw []json.RawMessage
	if len(params) > 0 {
		if err := json.Unmarshal(params, &raw); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid params: expected array")
		}
	}
	if len(raw) < min {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("expected at least %d params, got %d", min, len(raw)))
	}
	return raw, nil
}

func pubkeyParam(raw json.RawMessage) (types.Pubkey, *RPCError) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return types.Pubkey{}, NewRPCError(InvalidParams, "invalid pubkey parameter")
	}
	pk, err := types.PubkeyFromBase58(s)
	if err != nil {
		return types.Pubkey{}, NewRPCError(InvalidParams, fmt.Sprintf("invalid pubkey: %v", err))
	}
	return pk, nil
}

func (h *Handlers) context() Context {
	_, height := h.ledger.LatestBlockhash()
	return Context{Slot: height}
}

func internalError(what string, err error) *RPCError {
	return NewRPCError(InternalError, fmt.Sprintf("%s: %v", what, err))
}

func programError(code savefi.ErrorCode, detail string) *RPCError {
	return NewRPCErrorWithData(KeyNotFound, fmt.Sprintf("%s: %s", code, detail),
		ProgramErrorData{Err: map[string]uint32{"Custom": code.CustomCode()}})
}

// handleGetAccountInfo handles the getAccountInfo RPC method.
// Params: [pubkey, {encoding, dataSlice, minContextSlot}]
func (h *Handlers) handleGetAccountInfo(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}

	encoding := EncodingBase64
	var dataSlice *DataSlice
	if len(raw) > 1 {
		var options AccountInfoOptions
		if err := json.Unmarshal(raw[1], &options); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid options")
		}
		if options.Encoding != "" {
			if err := ValidateEncoding(options.Encoding); err != nil {
				return nil, NewRPCError(UnsupportedEncoding, err.Error())
			}
			encoding = options.Encoding
		}
		dataSlice = options.DataSlice
	}

	account, err := h.ledger.GetAccount(pubkey)
	if err != nil {
		return nil, internalError("failed to get account", err)
	}
	rctx := h.context()
	if account == nil {
		return ContextualResult{Context: rctx, Value: nil}, nil
	}

	encoded, err := EncodeAccountData(SliceData(account.Data, dataSlice), encoding)
	if err != nil {
		return nil, NewRPCError(InvalidParams, err.Error())
	}
	return ContextualResult{
		Context: rctx,
		Value: AccountInfoResult{
			Lamports:   uint64(account.Lamports),
			Data:       encoded,
			Owner:      account.Owner.String(),
			Executable: account.Executable,
			Space:      uint64(len(account.Data)),
		},
	}, nil
}

// handleGetBalance handles the getBalance RPC method.
// Params: [pubkey, {commitment, minContextSlot}]
func (h *Handlers) handleGetBalance(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	balance, err := h.ledger.GetBalance(pubkey)
	if err != nil {
		return nil, internalError("failed to get balance", err)
	}
	return ContextualResult{Context: h.context(), Value: balance}, nil
}

// handleGetSlot serves getSlot and getBlockHeight. Every entry of the hash
// chain is one slot.
func (h *Handlers) handleGetSlot(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	_, height := h.ledger.LatestBlockhash()
	return height, nil
}

// handleGetHealth handles the getHealth RPC method.
func (h *Handlers) handleGetHealth(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	if err := h.Health(ctx); err != nil {
		return nil, NewRPCError(InternalError, fmt.Sprintf("node is unhealthy: %v", err))
	}
	return "ok", nil
}

// Health reports whether the account store is readable.
func (h *Handlers) Health(ctx context.Context) error {
	return h.ledger.View(func(db accounts.Store, _ *poh.Recorder) error {
		_, err := db.Get(savefi.ProgramID)
		return err
	})
}

// handleGetVersion handles the getVersion RPC method.
func (h *Handlers) handleGetVersion(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	return VersionResult{SolanaCore: NodeVersion}, nil
}

// handleGetLatestBlockhash handles the getLatestBlockhash RPC method.
// Params: [{commitment, minContextSlot}]
func (h *Handlers) handleGetLatestBlockhash(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	hash, height := h.ledger.LatestBlockhash()
	return ContextualResult{
		Context: Context{Slot: height},
		Value: BlockhashResult{
			Blockhash:            hash.String(),
			LastValidBlockHeight: height + poh.MaxRecentBlockhashes,
		},
	}, nil
}

// handleIsBlockhashValid handles the isBlockhashValid RPC method.
// Params: [blockhash, {commitment}]
func (h *Handlers) handleIsBlockhashValid(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var s string
	if err := json.Unmarshal(raw[0], &s); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid blockhash parameter")
	}
	hash, err := types.HashFromBase58(s)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid blockhash: %v", err))
	}
	var valid bool
	_ = h.ledger.View(func(_ accounts.Store, chain *poh.Recorder) error {
		valid = chain.IsRecent(hash)
		return nil
	})
	return ContextualResult{Context: h.context(), Value: valid}, nil
}

// handleGetMinimumBalanceForRentExemption handles the method of that name.
// Params: [dataSize]
func (h *Handlers) handleGetMinimumBalanceForRentExemption(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var size uint64
	if err := json.Unmarshal(raw[0], &size); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid data size")
	}
	return uint64(types.RentExemptMinimum(size)), nil
}

// handleGetSignatureStatuses handles the getSignatureStatuses RPC method.
// Params: [[signature...], {searchTransactionHistory}]
// Statuses are kept while the transaction's blockhash is recent; with
// searchTransactionHistory older ones are read from history.
func (h *Handlers) handleGetSignatureStatuses(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var sigs []string
	if err := json.Unmarshal(raw[0], &sigs); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid signatures parameter: expected array")
	}
	if len(sigs) > maxSignatureStatuses {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("too many signatures: %d > %d", len(sigs), maxSignatureStatuses))
	}
	var options struct {
		SearchTransactionHistory bool `json:"searchTransactionHistory"`
	}
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &options); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid options")
		}
	}

	values := make([]*SignatureStatusResult, len(sigs))
	for i, s := range sigs {
		sig, err := types.SignatureFromBase58(s)
		if err != nil {
			return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid signature %q: %v", s, err))
		}
		if st, ok := h.ledger.SignatureStatus(sig); ok {
			values[i] = &SignatureStatusResult{
				Slot:               st.Height,
				Err:                transactionError(st.Err),
				ConfirmationStatus: CommitmentFinalized,
			}
			continue
		}
		if !options.SearchTransactionHistory {
			continue
		}
		rec, err := h.ledger.History().Get(ctx, sig)
		if errors.Is(err, history.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, internalError("failed to read history", err)
		}
		values[i] = &SignatureStatusResult{
			Slot:               rec.Height,
			Err:                recordError(rec),
			ConfirmationStatus: CommitmentFinalized,
		}
	}
	return ContextualResult{Context: h.context(), Value: values}, nil
}

// transactionError converts an execution error into Solana's structured
// TransactionError JSON value.
func transactionError(err error) interface{} {
	if err == nil {
		return nil
	}
	var ixErr *ledger.InstructionError
	if errors.As(err, &ixErr) {
		return ixErr
	}
	switch {
	case errors.Is(err, ledger.ErrBlockhashNotFound):
		return "BlockhashNotFound"
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		return "AlreadyProcessed"
	case errors.Is(err, ledger.ErrSignatureVerification):
		return "SignatureFailure"
	case errors.Is(err, ledger.ErrProgramNotFound):
		return "ProgramAccountNotFound"
	}
	return err.Error()
}

// recordError rebuilds the error of a recorded failure. History keeps the
// program code but not the instruction index.
func recordError(rec *history.Record) interface{} {
	if rec.Success {
		return nil
	}
	if rec.ErrorCode != nil {
		return map[string]uint32{"Custom": *rec.ErrorCode}
	}
	return rec.Error
}

// handleGetTransaction handles the getTransaction RPC method.
// Params: [signature]
func (h *Handlers) handleGetTransaction(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var s string
	if err := json.Unmarshal(raw[0], &s); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid signature parameter")
	}
	sig, err := types.SignatureFromBase58(s)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("invalid signature: %v", err))
	}
	rec, err := h.ledger.History().Get(ctx, sig)
	if errors.Is(err, history.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, internalError("failed to read history", err)
	}
	return newTransactionRecordResult(rec), nil
}

// handleGetTransactionHistory handles the getTransactionHistory RPC method.
// Params: [pubkey, {limit}]
func (h *Handlers) handleGetTransactionHistory(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	var options HistoryOptions
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &options); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid options")
		}
	}
	if options.Limit < 0 || options.Limit > history.DefaultLimit*10 {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("limit must be between 0 and %d", history.DefaultLimit*10))
	}

	recs, err := h.ledger.History().ByAccount(ctx, pubkey, options.Limit)
	if err != nil {
		return nil, internalError("failed to read history", err)
	}
	out := make([]TransactionRecordResult, len(recs))
	for i, rec := range recs {
		out[i] = newTransactionRecordResult(rec)
	}
	return out, nil
}

// handleSendTransaction handles the sendTransaction RPC method.
// Params: [encodedTransaction, {encoding, skipPreflight, preflightCommitment}]
// Transactions execute synchronously, so a failed execution is reported
// like a failed preflight and carries the structured error.
func (h *Handlers) handleSendTransaction(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	var encoded string
	if err := json.Unmarshal(raw[0], &encoded); err != nil {
		return nil, NewRPCError(InvalidParams, "invalid transaction parameter")
	}
	var options SendTransactionOptions
	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &options); err != nil {
			return nil, NewRPCError(InvalidParams, "invalid options")
		}
	}
	tx, err := DecodeTransaction(encoded, options.Encoding)
	if err != nil {
		return nil, NewRPCError(InvalidParams, fmt.Sprintf("failed to deserialize transaction: %v", err))
	}

	result, err := h.ledger.ProcessTransaction(ctx, tx)
	if err == nil {
		return result.Signature.String(), nil
	}

	var ixErr *ledger.InstructionError
	switch {
	case errors.As(err, &ixErr):
		return nil, NewRPCErrorWithData(SendTransactionPreflightFailure,
			"Transaction simulation failed: "+instructionMessage(ixErr),
			TransactionErrorData{
				Err:           ixErr,
				Logs:          nonNil(result.Logs),
				UnitsConsumed: uint64(result.ComputeUnits),
			})
	case errors.Is(err, ledger.ErrSignatureVerification):
		return nil, NewRPCError(SignatureVerificationFailure, "Transaction signature verification failure")
	case errors.Is(err, ledger.ErrBlockhashNotFound):
		return nil, NewRPCErrorWithData(SendTransactionPreflightFailure,
			"Transaction simulation failed: Blockhash not found",
			TransactionErrorData{Err: transactionError(err), Logs: []string{}})
	case errors.Is(err, ledger.ErrAlreadyProcessed):
		return nil, NewRPCErrorWithData(SendTransactionPreflightFailure,
			"Transaction simulation failed: This transaction has already been processed",
			TransactionErrorData{Err: transactionError(err), Logs: []string{}})
	case errors.Is(err, ledger.ErrNoInstructions):
		return nil, NewRPCError(InvalidParams, err.Error())
	}
	h.log.Error(ctx, "failed to process transaction", "error", err)
	return nil, internalError("failed to process transaction", err)
}

func instructionMessage(ixErr *ledger.InstructionError) string {
	if code, ok := ixErr.CustomCode(); ok {
		return fmt.Sprintf("Error processing Instruction %d: custom program error: 0x%x", ixErr.Index, code)
	}
	return fmt.Sprintf("Error processing Instruction %d: %v", ixErr.Index, ixErr.Err)
}

func nonNil(logs []string) []string {
	if logs == nil {
		return []string{}
	}
	return logs
}

// handleRequestAirdrop handles the requestAirdrop RPC method.
// Params: [pubkey, lamports, {commitment}]
func (h *Handlers) handleRequestAirdrop(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 2)
	if rpcErr != nil {
		return nil, rpcErr
	}
	pubkey, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	var lamports uint64
	if err := json.Unmarshal(raw[1], &lamports); err != nil || lamports == 0 {
		return nil, NewRPCError(InvalidParams, "invalid lamports parameter")
	}
	sig, err := h.ledger.Airdrop(ctx, pubkey, lamports)
	if errors.Is(err, ledger.ErrAirdropDisabled) {
		return nil, NewRPCError(InvalidRequest, "airdrops are disabled on this node")
	}
	if err != nil {
		return nil, internalError("airdrop failed", err)
	}
	return sig.String(), nil
}

// programAccount reads a vault program account, reporting NotFound when
// it holds no data.
func (h *Handlers) programAccount(addr types.Pubkey, what string) (*types.Account, *RPCError) {
	acc, err := h.ledger.GetAccount(addr)
	if err != nil {
		return nil, internalError("failed to get account", err)
	}
	if acc == nil || len(acc.Data) == 0 {
		return nil, programError(savefi.ErrNotFound, fmt.Sprintf("%s %s", what, addr))
	}
	if acc.Owner != savefi.ProgramID {
		return nil, programError(savefi.ErrInvalidAccount, fmt.Sprintf("%s %s is owned by %s", what, addr, acc.Owner))
	}
	return acc, nil
}

// handleGetVault handles the getVault RPC method.
// Params: [owner]
func (h *Handlers) handleGetVault(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	raw, rpcErr := positional(params, 1)
	if rpcErr != nil {
		return nil, rpcErr
	}
	owner, rpcErr := pubkeyParam(raw[0])
	if rpcErr != nil {
		return nil, rpcErr
	}
	addr, _, err := savefi.VaultAddress(owner)
	if err != nil {
		return nil, internalError("failed to derive vault address", err)
	}
	acc, rpcErr := h.programAccount(addr, "vault")
	if rpcErr != nil {
		return nil, rpcErr
	}
	vault, err := savefi.DeserializeVault(acc.Data)
	if err != nil {
		return nil, programError(savefi.ErrInvalidAccount, err.Error())
	}
	return newVaultResult(addr, uint64(acc.Lamports), vault, h.ledger.Now()), nil
}

// handleGetProtocolConfig handles the getProtocolConfig RPC method.
func (h *Handlers) handleGetProtocolConfig(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	addr, _, err := savefi.ConfigAddress()
	if err != nil {
		return nil, internalError("failed to derive config address", err)
	}
	acc, rpcErr := h.programAccount(addr, "protocol config")
	if rpcErr != nil {
		return nil, rpcErr
	}
	cfg, err := savefi.DeserializeProtocolConfig(acc.Data)
	if err != nil {
		return nil, programError(savefi.ErrInvalidAccount, err.Error())
	}
	return ProtocolConfigResult{
		Address:       addr.String(),
		Admin:         cfg.Admin.String(),
		Paused:        cfg.Paused,
		EmergencyMode: cfg.EmergencyMode,
		ReceiptMint:   cfg.ReceiptMint.String(),
		Bump:          cfg.Bump,
	}, nil
}

// handleGetFeeAccount handles the getFeeAccount RPC method.
func (h *Handlers) handleGetFeeAccount(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	addr, _, err := savefi.FeeAccountAddress()
	if err != nil {
		return nil, internalError("failed to derive fee account address", err)
	}
	acc, rpcErr := h.programAccount(addr, "fee account")
	if rpcErr != nil {
		return nil, rpcErr
	}
	fee, err := savefi.DeserializeFeeAccount(acc.Data)
	if err != nil {
		return nil, programError(savefi.ErrInvalidAccount, err.Error())
	}
	return FeeAccountResult{
		Address:            addr.String(),
		Lamports:           uint64(acc.Lamports),
		Authority:          fee.Authority.String(),
		FeeRate:            fee.FeeRate,
		CollectedFees:      fee.CollectedFees,
		LastCollectionTime: fee.LastCollectionTime,
		Bump:               fee.Bump,
	}, nil
}

// handleGetProgramParams handles the getProgramParams RPC method.
func (h *Handlers) handleGetProgramParams(ctx context.Context, params json.RawMessage) (interface{}, *RPCError) {
	return ProgramParamsResult{
		ProgramID: savefi.ProgramID.String(),
		Params:    h.params,
	}, nil
}
