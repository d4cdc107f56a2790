// Package client is a Go SDK for the SaveFi node. It builds vault program
// instructions, signs and sends them as standard Solana transactions, and
// decodes program state and errors.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/fortiblox/savefi/pkg/svm/programs/savefi"
	"github.com/fortiblox/savefi/pkg/types"
)

// Client talks to a SaveFi node over JSON-RPC.
type Client struct {
	RPC *rpc.Client

	addrs      savefi.Addresses
	params     savefi.Params
	commitment rpc.CommitmentType
}

// Option configures a Client.
type Option func(*Client)

// WithParams sets the platform constants used for client-side checks
// instead of the defaults. Use FetchParams to read them from the node.
func WithParams(p savefi.Params) Option {
	return func(c *Client) { c.params = p }
}

// New creates a client for the node at endpoint whose protocol uses
// receiptMint.
func New(endpoint string, receiptMint solana.PublicKey, opts ...Option) (*Client, error) {
	return NewWithRPC(rpc.New(endpoint), receiptMint, opts...)
}

// NewWithRPC creates a client over an existing RPC client.
func NewWithRPC(cl *rpc.Client, receiptMint solana.PublicKey, opts ...Option) (*Client, error) {
	addrs, err := savefi.ProtocolAddresses(types.Pubkey(receiptMint))
	if err != nil {
		return nil, fmt.Errorf("derive protocol addresses: %w", err)
	}
	c := &Client{
		RPC:        cl,
		addrs:      addrs,
		params:     savefi.DefaultParams(),
		commitment: rpc.CommitmentFinalized,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Params returns the constants used for client-side validation.
func (c *Client) Params() savefi.Params {
	return c.params
}

// Addresses returns the protocol PDAs.
func (c *Client) Addresses() savefi.Addresses {
	return c.addrs
}

type programParams struct {
	ProgramID string        `json:"programId"`
	Params    savefi.Params `json:"params"`
}

// FetchParams reads the node's platform constants and uses them for
// subsequent client-side checks.
func (c *Client) FetchParams(ctx context.Context) (savefi.Params, error) {
	var out programParams
	if err := c.RPC.RPCCallForInto(ctx, &out, "getProgramParams", nil); err != nil {
		return savefi.Params{}, ParseError(err)
	}
	if out.ProgramID != savefi.ProgramID.String() {
		return savefi.Params{}, fmt.Errorf("node runs program %s, want %s", out.ProgramID, savefi.ProgramID)
	}
	c.params = out.Params
	return out.Params, nil
}

// Balance returns the lamports held by pk.
func (c *Client) Balance(ctx context.Context, pk solana.PublicKey) (uint64, error) {
	out, err := c.RPC.GetBalance(ctx, pk, c.commitment)
	if err != nil {
		return 0, ParseError(err)
	}
	return out.Value, nil
}

// Airdrop requests lamports from the node's faucet.
func (c *Client) Airdrop(ctx context.Context, pk solana.PublicKey, lamports uint64) (solana.Signature, error) {
	sig, err := c.RPC.RequestAirdrop(ctx, pk, lamports, c.commitment)
	if err != nil {
		return solana.Signature{}, ParseError(err)
	}
	return sig, nil
}

// FetchVault reads and decodes owner's vault. It returns
// savefi.ErrNotFound when the vault was never initialized.
func (c *Client) FetchVault(ctx context.Context, owner solana.PublicKey) (*savefi.Vault, error) {
	addr, _, err := FindVaultAddress(owner)
	if err != nil {
		return nil, err
	}
	data, err := c.programAccountData(ctx, addr)
	if err != nil {
		return nil, err
	}
	return savefi.DeserializeVault(data)
}

// FetchProtocolConfig reads and decodes the protocol config.
func (c *Client) FetchProtocolConfig(ctx context.Context) (*savefi.ProtocolConfig, error) {
	data, err := c.programAccountData(ctx, solana.PublicKey(c.addrs.Config))
	if err != nil {
		return nil, err
	}
	return savefi.DeserializeProtocolConfig(data)
}

// FetchFeeAccount reads and decodes the fee account.
func (c *Client) FetchFeeAccount(ctx context.Context) (*savefi.FeeAccount, error) {
	data, err := c.programAccountData(ctx, solana.PublicKey(c.addrs.FeeAccount))
	if err != nil {
		return nil, err
	}
	return savefi.DeserializeFeeAccount(data)
}

func (c *Client) programAccountData(ctx context.Context, addr solana.PublicKey) ([]byte, error) {
	out, err := c.RPC.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: c.commitment,
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, fmt.Errorf("%w: account %s", savefi.ErrNotFound, addr)
	}
	if err != nil {
		return nil, ParseError(err)
	}
	if out.Value == nil || out.Value.Data == nil {
		return nil, fmt.Errorf("%w: account %s", savefi.ErrNotFound, addr)
	}
	if out.Value.Owner != solana.PublicKey(savefi.ProgramID) {
		return nil, fmt.Errorf("%w: account %s owned by %s", savefi.ErrInvalidAccount, addr, out.Value.Owner)
	}
	data := out.Value.Data.GetBinary()
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: account %s", savefi.ErrNotFound, addr)
	}
	return data, nil
}

// HistoryEntry is one transaction touching an account.
type HistoryEntry struct {
	Signature    string   `json:"signature"`
	Slot         uint64   `json:"slot"`
	BlockTime    int64    `json:"blockTime"`
	Success      bool     `json:"success"`
	Error        string   `json:"error,omitempty"`
	ErrorCode    *uint32  `json:"errorCode,omitempty"`
	ErrorName    string   `json:"errorName,omitempty"`
	Instructions []string `json:"instructions"`
}

// ProgramError returns the program error code of a failed entry.
func (e HistoryEntry) ProgramError() (savefi.ErrorCode, bool) {
	if e.ErrorCode == nil {
		return 0, false
	}
	return savefi.ErrorCodeFromCustom(*e.ErrorCode)
}

// History returns up to limit transactions touching pk, newest first.
func (c *Client) History(ctx context.Context, pk solana.PublicKey, limit int) ([]HistoryEntry, error) {
	var out []HistoryEntry
	params := []interface{}{pk.String(), map[string]int{"limit": limit}}
	if err := c.RPC.RPCCallForInto(ctx, &out, "getTransactionHistory", params); err != nil {
		return nil, ParseError(err)
	}
	return out, nil
}

// SignatureStatus returns the execution error of a processed transaction,
// nil on success, or ErrUnknownSignature.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) error {
	out, err := c.RPC.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return ParseError(err)
	}
	if len(out.Value) == 0 || out.Value[0] == nil {
		return fmt.Errorf("%w: %s", ErrUnknownSignature, sig)
	}
	return transactionError(out.Value[0].Err, nil)
}

// Send builds, signs and sends a transaction of ixs paid by payer. Every
// signer an instruction requires besides payer must be in signers.
func (c *Client) Send(ctx context.Context, payer solana.PrivateKey, ixs []types.Instruction, signers ...solana.PrivateKey) (solana.Signature, error) {
	recent, err := c.RPC.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return solana.Signature{}, ParseError(err)
	}

	converted := make([]solana.Instruction, len(ixs))
	for i, ix := range ixs {
		converted[i] = ToSolanaInstruction(ix)
	}
	tx, err := solana.NewTransaction(converted, recent.Value.Blockhash, solana.TransactionPayer(payer.PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("build transaction: %w", err)
	}

	keys := make(map[solana.PublicKey]*solana.PrivateKey, len(signers)+1)
	keys[payer.PublicKey()] = &payer
	for i := range signers {
		keys[signers[i].PublicKey()] = &signers[i]
	}
	if _, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		return keys[pk]
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("sign transaction: %w", err)
	}

	sig, err := c.RPC.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		Encoding:            solana.EncodingBase64,
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return solana.Signature{}, ParseError(err)
	}
	return sig, nil
}

// ToSolanaInstruction converts a program instruction to solana-go's form.
func ToSolanaInstruction(ix types.Instruction) solana.Instruction {
	metas := make(solana.AccountMetaSlice, len(ix.Accounts))
	for i, m := range ix.Accounts {
		metas[i] = solana.NewAccountMeta(solana.PublicKey(m.Pubkey), m.IsWritable, m.IsSigner)
	}
	return solana.NewInstruction(solana.PublicKey(ix.ProgramID), metas, ix.Data)
}

func pubkey(k solana.PrivateKey) types.Pubkey {
	return types.Pubkey(k.PublicKey())
}
