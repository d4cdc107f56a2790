// Package history records processed transactions so clients can list a
// wallet's activity.
package history

import (
	"context"
	"errors"

	"github.com/fortiblox/savefi/pkg/types"
)

// ErrNotFound is returned when a signature has no recorded transaction.
var ErrNotFound = errors.New("history: transaction not found")

// DefaultLimit bounds history queries that do not set a limit.
const DefaultLimit = 100

// Record is one processed transaction.
type Record struct {
	Signature     types.Signature `json:"signature"`
	Height        uint64          `json:"height"`
	Blockhash     types.Hash      `json:"blockhash"`
	UnixTimestamp int64           `json:"unixTimestamp"`
	Success       bool            `json:"success"`
	// Error is the failure message; ErrorCode is set when the failure
	// carried a program error code.
	Error        string         `json:"error,omitempty"`
	ErrorCode    *uint32        `json:"errorCode,omitempty"`
	Instructions []string       `json:"instructions"`
	Accounts     []types.Pubkey `json:"accounts"`
	Logs         []string       `json:"logs,omitempty"`
	ReturnData   []byte         `json:"returnData,omitempty"`
}

// Recorder stores and queries transaction records.
type Recorder interface {
	Record(ctx context.Context, rec *Record) error
	// Get returns the record for sig or ErrNotFound.
	Get(ctx context.Context, sig types.Signature) (*Record, error)
	// ByAccount returns the newest records touching account, newest first.
	ByAccount(ctx context.Context, account types.Pubkey, limit int) ([]*Record, error)
	Close() error
}

// Nop is a Recorder that stores nothing.
type Nop struct{}

func (Nop) Record(context.Context, *Record) error { return nil }

func (Nop) Get(context.Context, types.Signature) (*Record, error) { return nil, ErrNotFound }

func (Nop) ByAccount(context.Context, types.Pubkey, int) ([]*Record, error) { return nil, nil }

func (Nop) Close() error { return nil }

var _ Recorder = Nop{}
