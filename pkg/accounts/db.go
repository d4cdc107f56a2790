// Package accounts stores ledger accounts and hashes account sets.
//
// Two stores are provided: Memory for tests and throwaway nodes, and Badger
// for a node that keeps state across restarts. Both delete accounts that
// commit with zero lamports and no data, and both iterate in pubkey order so
// state hashes and snapshots are reproducible.
package accounts

import (
	"errors"
	"fmt"

	"github.com/fortiblox/savefi/pkg/types"
)

// ErrNilAccount is returned when a commit carries a nil account.
var ErrNilAccount = errors.New("nil account")

// Store is the account storage used by the ledger.
type Store interface {
	// Get returns a copy of the account, or nil when it does not exist.
	Get(pubkey types.Pubkey) (*types.Account, error)

	// Commit writes all refs atomically. Empty accounts are removed.
	Commit(refs []types.AccountRef) error

	// Range calls fn for every account in ascending pubkey order and stops
	// at the first error, which it returns.
	Range(fn func(ref types.AccountRef) error) error

	// Count returns the number of stored accounts.
	Count() uint64

	Close() error
}

func checkRefs(refs []types.AccountRef) error {
	for _, ref := range refs {
		if ref.Account == nil {
			return fmt.Errorf("%w for %s", ErrNilAccount, ref.Pubkey)
		}
	}
	return nil
}
