package accounts

import (
	"bytes"
	"slices"
	"sync"

	"github.com/fortiblox/savefi/pkg/types"
)

// Memory keeps accounts in a map. Accounts are cloned on the way in and out.
type Memory struct {
	mu   sync.RWMutex
	byPk map[types.Pubkey]*types.Account
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{byPk: make(map[types.Pubkey]*types.Account)}
}

func (m *Memory) Get(pubkey types.Pubkey) (*types.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byPk[pubkey].Clone(), nil
}

func (m *Memory) Commit(refs []types.AccountRef) error {
	if err := checkRefs(refs); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range refs {
		if ref.Account.IsEmpty() {
			delete(m.byPk, ref.Pubkey)
		} else {
			m.byPk[ref.Pubkey] = ref.Account.Clone()
		}
	}
	return nil
}

// Range iterates a copy taken under the read lock, so fn may call back into
// the store.
func (m *Memory) Range(fn func(ref types.AccountRef) error) error {
	m.mu.RLock()
	refs := make([]types.AccountRef, 0, len(m.byPk))
	for pk, acc := range m.byPk {
		refs = append(refs, types.AccountRef{Pubkey: pk, Account: acc.Clone()})
	}
	m.mu.RUnlock()

	slices.SortFunc(refs, func(a, b types.AccountRef) int {
		return bytes.Compare(a.Pubkey[:], b.Pubkey[:])
	})
	for _, ref := range refs {
		if err := fn(ref); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) Count() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.byPk))
}

// Close drops every account.
func (m *Memory) Close() error {
	m.mu.Lock()
	clear(m.byPk)
	m.mu.Unlock()
	return nil
}
