package types

import "bytes"

// Rent parameters. An account is rent exempt when it holds two years of
// rent for its data plus the fixed per-account overhead.
const (
	LamportsPerByteYear    = 3480
	RentExemptionYears     = 2
	AccountStorageOverhead = 128
)

// Account is a lamport balance plus program-owned data.
type Account struct {
	Lamports   Lamports
	Data       []byte
	Owner      Pubkey
	Executable bool
}

// NewAccount returns an account with no data.
func NewAccount(lamports Lamports, owner Pubkey) *Account {
	return &Account{Lamports: lamports, Owner: owner}
}

// Clone returns a deep copy. Cloning nil returns nil.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.Data != nil {
		c.Data = bytes.Clone(a.Data)
	}
	return &c
}

// IsEmpty reports whether the account holds neither lamports nor data.
// Empty accounts are removed from the store.
func (a *Account) IsEmpty() bool {
	return a.Lamports == 0 && len(a.Data) == 0
}

// Equal reports whether a and b hold the same state.
func (a *Account) Equal(b *Account) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Lamports == b.Lamports &&
		a.Owner == b.Owner &&
		a.Executable == b.Executable &&
		bytes.Equal(a.Data, b.Data)
}

// RentExemptMinimum is the balance an account of dataSize bytes must keep.
func RentExemptMinimum(dataSize uint64) Lamports {
	return Lamports((dataSize + AccountStorageOverhead) * LamportsPerByteYear * RentExemptionYears)
}

// AccountMeta is one account reference of an instruction.
type AccountMeta struct {
	Pubkey     Pubkey
	IsSigner   bool
	IsWritable bool
}

// AccountRef pairs an address with its account.
type AccountRef struct {
	Pubkey  Pubkey
	Account *Account
}

// AccountDelta is the before and after state of an account touched by a
// transaction. OldAccount is nil when the transaction created it.
type AccountDelta struct {
	Pubkey     Pubkey
	OldAccount *Account
	NewAccount *Account
}
