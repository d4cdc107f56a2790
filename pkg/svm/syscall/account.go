package syscall

import (
	"bytes"

	"github.com/fortiblox/savefi/pkg/types"
)

// AccountInfo is a program's view of one transaction account. Instructions
// of the same transaction share AccountInfo values, so a change made by one
// instruction is visible to the next.
type AccountInfo struct {
	Pubkey     types.Pubkey
	Lamports   *uint64
	Data       []byte
	Owner      types.Pubkey
	Executable bool
	IsSigner   bool
	IsWritable bool
}

// NewAccountInfo copies a stored account into an AccountInfo. A missing
// account becomes an empty system-owned one.
func NewAccountInfo(pubkey types.Pubkey, account *types.Account, isSigner, isWritable bool) *AccountInfo {
	info := &AccountInfo{
		Pubkey:     pubkey,
		Lamports:   new(uint64),
		Owner:      types.SystemProgramID,
		IsSigner:   isSigner,
		IsWritable: isWritable,
	}
	if account != nil {
		*info.Lamports = uint64(account.Lamports)
		info.Owner = account.Owner
		info.Executable = account.Executable
		info.Data = bytes.Clone(account.Data)
	}
	return info
}

// Clone returns a deep copy.
func (a *AccountInfo) Clone() *AccountInfo {
	if a == nil {
		return nil
	}
	c := *a
	lamports := *a.Lamports
	c.Lamports = &lamports
	c.Data = bytes.Clone(a.Data)
	return &c
}

// ToAccount copies the info back into a storable account.
func (a *AccountInfo) ToAccount() *types.Account {
	return &types.Account{
		Lamports:   types.Lamports(*a.Lamports),
		Data:       bytes.Clone(a.Data),
		Owner:      a.Owner,
		Executable: a.Executable,
	}
}
