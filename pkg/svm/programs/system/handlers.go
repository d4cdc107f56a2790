package system

import (
	"fmt"
	"math"

	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

// MaxAccountDataSize caps the space CreateAccount and Allocate may request.
const MaxAccountDataSize = 10 << 20

// accounts returns the first n instruction accounts.
func accounts(ctx *syscall.ExecutionContext, name string, n int) ([]*syscall.AccountInfo, error) {
	if ctx.AccountCount() < n {
		return nil, fmt.Errorf("%w: %s needs %d accounts, got %d", ErrInvalidInstructionData, name, n, ctx.AccountCount())
	}
	return ctx.Accounts[:n], nil
}

// mustSignAndWrite checks the flags every debited or resized account needs.
func mustSignAndWrite(acc *syscall.AccountInfo, role string) error {
	if !acc.IsSigner {
		return fmt.Errorf("%w: %s", ErrAccountNotSigner, role)
	}
	if !acc.IsWritable {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, role)
	}
	return nil
}

func checkSpace(space uint64) error {
	if space > MaxAccountDataSize {
		return fmt.Errorf("%w: %d bytes requested, limit %d", ErrAccountDataTooLarge, space, MaxAccountDataSize)
	}
	return nil
}

func credit(acc *syscall.AccountInfo, lamports uint64) error {
	if *acc.Lamports > math.MaxUint64-lamports {
		return syscall.ErrLamportOverflow
	}
	*acc.Lamports += lamports
	return nil
}

// handleCreateAccount: [funder (signer, writable), new (signer, writable)].
func handleCreateAccount(ctx *syscall.ExecutionContext, inst *CreateAccountInstruction) error {
	accs, err := accounts(ctx, "CreateAccount", 2)
	if err != nil {
		return err
	}
	if !accs[1].IsSigner {
		return fmt.Errorf("%w: new account", ErrAccountNotSigner)
	}
	return CreateAccount(accs[0], accs[1], inst.Lamports, inst.Space, inst.Owner)
}

// CreateAccount funds newAcc from funder, gives it space zeroed bytes and
// assigns it to owner. Authority over newAcc is the caller's to prove,
// either by a transaction signature or by deriving it as a program address.
func CreateAccount(funder, newAcc *syscall.AccountInfo, lamports, space uint64, owner types.Pubkey) error {
	if err := mustSignAndWrite(funder, "funding account"); err != nil {
		return err
	}
	if !newAcc.IsWritable {
		return fmt.Errorf("%w: new account", ErrAccountNotWritable)
	}
	if *newAcc.Lamports != 0 || len(newAcc.Data) != 0 || newAcc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, newAcc.Pubkey)
	}
	if err := checkSpace(space); err != nil {
		return err
	}
	if need := uint64(types.RentExemptMinimum(space)); lamports < need {
		return fmt.Errorf("%w: %d bytes need %d lamports, got %d", ErrAccountNotRentExempt, space, need, lamports)
	}
	if *funder.Lamports < lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, lamports, *funder.Lamports)
	}

	*funder.Lamports -= lamports
	*newAcc.Lamports = lamports
	newAcc.Data = make([]byte, space)
	newAcc.Owner = owner
	return nil
}

// InitAccount turns acc into a rent-exempt account of space bytes owned by
// owner. An address that already holds lamports but no data is topped up to
// the rent-exempt minimum instead of being rejected.
func InitAccount(funder, acc *syscall.AccountInfo, space uint64, owner types.Pubkey) error {
	rent := uint64(types.RentExemptMinimum(space))
	if *acc.Lamports == 0 {
		return CreateAccount(funder, acc, rent, space, owner)
	}
	if err := mustSignAndWrite(funder, "funding account"); err != nil {
		return err
	}
	if !acc.IsWritable {
		return fmt.Errorf("%w: new account", ErrAccountNotWritable)
	}
	if len(acc.Data) != 0 || acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, acc.Pubkey)
	}
	if err := checkSpace(space); err != nil {
		return err
	}
	if *acc.Lamports < rent {
		if err := Transfer(funder, acc, rent-*acc.Lamports); err != nil {
			return err
		}
	}
	acc.Data = make([]byte, space)
	acc.Owner = owner
	return nil
}

// handleAssign: [account (signer, writable)].
func handleAssign(ctx *syscall.ExecutionContext, inst *AssignInstruction) error {
	accs, err := accounts(ctx, "Assign", 1)
	if err != nil {
		return err
	}
	acc := accs[0]
	if err := mustSignAndWrite(acc, "account to assign"); err != nil {
		return err
	}
	if acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: account to assign is owned by %s", ErrInvalidAccountOwner, acc.Owner)
	}
	acc.Owner = inst.Owner
	return nil
}

// handleTransfer: [source (signer, writable), destination (writable)].
func handleTransfer(ctx *syscall.ExecutionContext, inst *TransferInstruction) error {
	accs, err := accounts(ctx, "Transfer", 2)
	if err != nil {
		return err
	}
	return Transfer(accs[0], accs[1], inst.Lamports)
}

// Transfer moves lamports out of a signing, system-owned account that holds
// no data. A transfer to itself only checks the balance.
func Transfer(from, to *syscall.AccountInfo, lamports uint64) error {
	if err := mustSignAndWrite(from, "source account"); err != nil {
		return err
	}
	if !to.IsWritable {
		return fmt.Errorf("%w: destination account", ErrAccountNotWritable)
	}
	if from.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: source is owned by %s", ErrInvalidAccountOwner, from.Owner)
	}
	if len(from.Data) != 0 {
		return ErrTransferFromData
	}
	if *from.Lamports < lamports {
		return fmt.Errorf("%w: need %d lamports, have %d", ErrInsufficientFunds, lamports, *from.Lamports)
	}
	if from == to || from.Pubkey == to.Pubkey {
		return nil
	}
	if err := credit(to, lamports); err != nil {
		return err
	}
	*from.Lamports -= lamports
	return nil
}

// handleAllocate: [account (signer, writable)].
func handleAllocate(ctx *syscall.ExecutionContext, inst *AllocateInstruction) error {
	accs, err := accounts(ctx, "Allocate", 1)
	if err != nil {
		return err
	}
	acc := accs[0]
	if err := mustSignAndWrite(acc, "account to allocate"); err != nil {
		return err
	}
	if len(acc.Data) != 0 || acc.Owner != types.SystemProgramID {
		return fmt.Errorf("%w: %s", ErrAccountAlreadyExists, acc.Pubkey)
	}
	if err := checkSpace(inst.Space); err != nil {
		return err
	}
	acc.Data = make([]byte, inst.Space)
	return nil
}
