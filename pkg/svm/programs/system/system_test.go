package system

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

func account(seed string, lamports uint64, signer, writable bool) *syscall.AccountInfo {
	return &syscall.AccountInfo{
		Pubkey:     testPubkey(seed),
		Lamports:   &lamports,
		Owner:      types.SystemProgramID,
		IsSigner:   signer,
		IsWritable: writable,
	}
}

func execute(t *testing.T, data []byte, accounts ...*syscall.AccountInfo) error {
	t.Helper()
	ctx := syscall.NewExecutionContext(types.SystemProgramID, accounts, data, 200_000)
	return New().Execute(ctx, &types.Instruction{ProgramID: types.SystemProgramID, Data: data})
}

func TestCreateAccount(t *testing.T) {
	payer := account("payer", 10_000_000, true, true)
	newAcc := account("new", 0, true, true)
	owner := testPubkey("owner-program")
	rent := uint64(types.RentExemptMinimum(100))

	inst := CreateAccountInstruction{Lamports: rent, Space: 100, Owner: owner}
	require.NoError(t, execute(t, inst.Encode(), payer, newAcc))

	assert.Equal(t, uint64(10_000_000)-rent, *payer.Lamports)
	assert.Equal(t, rent, *newAcc.Lamports)
	assert.Len(t, newAcc.Data, 100)
	assert.Equal(t, owner, newAcc.Owner)

	err := execute(t, inst.Encode(), payer, newAcc)
	assert.ErrorIs(t, err, ErrAccountAlreadyExists)
}

func TestCreateAccount_Errors(t *testing.T) {
	owner := testPubkey("owner-program")
	rent := uint64(types.RentExemptMinimum(10))

	err := CreateAccount(account("payer", rent, true, true), account("new", 0, true, true), rent-1, 10, owner)
	assert.ErrorIs(t, err, ErrAccountNotRentExempt)

	err = CreateAccount(account("payer", rent-1, true, true), account("new", 0, true, true), rent, 10, owner)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	err = CreateAccount(account("payer", rent, false, true), account("new", 0, true, true), rent, 10, owner)
	assert.ErrorIs(t, err, ErrAccountNotSigner)

	err = CreateAccount(account("payer", rent, true, true), account("new", 0, true, false), rent, 10, owner)
	assert.ErrorIs(t, err, ErrAccountNotWritable)

	inst := CreateAccountInstruction{Lamports: rent, Space: 10, Owner: owner}
	err = execute(t, inst.Encode(), account("payer", rent, true, true), account("new", 0, false, true))
	assert.ErrorIs(t, err, ErrAccountNotSigner)
}

func TestInitAccount(t *testing.T) {
	owner := testPubkey("owner-program")
	rent := uint64(types.RentExemptMinimum(100))

	t.Run("empty address", func(t *testing.T) {
		payer := account("payer", 10_000_000, true, true)
		acc := account("pda", 0, false, true)
		require.NoError(t, InitAccount(payer, acc, 100, owner))
		assert.Equal(t, rent, *acc.Lamports)
		assert.Equal(t, 10_000_000-rent, *payer.Lamports)
		assert.Len(t, acc.Data, 100)
		assert.Equal(t, owner, acc.Owner)
	})

	t.Run("prefunded address is topped up", func(t *testing.T) {
		payer := account("payer", 10_000_000, true, true)
		acc := account("pda", 1, false, true)
		require.NoError(t, InitAccount(payer, acc, 100, owner))
		assert.Equal(t, rent, *acc.Lamports)
		assert.Equal(t, 10_000_000-rent+1, *payer.Lamports)
		assert.Len(t, acc.Data, 100)
		assert.Equal(t, owner, acc.Owner)
	})

	t.Run("address above rent keeps its lamports", func(t *testing.T) {
		payer := account("payer", 10_000_000, true, true)
		acc := account("pda", rent+5, false, true)
		require.NoError(t, InitAccount(payer, acc, 100, owner))
		assert.Equal(t, rent+5, *acc.Lamports)
		assert.Equal(t, uint64(10_000_000), *payer.Lamports)
	})

	t.Run("existing account", func(t *testing.T) {
		payer := account("payer", 10_000_000, true, true)
		acc := account("pda", 1, false, true)
		acc.Data = []byte{1}
		assert.ErrorIs(t, InitAccount(payer, acc, 100, owner), ErrAccountAlreadyExists)

		acc = account("pda", 1, false, true)
		acc.Owner = owner
		assert.ErrorIs(t, InitAccount(payer, acc, 100, owner), ErrAccountAlreadyExists)
	})

	t.Run("payer short of the shortfall", func(t *testing.T) {
		payer := account("payer", 10, true, true)
		acc := account("pda", 1, false, true)
		assert.ErrorIs(t, InitAccount(payer, acc, 100, owner), ErrInsufficientFunds)
		assert.Empty(t, acc.Data)
		assert.Equal(t, types.SystemProgramID, acc.Owner)
	})
}

func TestTransfer(t *testing.T) {
	from := account("from", 1000, true, true)
	to := account("to", 5, false, true)

	inst := TransferInstruction{Lamports: 400}
	require.NoError(t, execute(t, inst.Encode(), from, to))
	assert.Equal(t, uint64(600), *from.Lamports)
	assert.Equal(t, uint64(405), *to.Lamports)

	inst.Lamports = 601
	assert.ErrorIs(t, execute(t, inst.Encode(), from, to), ErrInsufficientFunds)

	assert.ErrorIs(t, Transfer(account("a", 10, false, true), to, 1), ErrAccountNotSigner)
	assert.ErrorIs(t, Transfer(from, account("b", 0, false, false), 1), ErrAccountNotWritable)

	owned := account("owned", 10, true, true)
	owned.Owner = testPubkey("program")
	assert.ErrorIs(t, Transfer(owned, to, 1), ErrInvalidAccountOwner)
}

func TestTransfer_ToSelf(t *testing.T) {
	from := account("self", 100, true, true)
	require.NoError(t, Transfer(from, from, 50))
	assert.Equal(t, uint64(100), *from.Lamports)
}

func TestAssignAndAllocate(t *testing.T) {
	acc := account("acc", 1, true, true)
	require.NoError(t, execute(t, (&AllocateInstruction{Space: 16}).Encode(), acc))
	assert.Len(t, acc.Data, 16)

	owner := testPubkey("program")
	require.NoError(t, execute(t, (&AssignInstruction{Owner: owner}).Encode(), acc))
	assert.Equal(t, owner, acc.Owner)

	assert.ErrorIs(t, execute(t, (&AssignInstruction{Owner: owner}).Encode(), acc), ErrInvalidAccountOwner)
}

func TestExecute_InvalidData(t *testing.T) {
	assert.ErrorIs(t, execute(t, []byte{1, 2}), ErrInvalidInstructionData)
	assert.ErrorIs(t, execute(t, []byte{99, 0, 0, 0}), ErrInvalidInstructionData)
	assert.ErrorIs(t, execute(t, []byte{2, 0, 0, 0, 1}), ErrInvalidInstructionData)
}

func TestInstructionName(t *testing.T) {
	p := New()
	name, err := p.InstructionName((&TransferInstruction{Lamports: 1}).Encode())
	require.NoError(t, err)
	assert.Equal(t, "transfer", name)

	_, err = p.InstructionName([]byte{3, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidInstructionData)
	_, err = p.InstructionName([]byte{0})
	assert.ErrorIs(t, err, ErrInvalidInstructionData)

	assert.Equal(t, uint32(1), ErrInsufficientFunds.CustomCode())
	assert.Equal(t, "AccountAlreadyInUse", ErrAccountAlreadyExists.String())
}

func TestInstructionEncoding(t *testing.T) {
	owner := testPubkey("owner")
	data := (&CreateAccountInstruction{Lamports: 1, Space: 2, Owner: owner}).Encode()
	require.Len(t, data, 52)
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 2}, data[:13])
	assert.Equal(t, owner[:], data[20:])

	var decoded CreateAccountInstruction
	require.NoError(t, decoded.Decode(data[4:]))
	assert.Equal(t, CreateAccountInstruction{Lamports: 1, Space: 2, Owner: owner}, decoded)
	assert.ErrorIs(t, decoded.Decode(data[4:40]), ErrInvalidInstructionData)

	assert.Equal(t, []byte{8, 0, 0, 0, 16, 0, 0, 0, 0, 0, 0, 0}, (&AllocateInstruction{Space: 16}).Encode())
}
