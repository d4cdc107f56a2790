package token

import (
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

func tokenOwned(seed string, size int, writable bool) *syscall.AccountInfo {
	lamports := uint64(types.RentExemptMinimum(uint64(size)))
	return &syscall.AccountInfo{
		Pubkey:     testPubkey(seed),
		Lamports:   &lamports,
		Data:       make([]byte, size),
		Owner:      types.TokenProgramID,
		IsWritable: writable,
	}
}

func signer(seed string) *syscall.AccountInfo {
	var lamports uint64
	return &syscall.AccountInfo{
		Pubkey:   testPubkey(seed),
		Lamports: &lamports,
		Owner:    types.SystemProgramID,
		IsSigner: true,
	}
}

func run(t *testing.T, data []byte, accs ...*syscall.AccountInfo) error {
	t.Helper()
	ctx := syscall.NewExecutionContext(types.TokenProgramID, accs, data, 200_000)
	return New().Execute(ctx, &types.Instruction{ProgramID: types.TokenProgramID, Data: data})
}

// setup creates an initialized 9-decimal mint and one token account owned by "holder".
func setup(t *testing.T) (mint, holderAcc, authority *syscall.AccountInfo) {
	t.Helper()
	mint = tokenOwned("mint", MintSize, true)
	holderAcc = tokenOwned("holder-token", TokenAccountSize, true)
	authority = signer("authority")

	initMint := InitializeMintInstruction{Decimals: 9, MintAuthority: authority.Pubkey}
	require.NoError(t, run(t, initMint.Encode(), mint))
	require.NoError(t, run(t, (&InitializeAccountInstruction{}).Encode(), holderAcc, mint, signer("holder")))
	return mint, holderAcc, authority
}

func TestInitializeMint(t *testing.T) {
	mint, _, authority := setup(t)
	m, err := DeserializeMint(mint.Data)
	require.NoError(t, err)
	assert.True(t, m.IsInitialized)
	assert.Equal(t, uint8(9), m.Decimals)
	assert.Equal(t, COption{IsSome: true, Value: authority.Pubkey}, m.MintAuthority)
	assert.False(t, m.FreezeAuthority.IsSome)

	initMint := InitializeMintInstruction{Decimals: 9, MintAuthority: authority.Pubkey}
	assert.ErrorIs(t, run(t, initMint.Encode(), mint), ErrAlreadyInitialized)
}

func TestInitializeMint_Errors(t *testing.T) {
	small := tokenOwned("small", MintSize-1, true)
	initMint := InitializeMintInstruction{Decimals: 9, MintAuthority: testPubkey("a")}
	assert.ErrorIs(t, run(t, initMint.Encode(), small), ErrInvalidAccountData)

	foreign := tokenOwned("foreign", MintSize, true)
	foreign.Owner = types.SystemProgramID
	assert.ErrorIs(t, run(t, initMint.Encode(), foreign), ErrInvalidAccountOwner)

	assert.ErrorIs(t, run(t, initMint.Encode()[:10], tokenOwned("m", MintSize, true)), ErrInvalidInstructionData)
}

func TestInitializeAccount(t *testing.T) {
	mint, holderAcc, _ := setup(t)
	acc, err := LoadTokenAccount(holderAcc)
	require.NoError(t, err)
	assert.Equal(t, mint.Pubkey, acc.Mint)
	assert.Equal(t, testPubkey("holder"), acc.Owner)
	assert.Zero(t, acc.Amount)

	err = InitializeAccount(holderAcc, mint, testPubkey("holder"))
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	uninitMint := tokenOwned("uninit-mint", MintSize, true)
	err = InitializeAccount(tokenOwned("fresh", TokenAccountSize, true), uninitMint, testPubkey("x"))
	assert.ErrorIs(t, err, ErrInvalidMint)
}

func TestMintToAndBurn(t *testing.T) {
	mint, holderAcc, authority := setup(t)

	require.NoError(t, run(t, (&MintToInstruction{Amount: 500}).Encode(), mint, holderAcc, authority))
	m, _ := DeserializeMint(mint.Data)
	a, _ := DeserializeTokenAccount(holderAcc.Data)
	assert.Equal(t, uint64(500), m.Supply)
	assert.Equal(t, uint64(500), a.Amount)

	err := MintTo(mint, holderAcc, testPubkey("impostor"), 1)
	assert.ErrorIs(t, err, ErrAuthorityMismatch)

	holder := signer("holder")
	require.NoError(t, run(t, (&BurnInstruction{Amount: 200}).Encode(), holderAcc, mint, holder))
	m, _ = DeserializeMint(mint.Data)
	a, _ = DeserializeTokenAccount(holderAcc.Data)
	assert.Equal(t, uint64(300), m.Supply)
	assert.Equal(t, uint64(300), a.Amount)

	assert.ErrorIs(t, Burn(holderAcc, mint, holder.Pubkey, 301), ErrInsufficientFunds)
	assert.ErrorIs(t, Burn(holderAcc, mint, authority.Pubkey, 1), ErrOwnerMismatch)
}

func TestMintTo_RequiresSigner(t *testing.T) {
	mint, holderAcc, authority := setup(t)
	authority.IsSigner = false
	err := run(t, (&MintToInstruction{Amount: 1}).Encode(), mint, holderAcc, authority)
	assert.ErrorIs(t, err, ErrAccountNotSigner)
}

func TestMintTo_Overflow(t *testing.T) {
	mint, holderAcc, authority := setup(t)
	require.NoError(t, MintTo(mint, holderAcc, authority.Pubkey, ^uint64(0)))
	assert.ErrorIs(t, MintTo(mint, holderAcc, authority.Pubkey, 1), ErrOverflow)
}

func TestTransfer(t *testing.T) {
	mint, holderAcc, authority := setup(t)
	other := tokenOwned("other-token", TokenAccountSize, true)
	require.NoError(t, InitializeAccount(other, mint, testPubkey("other")))
	require.NoError(t, MintTo(mint, holderAcc, authority.Pubkey, 100))

	require.NoError(t, run(t, (&TransferInstruction{Amount: 40}).Encode(), holderAcc, other, signer("holder")))
	src, _ := DeserializeTokenAccount(holderAcc.Data)
	dst, _ := DeserializeTokenAccount(other.Data)
	assert.Equal(t, uint64(60), src.Amount)
	assert.Equal(t, uint64(40), dst.Amount)

	err := run(t, (&TransferInstruction{Amount: 1}).Encode(), holderAcc, other, signer("other"))
	assert.ErrorIs(t, err, ErrOwnerMismatch)
}

func TestStateRoundTrip(t *testing.T) {
	freeze := testPubkey("freeze")
	mintAuth := testPubkey("auth")
	m := NewMint(6, &mintAuth, &freeze)
	m.Supply = 42
	decoded, err := DeserializeMint(m.Serialize())
	require.NoError(t, err)
	assert.Equal(t, m, decoded)

	acc := NewTokenAccount(testPubkey("mint"), testPubkey("owner"))
	acc.Amount = 7
	acc.IsNative = COptionU64{IsSome: true, Value: 2039280}
	decodedAcc, err := DeserializeTokenAccount(acc.Serialize())
	require.NoError(t, err)
	assert.Equal(t, acc, decodedAcc)

	_, err = DeserializeTokenAccount(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidAccountData)
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, uint32(1), ErrInsufficientFunds.CustomCode())
	assert.Equal(t, uint32(17), ErrAccountFrozen.CustomCode())
	assert.Equal(t, "OwnerMismatch", ErrAuthorityMismatch.String())
	assert.NotErrorIs(t, ErrAuthorityMismatch, ErrOwnerMismatch)

	var coded *Error
	assert.False(t, errors.As(ErrAccountNotSigner, &coded))
}

func TestSerializedLayout(t *testing.T) {
	auth := testPubkey("auth")
	data := NewMint(9, &auth, nil).Serialize()
	require.Len(t, data, MintSize)
	assert.Equal(t, []byte{1, 0, 0, 0}, data[:4])
	assert.Equal(t, auth[:], data[4:36])
	assert.Equal(t, byte(9), data[44])
	assert.Equal(t, byte(1), data[45])
	assert.Equal(t, make([]byte, 36), data[46:])

	acc := NewTokenAccount(testPubkey("mint"), testPubkey("owner"))
	acc.Amount = 5
	data = acc.Serialize()
	require.Len(t, data, TokenAccountSize)
	assert.Equal(t, byte(5), data[64])
	assert.Equal(t, AccountStateInitialized, data[108])

	// Trailing bytes are ignored.
	decoded, err := DeserializeTokenAccount(append(data, 0xff))
	require.NoError(t, err)
	assert.Equal(t, acc, decoded)
}

func TestInstructionName(t *testing.T) {
	p := New()
	name, err := p.InstructionName((&MintToInstruction{Amount: 1}).Encode())
	require.NoError(t, err)
	assert.Equal(t, "mint_to", name)

	_, err = p.InstructionName([]byte{2})
	assert.ErrorIs(t, err, ErrInvalidInstructionData)
	_, err = p.InstructionName(nil)
	assert.ErrorIs(t, err, ErrInvalidInstructionData)
	assert.Equal(t, types.TokenProgramID, p.GetProgramID())
}

func TestInitializeMintEncoding(t *testing.T) {
	authority := testPubkey("authority")
	plain := (&InitializeMintInstruction{Decimals: 6, MintAuthority: authority}).Encode()
	require.Len(t, plain, 35)
	assert.Equal(t, []byte{InstructionInitializeMint, 6}, plain[:2])
	assert.Equal(t, byte(0), plain[34])

	freeze := testPubkey("freeze")
	full := (&InitializeMintInstruction{Decimals: 6, MintAuthority: authority, FreezeAuthority: &freeze}).Encode()
	require.Len(t, full, 67)

	var decoded InitializeMintInstruction
	require.NoError(t, decoded.Decode(full[1:]))
	assert.Equal(t, uint8(6), decoded.Decimals)
	assert.Equal(t, authority, decoded.MintAuthority)
	require.NotNil(t, decoded.FreezeAuthority)
	assert.Equal(t, freeze, *decoded.FreezeAuthority)

	assert.Equal(t, []byte{InstructionInitializeAccount}, (&InitializeAccountInstruction{}).Encode())
	assert.Equal(t, []byte{InstructionBurn, 1, 0, 0, 0, 0, 0, 0, 0}, (&BurnInstruction{Amount: 1}).Encode())
}
