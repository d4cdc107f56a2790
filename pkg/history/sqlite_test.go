package history

import (
	"context"
	"crypto/sha256"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/savefi/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

func testSignature(seed string) types.Signature {
	var sig types.Signature
	h := sha256.Sum256([]byte(seed))
	copy(sig[:], h[:])
	copy(sig[32:], h[:])
	return sig
}

func openTest(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := OpenSQLite(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRecordAndGet(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()
	code := uint32(6005)
	rec := &Record{
		Signature:     testSignature("tx1"),
		Height:        3,
		Blockhash:     types.SHA256([]byte("bh")),
		UnixTimestamp: 1_700_000_000,
		Success:       false,
		Error:         "instruction 0 failed: VaultLocked",
		ErrorCode:     &code,
		Instructions:  []string{"withdraw"},
		Accounts:      []types.Pubkey{testPubkey("owner"), testPubkey("vault")},
		Logs:          []string{"Program log: locked"},
	}
	require.NoError(t, r.Record(ctx, rec))

	got, err := r.Get(ctx, rec.Signature)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	assert.Error(t, r.Record(ctx, rec), "duplicate signature")

	_, err = r.Get(ctx, testSignature("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestByAccount(t *testing.T) {
	r := openTest(t)
	ctx := context.Background()
	owner, other := testPubkey("owner"), testPubkey("other")

	for i, seed := range []string{"a", "b", "c"} {
		require.NoError(t, r.Record(ctx, &Record{
			Signature:    testSignature(seed),
			Height:       uint64(i + 1),
			Success:      true,
			Instructions: []string{"process_trade"},
			Accounts:     []types.Pubkey{owner},
			ReturnData:   []byte{byte(i)},
		}))
	}
	require.NoError(t, r.Record(ctx, &Record{
		Signature: testSignature("d"),
		Success:   true,
		Accounts:  []types.Pubkey{other},
	}))

	recs, err := r.ByAccount(ctx, owner, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, testSignature("c"), recs[0].Signature)
	assert.Equal(t, testSignature("b"), recs[1].Signature)
	assert.Nil(t, recs[0].ErrorCode)
	assert.Equal(t, []byte{2}, recs[0].ReturnData)

	recs, err = r.ByAccount(ctx, testPubkey("nobody"), 0)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestOpenSQLite_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	r, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, r.Record(ctx, &Record{Signature: testSignature("x"), Success: true}))
	require.NoError(t, r.Close())

	r, err = OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer r.Close()
	got, err := r.Get(ctx, testSignature("x"))
	require.NoError(t, err)
	assert.True(t, got.Success)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	require.NoError(t, r.Record(context.Background(), &Record{}))
	_, err := r.Get(context.Background(), testSignature("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}
