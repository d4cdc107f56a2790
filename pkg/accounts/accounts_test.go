package accounts

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/savefi/pkg/logging"
	"github.com/fortiblox/savefi/pkg/types"
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

func acct(lamports types.Lamports, data []byte, owner types.Pubkey) *types.Account {
	return &types.Account{Lamports: lamports, Data: data, Owner: owner}
}

func put(t *testing.T, s Store, seed string, a *types.Account) {
	t.Helper()
	require.NoError(t, s.Commit([]types.AccountRef{{Pubkey: testPubkey(seed), Account: a}}))
}

func testStore(t *testing.T, open func(t *testing.T) Store) {
	t.Run("get", func(t *testing.T) {
		s := open(t)
		a := acct(1_000_000_000, []byte("vault-data"), types.SystemProgramID)
		put(t, s, "vault", a)

		got, err := s.Get(testPubkey("vault"))
		require.NoError(t, err)
		assert.True(t, got.Equal(a))

		missing, err := s.Get(testPubkey("missing"))
		require.NoError(t, err)
		assert.Nil(t, missing)
	})

	t.Run("commit", func(t *testing.T) {
		s := open(t)
		put(t, s, "c", acct(5, nil, types.SystemProgramID))
		require.NoError(t, s.Commit([]types.AccountRef{
			{Pubkey: testPubkey("a"), Account: acct(10, []byte{1}, types.SystemProgramID)},
			{Pubkey: testPubkey("b"), Account: acct(20, nil, types.TokenProgramID)},
			{Pubkey: testPubkey("c"), Account: acct(0, nil, types.SystemProgramID)},
			{Pubkey: testPubkey("d"), Account: acct(0, nil, types.SystemProgramID)},
		}))
		assert.Equal(t, uint64(2), s.Count())

		gone, err := s.Get(testPubkey("c"))
		require.NoError(t, err)
		assert.Nil(t, gone)
		b, err := s.Get(testPubkey("b"))
		require.NoError(t, err)
		assert.Equal(t, types.TokenProgramID, b.Owner)
	})

	t.Run("nil account", func(t *testing.T) {
		s := open(t)
		err := s.Commit([]types.AccountRef{
			{Pubkey: testPubkey("a"), Account: acct(1, nil, types.SystemProgramID)},
			{Pubkey: testPubkey("b")},
		})
		assert.ErrorIs(t, err, ErrNilAccount)
		assert.Zero(t, s.Count())
	})

	t.Run("range", func(t *testing.T) {
		s := open(t)
		for _, seed := range []string{"x", "y", "z", "w"} {
			put(t, s, seed, acct(1, []byte(seed), types.SystemProgramID))
		}
		var seen []types.Pubkey
		require.NoError(t, s.Range(func(ref types.AccountRef) error {
			seen = append(seen, ref.Pubkey)
			return nil
		}))
		require.Len(t, seen, 4)
		assert.True(t, bytes.Compare(seen[0][:], seen[1][:]) < 0)
		assert.True(t, bytes.Compare(seen[2][:], seen[3][:]) < 0)

		stop := errors.New("stop")
		calls := 0
		err := s.Range(func(types.AccountRef) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})
}

func TestMemory(t *testing.T) {
	testStore(t, func(*testing.T) Store { return NewMemory() })
}

func TestBadger(t *testing.T) {
	testStore(t, func(t *testing.T) Store {
		s, err := OpenBadger(t.TempDir(), logging.Nop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBadgerReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenBadger(dir, logging.Nop())
	require.NoError(t, err)
	for _, seed := range []string{"a", "b", "c"} {
		put(t, s, seed, acct(1, []byte(seed), types.SystemProgramID))
	}
	want, err := StateHash(s)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenBadger(dir, logging.Nop())
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, uint64(3), s.Count())
	got, err := s.Get(testPubkey("b"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(got.Data))

	hash, err := StateHash(s)
	require.NoError(t, err)
	assert.Equal(t, want, hash)
}

func TestMemoryIsolation(t *testing.T) {
	s := NewMemory()
	data := []byte{1, 2, 3}
	put(t, s, "iso", acct(1, data, types.SystemProgramID))

	data[0] = 99
	got, _ := s.Get(testPubkey("iso"))
	assert.Equal(t, byte(1), got.Data[0])

	got.Data[1] = 99
	again, _ := s.Get(testPubkey("iso"))
	assert.Equal(t, byte(2), again.Data[1])
}

func TestMemoryConcurrent(t *testing.T) {
	s := NewMemory()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seed := string(rune('a' + i%26))
			put(t, s, seed, acct(types.Lamports(i+1), nil, types.SystemProgramID))
			_, _ = s.Get(testPubkey(seed))
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(26), s.Count())
}

func TestSerializeAccount(t *testing.T) {
	a := &types.Account{Lamports: 42, Data: []byte("hello"), Owner: types.TokenProgramID, Executable: true}
	data, err := SerializeAccount(a)
	require.NoError(t, err)
	// version, lamports, owner, executable, length prefix, data
	assert.Len(t, data, 1+8+32+1+1+5)

	got, err := DeserializeAccount(data)
	require.NoError(t, err)
	assert.True(t, got.Equal(a))

	_, err = SerializeAccount(nil)
	assert.Error(t, err)
}

func TestDeserializeAccountRejectsMalformed(t *testing.T) {
	data, err := SerializeAccount(acct(1, []byte("abc"), types.SystemProgramID))
	require.NoError(t, err)

	bad := map[string][]byte{
		"short":     make([]byte, 10),
		"truncated": data[:len(data)-1],
		"trailing":  append(bytes.Clone(data), 0),
		"version":   append([]byte{9}, data[1:]...),
	}
	for name, b := range bad {
		_, err := DeserializeAccount(b)
		assert.ErrorIs(t, err, ErrInvalidAccountData, name)
	}
}

func TestComputeAccountsHash(t *testing.T) {
	refs := []types.AccountRef{
		{Pubkey: testPubkey("1"), Account: acct(1, nil, types.SystemProgramID)},
		{Pubkey: testPubkey("2"), Account: acct(2, nil, types.SystemProgramID)},
		{Pubkey: testPubkey("3"), Account: acct(3, nil, types.SystemProgramID)},
	}
	assert.Equal(t, ComputeAccountsHash(refs), ComputeAccountsHash([]types.AccountRef{refs[2], refs[0], refs[1]}))
	assert.Equal(t, types.ZeroHash, ComputeAccountsHash(nil))

	pk := testPubkey("acct")
	one := ComputeAccountsHash([]types.AccountRef{{Pubkey: pk, Account: acct(1, []byte{1}, types.SystemProgramID)}})
	two := ComputeAccountsHash([]types.AccountRef{{Pubkey: pk, Account: acct(2, []byte{1}, types.SystemProgramID)}})
	assert.NotEqual(t, one, two)
	assert.Equal(t, LeafHash(pk, acct(1, []byte{1}, types.SystemProgramID)), one)
}

func TestRootFanout(t *testing.T) {
	leaves := make([]types.Hash, 17)
	for i := range leaves {
		leaves[i] = types.SHA256([]byte{byte(i)})
	}
	var concat []byte
	for _, l := range leaves[:16] {
		concat = append(concat, l[:]...)
	}
	first := types.SHA256(concat)
	want := types.SHA256(append(first[:], leaves[16][:]...))
	assert.Equal(t, want, Root(leaves))
	assert.Equal(t, leaves[3], Root(leaves[3:4]))
}

func TestStateHashMatchesAccountsHash(t *testing.T) {
	s := NewMemory()
	var refs []types.AccountRef
	for _, seed := range []string{"p", "q", "r"} {
		a := acct(7, []byte(seed), types.SystemProgramID)
		put(t, s, seed, a)
		refs = append(refs, types.AccountRef{Pubkey: testPubkey(seed), Account: a})
	}
	got, err := StateHash(s)
	require.NoError(t, err)
	assert.Equal(t, ComputeAccountsHash(refs), got)
}
