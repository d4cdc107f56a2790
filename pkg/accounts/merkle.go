package accounts

import (
	"bytes"
	"crypto/sha256"
	"slices"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/savefi/pkg/types"
)

// fanout is the number of children hashed into each interior node.
const fanout = 16

// LeafHash hashes one account as
// sha256(lamports u64 LE | data | executable u8 | owner | pubkey).
func LeafHash(pubkey types.Pubkey, account *types.Account) types.Hash {
	h := sha256.New()
	enc := bin.NewBinEncoder(h)
	// hash.Hash writes never fail.
	_ = enc.WriteUint64(uint64(account.Lamports), bin.LE)
	_ = enc.WriteBytes(account.Data, false)
	_ = enc.WriteBool(account.Executable)
	_ = enc.WriteBytes(account.Owner[:], false)
	_ = enc.WriteBytes(pubkey[:], false)
	return types.Hash(h.Sum(nil))
}

// Root folds leaves into a 16-ary Merkle root. A node with a single child
// takes the child's hash unchanged. No leaves give the zero hash.
func Root(leaves []types.Hash) types.Hash {
	if len(leaves) == 0 {
		return types.ZeroHash
	}
	level := leaves
	for len(level) > 1 {
		next := make([]types.Hash, 0, (len(level)+fanout-1)/fanout)
		for chunk := range slices.Chunk(level, fanout) {
			next = append(next, node(chunk))
		}
		level = next
	}
	return level[0]
}

func node(children []types.Hash) types.Hash {
	if len(children) == 1 {
		return children[0]
	}
	h := sha256.New()
	for _, c := range children {
		h.Write(c[:])
	}
	return types.Hash(h.Sum(nil))
}

// ComputeAccountsHash is the Merkle root of refs taken in pubkey order, so
// the input order does not matter.
func ComputeAccountsHash(refs []types.AccountRef) types.Hash {
	sorted := slices.SortedFunc(slices.Values(refs), func(a, b types.AccountRef) int {
		return bytes.Compare(a.Pubkey[:], b.Pubkey[:])
	})
	leaves := make([]types.Hash, len(sorted))
	for i, ref := range sorted {
		leaves[i] = LeafHash(ref.Pubkey, ref.Account)
	}
	return Root(leaves)
}

// StateHash is the Merkle root over every account in s.
func StateHash(s Store) (types.Hash, error) {
	var leaves []types.Hash
	err := s.Range(func(ref types.AccountRef) error {
		leaves = append(leaves, LeafHash(ref.Pubkey, ref.Account))
		return nil
	})
	if err != nil {
		return types.ZeroHash, err
	}
	return Root(leaves), nil
}
