package poh

import (
	"crypto/sha256"

	"github.com/fortiblox/savefi/pkg/types"
)

// Entry is one link of the hash chain. Ticks carry no signatures.
type Entry struct {
	NumHashes  uint64            `json:"numHashes"`
	Hash       types.Hash        `json:"hash"`
	Signatures []types.Signature `json:"signatures,omitempty"`
}

func (e *Entry) IsTick() bool { return len(e.Signatures) == 0 }

// ComputeEntryHash advances prev by numHashes steps. For an entry with
// signatures the first step mixes in the signatures' binary Merkle root:
// sha256(prev | root). Every other step is sha256 of the running hash.
func ComputeEntryHash(prev types.Hash, numHashes uint64, signatures []types.Signature) types.Hash {
	h := prev
	if numHashes == 0 {
		return h
	}
	if len(signatures) > 0 {
		root := signatureRoot(signatures)
		h = sha256.Sum256(append(h[:], root[:]...))
		numHashes--
	}
	for ; numHashes > 0; numHashes-- {
		h = sha256.Sum256(h[:])
	}
	return h
}

func signatureRoot(signatures []types.Signature) types.Hash {
	leaves := make([]types.Hash, len(signatures))
	for i := range signatures {
		leaves[i] = sha256.Sum256(signatures[i][:])
	}
	return pairRoot(leaves)
}

// pairRoot folds hashes pairwise into a binary Merkle root. An odd node at
// the end of a level moves up unchanged.
func pairRoot(level []types.Hash) types.Hash {
	if len(level) == 0 {
		return types.ZeroHash
	}
	var buf [64]byte
	for len(level) > 1 {
		next := make([]types.Hash, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			copy(buf[:], level[i][:])
			copy(buf[32:], level[i+1][:])
			next = append(next, sha256.Sum256(buf[:]))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}
