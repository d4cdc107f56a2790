// Package poh maintains the node's Proof of History hash chain.
//
// Every committed transaction is mixed into the chain, and the resulting entry
// hash becomes a new recent blockhash. Transactions must reference one of the
// last MaxRecentBlockhashes hashes to be accepted.
//
//   - For tick entries (no transactions): hash = SHA256^numHashes(prevHash)
//   - For transaction entries: hash = SHA256(prevHash || sig_merkle_root), then iterate
package poh

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fortiblox/savefi/pkg/types"
)

const (
	// MaxRecentBlockhashes is how many entry hashes stay valid as a recent blockhash.
	MaxRecentBlockhashes = 150

	// DefaultHashesPerEntry is the hash iteration count used by NewRecorder.
	DefaultHashesPerEntry = 64
)

var (
	ErrHashMismatch     = errors.New("poh: entry hash does not follow the chain")
	ErrInvalidNumHashes = errors.New("poh: entry must have at least one hash")
	ErrInvalidEntry     = errors.New("poh: invalid entry")
)

// EntryError reports the position of the first entry that broke the chain.
type EntryError struct {
	Index int
	Err   error
}

func (e *EntryError) Error() string { return fmt.Sprintf("poh: entry %d: %v", e.Index, e.Err) }
func (e *EntryError) Unwrap() error { return e.Err }

// Recorder appends entries to the hash chain and tracks recent blockhashes.
// It is safe for concurrent use.
type Recorder struct {
	mu             sync.RWMutex
	hashesPerEntry uint64
	current        types.Hash
	height         uint64
	recent         []Entry
	recentSet      map[types.Hash]struct{}
}

// NewRecorder creates a recorder whose chain starts at genesis.
func NewRecorder(genesis types.Hash, hashesPerEntry uint64) *Recorder {
	if hashesPerEntry == 0 {
		hashesPerEntry = DefaultHashesPerEntry
	}
	r := &Recorder{
		hashesPerEntry: hashesPerEntry,
		current:        genesis,
		recentSet:      make(map[types.Hash]struct{}),
	}
	r.recentSet[genesis] = struct{}{}
	r.recent = append(r.recent, Entry{Hash: genesis})
	return r
}

// Tick appends an entry without transactions and returns its hash.
func (r *Recorder) Tick() types.Hash {
	return r.Record(nil).Hash
}

// Record mixes the given signatures into the chain and returns the new entry.
func (r *Recorder) Record(signatures []types.Signature) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	sigs := make([]types.Signature, len(signatures))
	copy(sigs, signatures)

	entry := Entry{
		NumHashes:  r.hashesPerEntry,
		Hash:       ComputeEntryHash(r.current, r.hashesPerEntry, sigs),
		Signatures: sigs,
	}
	r.push(entry)
	return entry
}

func (r *Recorder) push(entry Entry) {
	r.current = entry.Hash
	r.height++
	r.recent = append(r.recent, entry)
	r.recentSet[entry.Hash] = struct{}{}
	if len(r.recent) > MaxRecentBlockhashes {
		delete(r.recentSet, r.recent[0].Hash)
		r.recent = r.recent[1:]
	}
}

// IsRecent reports whether hash is still accepted as a recent blockhash.
func (r *Recorder) IsRecent(hash types.Hash) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.recentSet[hash]
	return ok
}

// LatestHash returns the hash of the most recent entry.
func (r *Recorder) LatestHash() types.Hash {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Height returns the number of entries recorded since genesis.
func (r *Recorder) Height() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.height
}

// Checkpoint describes the tail of the chain so it can be restored later.
type Checkpoint struct {
	Height  uint64     `json:"height"`
	Start   types.Hash `json:"start"`
	Entries []Entry    `json:"entries"`
}

// Checkpoint captures the recent window of the chain.
func (r *Recorder) Checkpoint() Checkpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp := Checkpoint{
		Height: r.height,
		Start:  r.recent[0].Hash,
	}
	cp.Entries = make([]Entry, len(r.recent)-1)
	copy(cp.Entries, r.recent[1:])
	return cp
}

// Restore replaces the recorder state with a verified checkpoint.
func (r *Recorder) Restore(cp Checkpoint) error {
	v := NewVerifier(cp.Start)
	if err := v.VerifyEntries(cp.Entries); err != nil {
		return fmt.Errorf("poh: restore checkpoint: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = v.CurrentHash()
	r.height = cp.Height
	r.recent = append([]Entry{{Hash: cp.Start}}, cp.Entries...)
	r.recentSet = make(map[types.Hash]struct{}, len(r.recent))
	for _, e := range r.recent {
		r.recentSet[e.Hash] = struct{}{}
	}
	return nil
}

// Verifier tracks and verifies a sequence of entries.
type Verifier struct {
	currentHash types.Hash
	tickCount   uint64
}

// NewVerifier creates a new PoH verifier starting from the given initial hash.
func NewVerifier(initialHash types.Hash) *Verifier {
	return &Verifier{currentHash: initialHash}
}

// VerifyEntry verifies a single PoH entry against the current state.
// On success, it advances the verifier state to this entry.
func (v *Verifier) VerifyEntry(entry *Entry) error {
	if entry == nil {
		return ErrInvalidEntry
	}
	if entry.NumHashes == 0 {
		return ErrInvalidNumHashes
	}

	expectedHash := ComputeEntryHash(v.currentHash, entry.NumHashes, entry.Signatures)
	if entry.Hash != expectedHash {
		return fmt.Errorf("%w: expected %s, got %s",
			ErrHashMismatch,
			expectedHash.String(),
			entry.Hash.String())
	}

	v.currentHash = entry.Hash
	if entry.IsTick() {
		v.tickCount++
	}
	return nil
}

// VerifyEntries verifies a sequence of PoH entries.
// On failure, the verifier state remains at the last successfully verified entry.
func (v *Verifier) VerifyEntries(entries []Entry) error {
	for i := range entries {
		if err := v.VerifyEntry(&entries[i]); err != nil {
			return &EntryError{Index: i, Err: err}
		}
	}
	return nil
}

// CurrentHash returns the hash of the last verified entry.
func (v *Verifier) CurrentHash() types.Hash {
	return v.currentHash
}

// TickCount returns the number of tick entries verified.
func (v *Verifier) TickCount() uint64 {
	return v.tickCount
}
