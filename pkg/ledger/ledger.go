// Package ledger runs transactions against the account store: it verifies
// signatures and blockhashes, executes instructions through the program
// registry, and commits the resulting account changes atomically.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fortiblox/savefi/pkg/accounts"
	"github.com/fortiblox/savefi/pkg/crypto"
	"github.com/fortiblox/savefi/pkg/history"
	"github.com/fortiblox/savefi/pkg/logging"
	"github.com/fortiblox/savefi/pkg/metrics"
	"github.com/fortiblox/savefi/pkg/poh"
	"github.com/fortiblox/savefi/pkg/types"
)

// GenesisHash seeds the hash chain of a fresh ledger.
var GenesisHash = types.SHA256([]byte("savefi genesis"))

// Status is the outcome of a processed transaction.
type Status struct {
	Height uint64
	Err    error
}

// Ledger is a single-node ledger. Transactions execute one at a time.
type Ledger struct {
	mu sync.Mutex

	db       accounts.Store
	registry *ProgramRegistry
	chain    *poh.Recorder
	clock    Clock
	history  history.Recorder
	metrics  *metrics.Metrics
	log      logging.Logger

	computeUnits  uint64
	allowAirdrops bool

	// statuses holds the signatures whose blockhash may still be recent.
	statuses map[types.Signature]statusEntry
}

type statusEntry struct {
	Status
	blockhash types.Hash
}

// Option configures a Ledger.
type Option func(*Ledger)

func WithClock(c Clock) Option              { return func(l *Ledger) { l.clock = c } }
func WithHistory(h history.Recorder) Option { return func(l *Ledger) { l.history = h } }
func WithMetrics(m *metrics.Metrics) Option { return func(l *Ledger) { l.metrics = m } }
func WithLogger(log logging.Logger) Option  { return func(l *Ledger) { l.log = log } }
func WithChain(chain *poh.Recorder) Option  { return func(l *Ledger) { l.chain = chain } }
func WithComputeUnits(limit uint64) Option  { return func(l *Ledger) { l.computeUnits = limit } }
func WithAirdrops(enabled bool) Option      { return func(l *Ledger) { l.allowAirdrops = enabled } }

// New creates a ledger over db executing the programs in registry.
func New(db accounts.Store, registry *ProgramRegistry, opts ...Option) *Ledger {
	l := &Ledger{
		db:           db,
		registry:     registry,
		clock:        SystemClock{},
		history:      history.Nop{},
		metrics:      metrics.NewMetrics(),
		log:          logging.Nop(),
		computeUnits: uint64(types.MaxComputeUnitsPerTransaction),
		statuses:     make(map[types.Signature]statusEntry),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.chain == nil {
		l.chain = poh.NewRecorder(GenesisHash, 0)
	}
	return l
}

// Accounts returns the underlying account store.
func (l *Ledger) Accounts() accounts.Store { return l.db }

// Chain returns the hash chain.
func (l *Ledger) Chain() *poh.Recorder { return l.chain }

// Metrics returns the ledger metrics.
func (l *Ledger) Metrics() *metrics.Metrics { return l.metrics }

// History returns the transaction history recorder.
func (l *Ledger) History() history.Recorder { return l.history }

// Registry returns the program registry.
func (l *Ledger) Registry() *ProgramRegistry { return l.registry }

// Now returns the ledger clock's current Unix time.
func (l *Ledger) Now() int64 { return l.clock.Now().Unix() }

// LatestBlockhash returns the newest recent blockhash and the chain height.
func (l *Ledger) LatestBlockhash() (types.Hash, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chain.LatestHash(), l.chain.Height()
}

// GetAccount returns the stored account or nil when it does not exist.
func (l *Ledger) GetAccount(pubkey types.Pubkey) (*types.Account, error) {
	return l.db.Get(pubkey)
}

// GetBalance returns the lamports held by pubkey.
func (l *Ledger) GetBalance(pubkey types.Pubkey) (uint64, error) {
	acc, err := l.db.Get(pubkey)
	if err != nil || acc == nil {
		return 0, err
	}
	return uint64(acc.Lamports), nil
}

// SignatureStatus returns the status of a recently processed transaction.
func (l *Ledger) SignatureStatus(sig types.Signature) (Status, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.statuses[sig]
	return st.Status, ok
}

// View runs fn with exclusive access to the store and chain, so their state
// is consistent for the duration of fn.
func (l *Ledger) View(fn func(db accounts.Store, chain *poh.Recorder) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(l.db, l.chain)
}

// Airdrop credits lamports to pubkey out of thin air. It is only available
// when the ledger was built WithAirdrops(true).
func (l *Ledger) Airdrop(ctx context.Context, pubkey types.Pubkey, lamports uint64) (types.Signature, error) {
	if !l.allowAirdrops {
		return types.Signature{}, ErrAirdropDisabled
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	acc, err := l.db.Get(pubkey)
	if err != nil {
		return types.Signature{}, err
	}
	if acc == nil {
		acc = types.NewAccount(0, types.SystemProgramID)
	}
	if uint64(acc.Lamports)+lamports < uint64(acc.Lamports) {
		return types.Signature{}, fmt.Errorf("ledger: airdrop overflows balance of %s", pubkey)
	}
	acc.Lamports += types.Lamports(lamports)

	now := l.clock.Now()
	sig := airdropSignature(pubkey, lamports, l.chain.Height(), now)
	if err := l.db.Commit([]types.AccountRef{{Pubkey: pubkey, Account: acc}}); err != nil {
		return types.Signature{}, fmt.Errorf("ledger: commit airdrop: %w", err)
	}
	entry := l.chain.Record([]types.Signature{sig})
	l.remember(sig, entry.Hash, Status{Height: l.chain.Height()})
	l.metrics.Airdrops.Inc()

	rec := &history.Record{
		Signature:     sig,
		Height:        l.chain.Height(),
		Blockhash:     entry.Hash,
		UnixTimestamp: now.Unix(),
		Success:       true,
		Instructions:  []string{"airdrop"},
		Accounts:      []types.Pubkey{pubkey},
	}
	if err := l.history.Record(ctx, rec); err != nil {
		l.log.Warn(ctx, "failed to record airdrop", "signature", sig, "error", err)
	}
	l.log.Info(ctx, "airdrop", "to", pubkey, "lamports", lamports)
	return sig, nil
}

func airdropSignature(pubkey types.Pubkey, lamports, height uint64, now time.Time) types.Signature {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], lamports)
	binary.LittleEndian.PutUint64(buf[8:], height)
	binary.LittleEndian.PutUint64(buf[16:], uint64(now.UnixNano()))
	first := sha256.Sum256(append(pubkey[:], buf[:]...))
	second := sha256.Sum256(first[:])

	var sig types.Signature
	copy(sig[:32], first[:])
	copy(sig[32:], second[:])
	return sig
}

// ProcessTransaction verifies and executes tx. A transaction rejected before
// execution returns one of the rejection errors and leaves no trace. A
// transaction that fails during execution writes no account changes,
// returns an *InstructionError, and is still recorded so it cannot be
// replayed.
func (l *Ledger) ProcessTransaction(ctx context.Context, tx *types.Transaction) (*types.TransactionResult, error) {
	start := time.Now()

	if tx == nil || len(tx.Message.Instructions) == 0 {
		return nil, ErrNoInstructions
	}
	if err := crypto.VerifyTransaction(tx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureVerification, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sig := tx.ID()
	if !l.chain.IsRecent(tx.Message.RecentBlockhash) {
		return nil, fmt.Errorf("%w: %s", ErrBlockhashNotFound, tx.Message.RecentBlockhash)
	}
	if _, seen := l.statuses[sig]; seen {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyProcessed, sig)
	}

	now := l.clock.Now().Unix()
	result, refs, names, execErr := l.execute(tx, now)
	result.Signature = sig
	result.UnixTimestamp = now

	if execErr == nil {
		if err := l.db.Commit(refs); err != nil {
			return nil, fmt.Errorf("ledger: commit %s: %w", sig, err)
		}
	}

	entry := l.chain.Record(tx.Signatures)
	result.Blockhash = entry.Hash
	result.Success = execErr == nil
	result.Error = execErr
	l.remember(sig, tx.Message.RecentBlockhash, Status{Height: l.chain.Height(), Err: execErr})
	l.prune()

	l.metrics.RecordTransaction(result.Success, len(tx.Signatures), time.Since(start))
	l.record(ctx, tx, result, names, l.chain.Height())

	if execErr != nil {
		l.log.Info(ctx, "transaction failed", "signature", sig, "error", execErr)
		return result, execErr
	}
	l.log.Debug(ctx, "transaction committed", "signature", sig, "accounts", len(refs))
	return result, nil
}

func (l *Ledger) remember(sig types.Signature, blockhash types.Hash, st Status) {
	l.statuses[sig] = statusEntry{Status: st, blockhash: blockhash}
}

// prune forgets signatures whose blockhash has expired; such transactions
// would be rejected by the blockhash check anyway.
func (l *Ledger) prune() {
	if len(l.statuses) < 4*poh.MaxRecentBlockhashes {
		return
	}
	for sig, st := range l.statuses {
		if !l.chain.IsRecent(st.blockhash) {
			delete(l.statuses, sig)
		}
	}
}

func (l *Ledger) record(ctx context.Context, tx *types.Transaction, result *types.TransactionResult, names []string, height uint64) {
	rec := &history.Record{
		Signature:     result.Signature,
		Height:        height,
		Blockhash:     result.Blockhash,
		UnixTimestamp: result.UnixTimestamp,
		Success:       result.Success,
		Instructions:  names,
		Accounts:      tx.Message.AccountKeys,
		Logs:          result.Logs,
		ReturnData:    result.ReturnData,
	}
	if result.Error != nil {
		rec.Error = result.Error.Error()
		var ixErr *InstructionError
		if errors.As(result.Error, &ixErr) {
			if code, ok := ixErr.CustomCode(); ok {
				rec.ErrorCode = &code
			}
		}
	}
	if err := l.history.Record(ctx, rec); err != nil {
		l.log.Warn(ctx, "failed to record transaction", "signature", result.Signature, "error", err)
	}
}
