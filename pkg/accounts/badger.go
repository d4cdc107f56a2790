package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/fortiblox/savefi/pkg/logging"
	"github.com/fortiblox/savefi/pkg/types"
)

// keyPrefix namespaces account entries inside the Badger directory.
var keyPrefix = []byte("acct/")

func accountKey(pk types.Pubkey) []byte {
	return append(append(make([]byte, 0, len(keyPrefix)+len(pk)), keyPrefix...), pk[:]...)
}

// Badger persists accounts in a Badger directory, one entry per account
// encoded with SerializeAccount.
type Badger struct {
	db    *badger.DB
	count atomic.Uint64
}

var _ Store = (*Badger)(nil)

// OpenBadger opens or creates the store in dir. Badger's own messages go to
// log; informational ones are demoted to debug.
func OpenBadger(dir string, log logging.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{log})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger %s: %w", dir, err)
	}
	s := &Badger{db: db}

	var n uint64
	err = s.scan(false, func([]byte, *badger.Item) error {
		n++
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	s.count.Store(n)
	return s, nil
}

func (s *Badger) Get(pubkey types.Pubkey) (*types.Account, error) {
	var acc *types.Account
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(accountKey(pubkey))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		case err != nil:
			return err
		}
		return item.Value(func(val []byte) (err error) {
			acc, err = DeserializeAccount(val)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", pubkey, err)
	}
	return acc, nil
}

// Commit applies refs in one read-write transaction. The count is adjusted
// only after the transaction commits.
func (s *Badger) Commit(refs []types.AccountRef) error {
	if err := checkRefs(refs); err != nil {
		return err
	}
	values := make([][]byte, len(refs))
	for i, ref := range refs {
		if ref.Account.IsEmpty() {
			continue
		}
		v, err := SerializeAccount(ref.Account)
		if err != nil {
			return fmt.Errorf("account %s: %w", ref.Pubkey, err)
		}
		values[i] = v
	}

	var delta int64
	err := s.db.Update(func(txn *badger.Txn) error {
		delta = 0
		for i, ref := range refs {
			key := accountKey(ref.Pubkey)
			_, err := txn.Get(key)
			if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			existed := err == nil

			if values[i] == nil {
				if existed {
					if err := txn.Delete(key); err != nil {
						return err
					}
					delta--
				}
				continue
			}
			if err := txn.Set(key, values[i]); err != nil {
				return err
			}
			if !existed {
				delta++
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit %d accounts: %w", len(refs), err)
	}
	s.count.Add(uint64(delta))
	return nil
}

// Range iterates inside a single read transaction. Badger orders keys
// bytewise, which is pubkey order under the shared prefix.
func (s *Badger) Range(fn func(ref types.AccountRef) error) error {
	return s.scan(true, func(pk []byte, item *badger.Item) error {
		ref := types.AccountRef{Pubkey: types.Pubkey(pk)}
		err := item.Value(func(val []byte) (err error) {
			ref.Account, err = DeserializeAccount(val)
			return err
		})
		if err != nil {
			return fmt.Errorf("account %s: %w", ref.Pubkey, err)
		}
		return fn(ref)
	})
}

func (s *Badger) scan(values bool, fn func(pk []byte, item *badger.Item) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		opts.PrefetchValues = values
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			if err := fn(item.Key()[len(keyPrefix):], item); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Badger) Count() uint64 { return s.count.Load() }

func (s *Badger) Close() error { return s.db.Close() }

// badgerLogger forwards Badger's printf-style logging.
type badgerLogger struct {
	log logging.Logger
}

func (l badgerLogger) emit(level func(context.Context, string, ...any), format string, args []any) {
	level(context.Background(), strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "badger")
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.emit(l.log.Error, format, args) }
func (l badgerLogger) Warningf(format string, args ...any) { l.emit(l.log.Warn, format, args) }
func (l badgerLogger) Infof(format string, args ...any)    { l.emit(l.log.Debug, format, args) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.emit(l.log.Debug, format, args) }
