package snapshot

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/savefi/pkg/accounts"
	"github.com/fortiblox/savefi/pkg/poh"
	"github.com/fortiblox/savefi/pkg/types"
)

// Contents is a decoded and verified snapshot.
type Contents struct {
	Manifest *Manifest
	Chain    poh.Checkpoint
	Accounts []types.AccountRef
}

// Read decodes a snapshot from r and verifies the accounts against the
// manifest's count, lamport total and accounts hash.
func Read(r io.Reader) (*Contents, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	defer dec.Close()

	var out Contents
	var haveManifest, haveChain, haveAccounts bool
	tr := tar.NewReader(dec)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}

		switch hdr.Name {
		case manifestFile:
			var m Manifest
			if err := json.NewDecoder(tr).Decode(&m); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
			}
			if m.Version != Version {
				return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidManifest, m.Version)
			}
			out.Manifest = &m
			haveManifest = true
		case chainFile:
			if err := json.NewDecoder(tr).Decode(&out.Chain); err != nil {
				return nil, fmt.Errorf("%w: chain checkpoint: %v", ErrInvalidArchive, err)
			}
			haveChain = true
		case accountsFile:
			for {
				pubkey, account, err := readRecord(tr)
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return nil, err
				}
				out.Accounts = append(out.Accounts, types.AccountRef{Pubkey: pubkey, Account: account})
			}
			haveAccounts = true
		default:
			return nil, fmt.Errorf("%w: unexpected member %q", ErrInvalidArchive, hdr.Name)
		}
	}

	if !haveManifest || !haveChain || !haveAccounts {
		return nil, fmt.Errorf("%w: missing members", ErrInvalidArchive)
	}
	if err := verify(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func verify(c *Contents) error {
	m := c.Manifest
	if uint64(len(c.Accounts)) != m.AccountsCount {
		return fmt.Errorf("%w: %d accounts, manifest says %d", ErrInvalidManifest, len(c.Accounts), m.AccountsCount)
	}
	var lamports uint64
	for _, ref := range c.Accounts {
		lamports += uint64(ref.Account.Lamports)
	}
	if lamports != m.LamportsTotal {
		return fmt.Errorf("%w: %d lamports, manifest says %d", ErrInvalidManifest, lamports, m.LamportsTotal)
	}
	if got := accounts.ComputeAccountsHash(c.Accounts); got != m.AccountsHash {
		return fmt.Errorf("%w: accounts hash %s, manifest says %s", ErrHashMismatch, got, m.AccountsHash)
	}
	if c.Chain.Height != m.Height {
		return fmt.Errorf("%w: chain height %d, manifest says %d", ErrInvalidManifest, c.Chain.Height, m.Height)
	}
	return nil
}

// ReadFile reads and verifies the snapshot at path.
func ReadFile(path string) (*Contents, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Restore writes the snapshot's accounts into db in one atomic commit and
// returns a hash chain resumed from its checkpoint. db should be empty.
func (c *Contents) Restore(db accounts.Store) (*poh.Recorder, error) {
	chain := poh.NewRecorder(c.Chain.Start, 0)
	if err := chain.Restore(c.Chain); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	if chain.LatestHash() != c.Manifest.Blockhash {
		return nil, fmt.Errorf("%w: chain ends at %s, manifest says %s",
			ErrHashMismatch, chain.LatestHash(), c.Manifest.Blockhash)
	}
	if err := db.Commit(c.Accounts); err != nil {
		return nil, fmt.Errorf("snapshot: commit accounts: %w", err)
	}
	return chain, nil
}

// Load reads the snapshot at path and restores it into db.
func Load(path string, db accounts.Store) (*Manifest, *poh.Recorder, error) {
	contents, err := ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	chain, err := contents.Restore(db)
	if err != nil {
		return nil, nil, err
	}
	return contents.Manifest, chain, nil
}
