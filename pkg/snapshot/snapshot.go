// Package snapshot exports and restores ledger state. A snapshot is a
// zstd-compressed tar archive holding a manifest, the hash chain checkpoint
// and every stored account.
package snapshot

import (
	"archive/tar"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/fortiblox/savefi/pkg/accounts"
	"github.com/fortiblox/savefi/pkg/poh"
	"github.com/fortiblox/savefi/pkg/types"
)

var (
	// ErrInvalidManifest is returned when the manifest is malformed.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrInvalidArchive is returned when the archive is malformed.
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrHashMismatch is returned when the accounts do not hash to the
	// manifest's accounts hash.
	ErrHashMismatch = errors.New("hash mismatch")
)

// Version is the archive layout version written by Write.
const Version uint32 = 1

// Archive member names, in the order Write emits them.
const (
	manifestFile = "manifest.json"
	chainFile    = "chain.json"
	accountsFile = "accounts.bin"
)

// Manifest describes a snapshot.
type Manifest struct {
	Version       uint32     `json:"version"`
	Height        uint64     `json:"height"`
	Blockhash     types.Hash `json:"blockhash"`
	AccountsHash  types.Hash `json:"accounts_hash"`
	AccountsCount uint64     `json:"accounts_count"`
	LamportsTotal uint64     `json:"lamports_total"`
	CreatedAt     time.Time  `json:"created_at"`
}

// MarshalJSON encodes hashes as base58.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.Marshal(&struct {
		Blockhash    string `json:"blockhash"`
		AccountsHash string `json:"accounts_hash"`
		*Alias
	}{
		Blockhash:    m.Blockhash.String(),
		AccountsHash: m.AccountsHash.String(),
		Alias:        (*Alias)(m),
	})
}

// UnmarshalJSON decodes base58 hashes.
func (m *Manifest) UnmarshalJSON(data []byte) error {
	type Alias Manifest
	aux := &struct {
		Blockhash    string `json:"blockhash"`
		AccountsHash string `json:"accounts_hash"`
		*Alias
	}{
		Alias: (*Alias)(m),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	var err error
	if m.Blockhash, err = types.HashFromBase58(aux.Blockhash); err != nil {
		return fmt.Errorf("invalid blockhash: %w", err)
	}
	if m.AccountsHash, err = types.HashFromBase58(aux.AccountsHash); err != nil {
		return fmt.Errorf("invalid accounts hash: %w", err)
	}
	return nil
}

// Write streams a snapshot of db and chain to w. The caller must keep both
// unchanged while Write runs.
func Write(w io.Writer, db accounts.Store, chain *poh.Recorder, now time.Time) (*Manifest, error) {
	// Accounts are buffered so the manifest, which needs their hash, can be
	// the first archive member.
	var (
		body     []byte
		refs     []types.AccountRef
		lamports uint64
	)
	err := db.Range(func(ref types.AccountRef) error {
		data, err := accounts.SerializeAccount(ref.Account)
		if err != nil {
			return fmt.Errorf("serialize %s: %w", ref.Pubkey, err)
		}
		body = appendRecord(body, ref.Pubkey, data)
		refs = append(refs, ref)
		lamports += uint64(ref.Account.Lamports)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot: read accounts: %w", err)
	}

	checkpoint := chain.Checkpoint()
	manifest := &Manifest{
		Version:       Version,
		Height:        checkpoint.Height,
		Blockhash:     chain.LatestHash(),
		AccountsHash:  accounts.ComputeAccountsHash(refs),
		AccountsCount: uint64(len(refs)),
		LamportsTotal: lamports,
		CreatedAt:     now.UTC(),
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode manifest: %w", err)
	}
	chainJSON, err := json.Marshal(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode chain: %w", err)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create zstd encoder: %w", err)
	}
	tw := tar.NewWriter(enc)
	for _, member := range []struct {
		name string
		data []byte
	}{
		{manifestFile, manifestJSON},
		{chainFile, chainJSON},
		{accountsFile, body},
	} {
		hdr := &tar.Header{
			Name:    member.name,
			Mode:    0o644,
			Size:    int64(len(member.data)),
			ModTime: manifest.CreatedAt,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			enc.Close()
			return nil, fmt.Errorf("snapshot: write %s header: %w", member.name, err)
		}
		if _, err := tw.Write(member.data); err != nil {
			enc.Close()
			return nil, fmt.Errorf("snapshot: write %s: %w", member.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		enc.Close()
		return nil, fmt.Errorf("snapshot: close tar: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close zstd: %w", err)
	}
	return manifest, nil
}

// Record format inside accounts.bin:
// - pubkey:   32 bytes
// - length:   4 bytes (little-endian uint32)
// - account:  length bytes, accounts.SerializeAccount format
func appendRecord(buf []byte, pubkey types.Pubkey, data []byte) []byte {
	buf = append(buf, pubkey[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

// readRecord decodes one record from r. It returns io.EOF at a clean end.
func readRecord(r io.Reader) (types.Pubkey, *types.Account, error) {
	var head [32 + 4]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return types.Pubkey{}, nil, io.EOF
		}
		return types.Pubkey{}, nil, fmt.Errorf("%w: truncated account record", ErrInvalidArchive)
	}
	var pubkey types.Pubkey
	copy(pubkey[:], head[:32])

	data := make([]byte, binary.LittleEndian.Uint32(head[32:]))
	if _, err := io.ReadFull(r, data); err != nil {
		return pubkey, nil, fmt.Errorf("%w: truncated account %s", ErrInvalidArchive, pubkey)
	}
	account, err := accounts.DeserializeAccount(data)
	if err != nil {
		return pubkey, nil, fmt.Errorf("%w: account %s: %v", ErrInvalidArchive, pubkey, err)
	}
	return pubkey, account, nil
}
