package accounts

import (
	"bytes"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/savefi/pkg/types"
)

// accountEncodingV1 tags the stored layout:
//
//	version u8 | lamports u64 | owner [32]byte | executable bool | data (uvarint length + bytes)
const accountEncodingV1 uint8 = 1

// ErrInvalidAccountData is returned when stored account bytes are malformed.
var ErrInvalidAccountData = errors.New("invalid account data")

// SerializeAccount encodes an account for the Badger store and snapshots.
func SerializeAccount(account *types.Account) ([]byte, error) {
	if account == nil {
		return nil, errors.New("cannot serialize nil account")
	}
	var buf bytes.Buffer
	buf.Grow(1 + 8 + 32 + 1 + 5 + len(account.Data))
	enc := bin.NewBinEncoder(&buf)
	for _, write := range []func() error{
		func() error { return enc.WriteUint8(accountEncodingV1) },
		func() error { return enc.WriteUint64(uint64(account.Lamports), bin.LE) },
		func() error { return enc.WriteBytes(account.Owner[:], false) },
		func() error { return enc.WriteBool(account.Executable) },
		func() error { return enc.WriteBytes(account.Data, true) },
	} {
		if err := write(); err != nil {
			return nil, fmt.Errorf("serialize account: %w", err)
		}
	}
	return buf.Bytes(), nil
}

// DeserializeAccount decodes bytes written by SerializeAccount. The input
// must hold exactly one account.
func DeserializeAccount(data []byte) (*types.Account, error) {
	dec := bin.NewBinDecoder(data)
	invalid := func(err error) (*types.Account, error) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccountData, err)
	}

	version, err := dec.ReadUint8()
	if err != nil {
		return invalid(err)
	}
	if version != accountEncodingV1 {
		return invalid(fmt.Errorf("unknown encoding version %d", version))
	}
	lamports, err := dec.ReadUint64(bin.LE)
	if err != nil {
		return invalid(err)
	}
	owner, err := dec.ReadNBytes(32)
	if err != nil {
		return invalid(err)
	}
	executable, err := dec.ReadBool()
	if err != nil {
		return invalid(err)
	}
	payload, err := dec.ReadByteSlice()
	if err != nil {
		return invalid(err)
	}
	if rest := dec.Remaining(); rest != 0 {
		return invalid(fmt.Errorf("%d trailing bytes", rest))
	}

	account := &types.Account{
		Lamports:   types.Lamports(lamports),
		Owner:      types.Pubkey(owner),
		Executable: executable,
	}
	if len(payload) > 0 {
		account.Data = bytes.Clone(payload)
	}
	return account, nil
}
