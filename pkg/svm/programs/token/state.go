package token

import (
	"bytes"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/savefi/pkg/types"
)

// Packed account sizes.
const (
	MintSize         = 82
	TokenAccountSize = 165
)

// Token account states.
const (
	AccountStateUninitialized uint8 = 0
	AccountStateInitialized   uint8 = 1
	AccountStateFrozen        uint8 = 2
)

// COption is an optional pubkey packed as a u32 tag followed by the value.
// The value bytes are always present and zeroed when the tag is 0.
type COption struct {
	IsSome bool
	Value  types.Pubkey
}

// COptionU64 is an optional u64 packed like COption.
type COptionU64 struct {
	IsSome bool
	Value  uint64
}

// Mint is the packed state of a token mint.
type Mint struct {
	MintAuthority   COption
	Supply          uint64
	Decimals        uint8
	IsInitialized   bool
	FreezeAuthority COption
}

// TokenAccount is the packed state of a token holding.
type TokenAccount struct {
	Mint            types.Pubkey
	Owner           types.Pubkey
	Amount          uint64
	Delegate        COption
	State           uint8
	IsNative        COptionU64
	DelegatedAmount uint64
	CloseAuthority  COption
}

// NewMint returns an initialized mint with zero supply.
func NewMint(decimals uint8, mintAuthority *types.Pubkey, freezeAuthority *types.Pubkey) *Mint {
	m := &Mint{Decimals: decimals, IsInitialized: true}
	if mintAuthority != nil {
		m.MintAuthority = COption{IsSome: true, Value: *mintAuthority}
	}
	if freezeAuthority != nil {
		m.FreezeAuthority = COption{IsSome: true, Value: *freezeAuthority}
	}
	return m
}

// NewTokenAccount returns an initialized, empty holding of mint for owner.
func NewTokenAccount(mint types.Pubkey, owner types.Pubkey) *TokenAccount {
	return &TokenAccount{Mint: mint, Owner: owner, State: AccountStateInitialized}
}

// IsFrozen reports whether transfers out of the account are blocked.
func (a *TokenAccount) IsFrozen() bool {
	return a.State == AccountStateFrozen
}

// packer writes fixed-layout state and keeps the first error.
type packer struct {
	buf bytes.Buffer
	enc *bin.Encoder
	err error
}

func newPacker(size int) *packer {
	p := &packer{}
	p.buf.Grow(size)
	p.enc = bin.NewBinEncoder(&p.buf)
	return p
}

func (p *packer) do(fn func() error) {
	if p.err == nil {
		p.err = fn()
	}
}

func (p *packer) u8(v uint8) { p.do(func() error { return p.enc.WriteUint8(v) }) }
func (p *packer) u32(v uint32) { p.do(func() error { return p.enc.WriteUint32(v, bin.LE) }) }
func (p *packer) u64(v uint64) { p.do(func() error { return p.enc.WriteUint64(v, bin.LE) }) }
func (p *packer) pubkey(v types.Pubkey) { p.do(func() error { return p.enc.WriteBytes(v[:], false) }) }

func (p *packer) flag(v bool) {
	if v {
		p.u8(1)
		return
	}
	p.u8(0)
}

func (p *packer) tag(some bool) {
	if some {
		p.u32(1)
		return
	}
	p.u32(0)
}

func (p *packer) optPubkey(o COption) {
	p.tag(o.IsSome)
	if !o.IsSome {
		o.Value = types.Pubkey{}
	}
	p.pubkey(o.Value)
}

func (p *packer) optU64(o COptionU64) {
	p.tag(o.IsSome)
	if !o.IsSome {
		o.Value = 0
	}
	p.u64(o.Value)
}

// bytes returns the packed state.
func (p *packer) bytes() []byte {
	if p.err != nil {
		panic(fmt.Sprintf("token: pack state: %v", p.err))
	}
	return p.buf.Bytes()
}

// unpacker reads fixed-layout state and keeps the first error.
type unpacker struct {
	dec *bin.Decoder
	err error
}

func (u *unpacker) u8() uint8 {
	if u.err != nil {
		return 0
	}
	v, err := u.dec.ReadUint8()
	u.err = err
	return v
}

func (u *unpacker) u32() uint32 {
	if u.err != nil {
		return 0
	}
	v, err := u.dec.ReadUint32(bin.LE)
	u.err = err
	return v
}

func (u *unpacker) u64() uint64 {
	if u.err != nil {
		return 0
	}
	v, err := u.dec.ReadUint64(bin.LE)
	u.err = err
	return v
}

func (u *unpacker) pubkey() types.Pubkey {
	var pk types.Pubkey
	if u.err != nil {
		return pk
	}
	b, err := u.dec.ReadNBytes(len(pk))
	u.err = err
	copy(pk[:], b)
	return pk
}

func (u *unpacker) optPubkey() COption {
	some := u.u32() == 1
	v := u.pubkey()
	if !some {
		return COption{}
	}
	return COption{IsSome: true, Value: v}
}

func (u *unpacker) optU64() COptionU64 {
	some := u.u32() == 1
	v := u.u64()
	if !some {
		return COptionU64{}
	}
	return COptionU64{IsSome: true, Value: v}
}

func unpack(data []byte, size int, what string) (*unpacker, error) {
	if len(data) < size {
		return nil, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrInvalidAccountData, what, size, len(data))
	}
	return &unpacker{dec: bin.NewBinDecoder(data[:size])}, nil
}

// DeserializeMint unpacks a mint. Bytes past MintSize are ignored.
func DeserializeMint(data []byte) (*Mint, error) {
	u, err := unpack(data, MintSize, "mint")
	if err != nil {
		return nil, err
	}
	m := &Mint{
		MintAuthority: u.optPubkey(),
		Supply:        u.u64(),
		Decimals:      u.u8(),
		IsInitialized: u.u8() != 0,
	}
	m.FreezeAuthority = u.optPubkey()
	if u.err != nil {
		return nil, fmt.Errorf("%w: mint: %v", ErrInvalidAccountData, u.err)
	}
	return m, nil
}

// Serialize packs the mint into MintSize bytes.
func (m *Mint) Serialize() []byte {
	p := newPacker(MintSize)
	p.optPubkey(m.MintAuthority)
	p.u64(m.Supply)
	p.u8(m.Decimals)
	p.flag(m.IsInitialized)
	p.optPubkey(m.FreezeAuthority)
	return p.bytes()
}

// DeserializeTokenAccount unpacks a token account. Bytes past
// TokenAccountSize are ignored.
func DeserializeTokenAccount(data []byte) (*TokenAccount, error) {
	u, err := unpack(data, TokenAccountSize, "token account")
	if err != nil {
		return nil, err
	}
	a := &TokenAccount{
		Mint:     u.pubkey(),
		Owner:    u.pubkey(),
		Amount:   u.u64(),
		Delegate: u.optPubkey(),
		State:    u.u8(),
		IsNative: u.optU64(),
	}
	a.DelegatedAmount = u.u64()
	a.CloseAuthority = u.optPubkey()
	if u.err != nil {
		return nil, fmt.Errorf("%w: token account: %v", ErrInvalidAccountData, u.err)
	}
	return a, nil
}

// Serialize packs the account into TokenAccountSize bytes.
func (a *TokenAccount) Serialize() []byte {
	p := newPacker(TokenAccountSize)
	p.pubkey(a.Mint)
	p.pubkey(a.Owner)
	p.u64(a.Amount)
	p.optPubkey(a.Delegate)
	p.u8(a.State)
	p.optU64(a.IsNative)
	p.u64(a.DelegatedAmount)
	p.optPubkey(a.CloseAuthority)
	return p.bytes()
}
