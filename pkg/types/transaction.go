package types

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
)

// Transaction represents a complete transaction with signatures.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

// Message represents a transaction message (the part that gets signed).
type Message struct {
	Header          MessageHeader
	AccountKeys     []Pubkey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// MessageHeader contains counts for account types.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction is an instruction with account indices.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	AccountIndices []uint8
	Data           []byte
}

// Instruction is an expanded instruction with full account info.
type Instruction struct {
	ProgramID Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// ErrMissingSigner is returned by Sign when a required signer key is not supplied.
var ErrMissingSigner = errors.New("missing signer key")

// NewTransaction compiles instructions into an unsigned legacy transaction.
// The payer is always the first account and a writable signer. Remaining keys
// are ordered writable signers, readonly signers, writable non-signers, then
// readonly non-signers, matching the legacy message layout.
func NewTransaction(instructions []Instruction, payer Pubkey, recentBlockhash Hash) (*Transaction, error) {
	if len(instructions) == 0 {
		return nil, errors.New("transaction requires at least one instruction")
	}

	type keyFlags struct {
		signer   bool
		writable bool
	}
	order := []Pubkey{payer}
	flags := map[Pubkey]*keyFlags{payer: {signer: true, writable: true}}

	touch := func(pk Pubkey, signer, writable bool) {
		f, ok := flags[pk]
		if !ok {
			f = &keyFlags{}
			flags[pk] = f
			order = append(order, pk)
		}
		f.signer = f.signer || signer
		f.writable = f.writable || writable
	}
	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			touch(meta.Pubkey, meta.IsSigner, meta.IsWritable)
		}
		touch(ix.ProgramID, false, false)
	}

	var ws, rs, wu, ru []Pubkey
	for _, pk := range order {
		f := flags[pk]
		switch {
		case f.signer && f.writable:
			ws = append(ws, pk)
		case f.signer:
			rs = append(rs, pk)
		case f.writable:
			wu = append(wu, pk)
		default:
			ru = append(ru, pk)
		}
	}
	keys := make([]Pubkey, 0, len(order))
	keys = append(keys, ws...)
	keys = append(keys, rs...)
	keys = append(keys, wu...)
	keys = append(keys, ru...)
	if len(keys) > 256 {
		return nil, fmt.Errorf("too many account keys: %d", len(keys))
	}

	index := make(map[Pubkey]uint8, len(keys))
	for i, pk := range keys {
		index[pk] = uint8(i)
	}

	compiled := make([]CompiledInstruction, len(instructions))
	for i, ix := range instructions {
		indices := make([]uint8, len(ix.Accounts))
		for j, meta := range ix.Accounts {
			indices[j] = index[meta.Pubkey]
		}
		compiled[i] = CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			AccountIndices: indices,
			Data:           ix.Data,
		}
	}

	return &Transaction{
		Message: Message{
			Header: MessageHeader{
				NumRequiredSignatures:       uint8(len(ws) + len(rs)),
				NumReadonlySignedAccounts:   uint8(len(rs)),
				NumReadonlyUnsignedAccounts: uint8(len(ru)),
			},
			AccountKeys:     keys,
			RecentBlockhash: recentBlockhash,
			Instructions:    compiled,
		},
	}, nil
}

// Sign signs the message with the given keys. Every required signer must be present.
func (tx *Transaction) Sign(keys ...ed25519.PrivateKey) error {
	msg, err := tx.Message.Serialize()
	if err != nil {
		return err
	}
	byPub := make(map[Pubkey]ed25519.PrivateKey, len(keys))
	for _, k := range keys {
		var pk Pubkey
		copy(pk[:], k.Public().(ed25519.PublicKey))
		byPub[pk] = k
	}

	n := int(tx.Message.Header.NumRequiredSignatures)
	tx.Signatures = make([]Signature, n)
	for i := 0; i < n; i++ {
		key, ok := byPub[tx.Message.AccountKeys[i]]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingSigner, tx.Message.AccountKeys[i])
		}
		copy(tx.Signatures[i][:], ed25519.Sign(key, msg))
	}
	return nil
}

// IsSigner reports whether the account key at index i must sign.
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumRequiredSignatures)
}

// IsWritable reports whether the account key at index i is writable.
func (m *Message) IsWritable(i int) bool {
	numSigners := int(m.Header.NumRequiredSignatures)
	if i < numSigners {
		return i < numSigners-int(m.Header.NumReadonlySignedAccounts)
	}
	numUnsignedWritable := len(m.AccountKeys) - numSigners - int(m.Header.NumReadonlyUnsignedAccounts)
	return i-numSigners < numUnsignedWritable
}

// Decompile expands a compiled instruction into a full Instruction.
func (m *Message) Decompile(compiled *CompiledInstruction) (*Instruction, error) {
	if int(compiled.ProgramIDIndex) >= len(m.AccountKeys) {
		return nil, fmt.Errorf("program ID index out of bounds: %d", compiled.ProgramIDIndex)
	}
	accounts := make([]AccountMeta, len(compiled.AccountIndices))
	for i, idx := range compiled.AccountIndices {
		if int(idx) >= len(m.AccountKeys) {
			return nil, fmt.Errorf("account index out of bounds: %d", idx)
		}
		accounts[i] = AccountMeta{
			Pubkey:     m.AccountKeys[idx],
			IsSigner:   m.IsSigner(int(idx)),
			IsWritable: m.IsWritable(int(idx)),
		}
	}
	return &Instruction{
		ProgramID: m.AccountKeys[compiled.ProgramIDIndex],
		Accounts:  accounts,
		Data:      compiled.Data,
	}, nil
}

// Serialize encodes the legacy message, the bytes each signer signs.
func (m *Message) Serialize() ([]byte, error) {
	buf := make([]byte, 0, 3+1+32*len(m.AccountKeys)+32+1+64*len(m.Instructions))
	buf = append(buf,
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts,
	)
	if err := bin.EncodeCompactU16Length(&buf, len(m.AccountKeys)); err != nil {
		return nil, err
	}
	for _, key := range m.AccountKeys {
		buf = append(buf, key[:]...)
	}
	buf = append(buf, m.RecentBlockhash[:]...)
	if err := bin.EncodeCompactU16Length(&buf, len(m.Instructions)); err != nil {
		return nil, err
	}
	for _, ix := range m.Instructions {
		buf = append(buf, ix.ProgramIDIndex)
		if err := bin.EncodeCompactU16Length(&buf, len(ix.AccountIndices)); err != nil {
			return nil, err
		}
		buf = append(buf, ix.AccountIndices...)
		if err := bin.EncodeCompactU16Length(&buf, len(ix.Data)); err != nil {
			return nil, err
		}
		buf = append(buf, ix.Data...)
	}
	return buf, nil
}

// Serialize encodes the transaction in wire format: the signatures
// followed by the message.
func (tx *Transaction) Serialize() ([]byte, error) {
	msg, err := tx.Message.Serialize()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 3+len(tx.Signatures)*64+len(msg))
	if err := bin.EncodeCompactU16Length(&buf, len(tx.Signatures)); err != nil {
		return nil, err
	}
	for _, sig := range tx.Signatures {
		buf = append(buf, sig[:]...)
	}
	return append(buf, msg...), nil
}

// ErrMalformedTransaction is returned for bytes that are not a legacy
// wire-format transaction.
var ErrMalformedTransaction = errors.New("malformed transaction")

// wireReader reads wire-format fields and keeps the first error.
type wireReader struct {
	dec *bin.Decoder
	err error
}

func (r *wireReader) fail(what string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s: %v", ErrMalformedTransaction, what, err)
	}
}

func (r *wireReader) length(what string) int {
	if r.err != nil {
		return 0
	}
	n, err := r.dec.ReadCompactU16()
	if err != nil {
		r.fail(what, err)
	}
	return n
}

func (r *wireReader) byte(what string) uint8 {
	if r.err != nil {
		return 0
	}
	b, err := r.dec.ReadUint8()
	if err != nil {
		r.fail(what, err)
	}
	return b
}

// bytes returns a copy of the next n bytes.
func (r *wireReader) bytes(what string, n int) []byte {
	if r.err != nil {
		return nil
	}
	b, err := r.dec.ReadNBytes(n)
	if err != nil {
		r.fail(what, err)
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *wireReader) array32(what string) (out [32]byte) {
	copy(out[:], r.bytes(what, 32))
	return out
}

// DeserializeTransaction decodes a wire-format legacy transaction. The
// input must hold exactly one transaction; versioned messages are rejected.
func DeserializeTransaction(data []byte) (*Transaction, error) {
	r := &wireReader{dec: bin.NewBinDecoder(data)}
	tx := &Transaction{}

	tx.Signatures = make([]Signature, r.length("signature count"))
	for i := range tx.Signatures {
		copy(tx.Signatures[i][:], r.bytes("signature", len(Signature{})))
	}

	first := r.byte("message header")
	if r.err == nil && first&0x80 != 0 {
		return nil, fmt.Errorf("%w: versioned messages are not supported", ErrMalformedTransaction)
	}
	m := &tx.Message
	m.Header = MessageHeader{
		NumRequiredSignatures:       first,
		NumReadonlySignedAccounts:   r.byte("message header"),
		NumReadonlyUnsignedAccounts: r.byte("message header"),
	}
	m.AccountKeys = make([]Pubkey, r.length("account key count"))
	for i := range m.AccountKeys {
		m.AccountKeys[i] = r.array32("account key")
	}
	m.RecentBlockhash = r.array32("recent blockhash")
	m.Instructions = make([]CompiledInstruction, r.length("instruction count"))
	for i := range m.Instructions {
		ix := &m.Instructions[i]
		ix.ProgramIDIndex = r.byte("program index")
		ix.AccountIndices = r.bytes("account indices", r.length("account index count"))
		ix.Data = r.bytes("instruction data", r.length("instruction data length"))
	}

	if r.err != nil {
		return nil, r.err
	}
	if rest := r.dec.Remaining(); rest != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformedTransaction, rest)
	}
	return tx, nil
}

// FeePayer returns the fee payer (first signer).
func (tx *Transaction) FeePayer() Pubkey {
	if len(tx.Message.AccountKeys) == 0 {
		return ZeroPubkey
	}
	return tx.Message.AccountKeys[0]
}

// ID returns the transaction signature (first signature).
func (tx *Transaction) ID() Signature {
	if len(tx.Signatures) == 0 {
		return ZeroSignature
	}
	return tx.Signatures[0]
}

// TransactionResult represents the result of executing a transaction.
type TransactionResult struct {
	Signature     Signature
	Success       bool
	Error         error
	Logs          []string
	ComputeUnits  ComputeUnits
	ReturnData    []byte
	AccountDeltas []AccountDelta
	Blockhash     Hash
	UnixTimestamp int64
}
