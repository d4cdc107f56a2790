package savefi

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"

	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

// DiscriminatorSize is the length of the account and instruction tags.
const DiscriminatorSize = 8

// Discriminator is the 8-byte type tag in front of account and instruction data.
type Discriminator [DiscriminatorSize]byte

// AccountDiscriminator returns sha256("account:<name>")[:8].
func AccountDiscriminator(name string) Discriminator {
	return discriminator("account:" + name)
}

// InstructionDiscriminator returns sha256("global:<name>")[:8].
func InstructionDiscriminator(name string) Discriminator {
	return discriminator("global:" + name)
}

func discriminator(preimage string) Discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d Discriminator
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Account discriminators.
var (
	ProtocolConfigDiscriminator = AccountDiscriminator("ProtocolConfig")
	FeeAccountDiscriminator     = AccountDiscriminator("FeeAccount")
	MintAuthorityDiscriminator  = AccountDiscriminator("MintAuthority")
	VaultDiscriminator          = AccountDiscriminator("Vault")
)

// Account sizes including the discriminator.
const (
	ProtocolConfigSize = DiscriminatorSize + 32 + 1 + 1 + 32 + 1
	FeeAccountSize     = DiscriminatorSize + 32 + 1 + 8 + 8 + 1
	MintAuthoritySize  = DiscriminatorSize + 1
	VaultSize          = DiscriminatorSize + 32 + 1 + 1 + 8*6 + 8 + 4 + 8*4 + 1
)

// ProtocolConfig is the singleton protocol account at seeds ["config"].
type ProtocolConfig struct {
	Admin         types.Pubkey
	Paused        bool
	EmergencyMode bool
	ReceiptMint   types.Pubkey
	Bump          uint8
}

// FeeAccount holds fee lamports at seeds ["fee_account"].
type FeeAccount struct {
	Authority          types.Pubkey
	FeeRate            uint8
	CollectedFees      uint64
	LastCollectionTime int64
	Bump               uint8
}

// MintAuthority is the receipt mint's authority at seeds ["mint_authority"].
type MintAuthority struct {
	Bump uint8
}

// Vault is a per-owner savings account at seeds ["vault", owner].
// Its lamports are the rent-exempt minimum plus Balance.
type Vault struct {
	Owner              types.Pubkey
	SaveRate           uint8
	LockDays           uint8
	Balance            uint64
	LockUntil          int64
	SubscriptionExpiry int64
	LastDepositTime    int64
	LastWithdrawTime   int64
	DayWindowStart     int64

	DailyDelegated        uint64
	DailyTransactionCount uint32
	LastDelegationTime    int64
	DelegatedAmount       uint64
	DelegationExpiry      int64

	TotalSaved uint64
	Bump       uint8
}

// IsLocked reports whether withdrawals are still blocked at now.
func (v *Vault) IsLocked(now int64) bool {
	return now < v.LockUntil
}

// IsActive reports whether the vault's subscription covers now.
func (v *Vault) IsActive(now int64) bool {
	return now < v.SubscriptionExpiry
}

func encodeAccount(d Discriminator, v any, size int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, size))
	buf.Write(d[:])
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, err
	}
	if buf.Len() != size {
		return nil, fmt.Errorf("encoded %d bytes, want %d", buf.Len(), size)
	}
	return buf.Bytes(), nil
}

func decodeAccount(data []byte, d Discriminator, v any) error {
	if len(data) < DiscriminatorSize {
		return fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:DiscriminatorSize], d[:]) {
		return fmt.Errorf("discriminator mismatch")
	}
	return bin.NewBorshDecoder(data[DiscriminatorSize:]).Decode(v)
}

// Serialize encodes the config in its on-chain layout.
func (c *ProtocolConfig) Serialize() ([]byte, error) {
	return encodeAccount(ProtocolConfigDiscriminator, c, ProtocolConfigSize)
}

// DeserializeProtocolConfig decodes config account data.
func DeserializeProtocolConfig(data []byte) (*ProtocolConfig, error) {
	var c ProtocolConfig
	if err := decodeAccount(data, ProtocolConfigDiscriminator, &c); err != nil {
		return nil, fmt.Errorf("protocol config: %w", err)
	}
	return &c, nil
}

// Serialize encodes the fee account in its on-chain layout.
func (f *FeeAccount) Serialize() ([]byte, error) {
	return encodeAccount(FeeAccountDiscriminator, f, FeeAccountSize)
}

// DeserializeFeeAccount decodes fee account data.
func DeserializeFeeAccount(data []byte) (*FeeAccount, error) {
	var f FeeAccount
	if err := decodeAccount(data, FeeAccountDiscriminator, &f); err != nil {
		return nil, fmt.Errorf("fee account: %w", err)
	}
	return &f, nil
}

// Serialize encodes the mint authority in its on-chain layout.
func (m *MintAuthority) Serialize() ([]byte, error) {
	return encodeAccount(MintAuthorityDiscriminator, m, MintAuthoritySize)
}

// DeserializeMintAuthority decodes mint authority data.
func DeserializeMintAuthority(data []byte) (*MintAuthority, error) {
	var m MintAuthority
	if err := decodeAccount(data, MintAuthorityDiscriminator, &m); err != nil {
		return nil, fmt.Errorf("mint authority: %w", err)
	}
	return &m, nil
}

// Serialize encodes the vault in its on-chain layout.
func (v *Vault) Serialize() ([]byte, error) {
	return encodeAccount(VaultDiscriminator, v, VaultSize)
}

// DeserializeVault decodes vault account data.
func DeserializeVault(data []byte) (*Vault, error) {
	var v Vault
	if err := decodeAccount(data, VaultDiscriminator, &v); err != nil {
		return nil, fmt.Errorf("vault: %w", err)
	}
	return &v, nil
}

// loadProgramAccount checks that acc holds data of the given size owned by
// the program. Empty accounts report ErrNotFound.
func loadProgramAccount(acc *syscall.AccountInfo, size int, what string) error {
	if len(acc.Data) == 0 {
		return wrap(ErrNotFound, "%s %s", what, acc.Pubkey)
	}
	if acc.Owner != ProgramID {
		return wrap(ErrInvalidAccount, "%s %s owned by %s", what, acc.Pubkey, acc.Owner)
	}
	if len(acc.Data) != size {
		return wrap(ErrInvalidAccount, "%s %s has %d bytes", what, acc.Pubkey, len(acc.Data))
	}
	return nil
}

// LoadVault reads the vault stored in acc.
func LoadVault(acc *syscall.AccountInfo) (*Vault, error) {
	if err := loadProgramAccount(acc, VaultSize, "vault"); err != nil {
		return nil, err
	}
	v, err := DeserializeVault(acc.Data)
	if err != nil {
		return nil, wrap(ErrInvalidAccount, "%v", err)
	}
	return v, nil
}

// LoadProtocolConfig reads the protocol config stored in acc.
func LoadProtocolConfig(acc *syscall.AccountInfo) (*ProtocolConfig, error) {
	if err := loadProgramAccount(acc, ProtocolConfigSize, "config"); err != nil {
		return nil, err
	}
	c, err := DeserializeProtocolConfig(acc.Data)
	if err != nil {
		return nil, wrap(ErrInvalidAccount, "%v", err)
	}
	return c, nil
}

// LoadFeeAccount reads the fee account stored in acc.
func LoadFeeAccount(acc *syscall.AccountInfo) (*FeeAccount, error) {
	if err := loadProgramAccount(acc, FeeAccountSize, "fee account"); err != nil {
		return nil, err
	}
	f, err := DeserializeFeeAccount(acc.Data)
	if err != nil {
		return nil, wrap(ErrInvalidAccount, "%v", err)
	}
	return f, nil
}

// LoadMintAuthority reads the mint authority stored in acc.
func LoadMintAuthority(acc *syscall.AccountInfo) (*MintAuthority, error) {
	if err := loadProgramAccount(acc, MintAuthoritySize, "mint authority"); err != nil {
		return nil, err
	}
	m, err := DeserializeMintAuthority(acc.Data)
	if err != nil {
		return nil, wrap(ErrInvalidAccount, "%v", err)
	}
	return m, nil
}

type serializer interface {
	Serialize() ([]byte, error)
}

// store writes state back into acc, which must be writable.
func store(acc *syscall.AccountInfo, state serializer) error {
	if !acc.IsWritable {
		return wrap(ErrInvalidAccount, "%s is not writable", acc.Pubkey)
	}
	data, err := state.Serialize()
	if err != nil {
		return err
	}
	if len(acc.Data) != len(data) {
		return wrap(ErrInvalidAccount, "%s has %d bytes, want %d", acc.Pubkey, len(acc.Data), len(data))
	}
	copy(acc.Data, data)
	return nil
}
