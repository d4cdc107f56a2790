package crypto

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/savefi/pkg/types"
)

func keypair(seed string) (types.Pubkey, ed25519.PrivateKey) {
	s := sha256.Sum256([]byte(seed))
	priv := ed25519.NewKeyFromSeed(s[:])
	var pk types.Pubkey
	copy(pk[:], priv.Public().(ed25519.PublicKey))
	return pk, priv
}

func signedTransfer(t *testing.T, signers ...string) (*types.Transaction, []ed25519.PrivateKey) {
	t.Helper()
	var keys []ed25519.PrivateKey
	var metas []types.AccountMeta
	var payer types.Pubkey
	for i, seed := range signers {
		pk, priv := keypair(seed)
		if i == 0 {
			payer = pk
		}
		keys = append(keys, priv)
		metas = append(metas, types.AccountMeta{Pubkey: pk, IsSigner: true, IsWritable: true})
	}
	ix := types.Instruction{ProgramID: types.SystemProgramID, Accounts: metas, Data: []byte{2, 0, 0, 0}}
	tx, err := types.NewTransaction([]types.Instruction{ix}, payer, types.SHA256([]byte("blockhash")))
	require.NoError(t, err)
	require.NoError(t, tx.Sign(keys...))
	return tx, keys
}

func TestVerify(t *testing.T) {
	pk, priv := keypair("signer")
	msg := []byte("test message")
	var sig types.Signature
	copy(sig[:], ed25519.Sign(priv, msg))

	assert.NoError(t, Verify(pk, msg, sig))
	assert.ErrorIs(t, Verify(pk, []byte("wrong message"), sig), ErrVerificationFailed)

	other, _ := keypair("other")
	assert.ErrorIs(t, Verify(other, msg, sig), ErrVerificationFailed)

	sig[0] ^= 0xff
	assert.ErrorIs(t, Verify(pk, msg, sig), ErrVerificationFailed)
}

func TestVerifyRejectsOffCurveKeys(t *testing.T) {
	// y = 2 has no matching x on the curve.
	var offCurve types.Pubkey
	offCurve[0] = 2
	assert.ErrorIs(t, Verify(offCurve, []byte("m"), types.Signature{}), ErrInvalidPublicKey)
}

func TestVerifyTransaction_Valid(t *testing.T) {
	tx, _ := signedTransfer(t, "alice", "bob")
	assert.NoError(t, VerifyTransaction(tx))
}

func TestVerifyTransaction_Nil(t *testing.T) {
	assert.ErrorIs(t, VerifyTransaction(nil), ErrMissingTransaction)
}

func TestVerifyTransaction_NoSignatures(t *testing.T) {
	tx, _ := signedTransfer(t, "alice")
	tx.Signatures = nil
	assert.ErrorIs(t, VerifyTransaction(tx), ErrNoSignatures)
}

func TestVerifyTransaction_CountMismatch(t *testing.T) {
	tx, _ := signedTransfer(t, "alice", "bob")
	tx.Signatures = tx.Signatures[:1]
	assert.ErrorIs(t, VerifyTransaction(tx), ErrSignatureCountMismatch)
}

func TestVerifyTransaction_Tampered(t *testing.T) {
	tx, _ := signedTransfer(t, "alice", "bob")
	tx.Message.Instructions[0].Data[0] = 3

	err := VerifyTransaction(tx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerificationFailed)

	var verr *SignerError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, 0, verr.Index)
}

func TestVerifyTransaction_SecondSignatureBad(t *testing.T) {
	tx, _ := signedTransfer(t, "alice", "bob")
	tx.Signatures[1][5] ^= 0x01

	var verr *SignerError
	require.True(t, errors.As(VerifyTransaction(tx), &verr))
	assert.Equal(t, 1, verr.Index)
	assert.Equal(t, tx.Message.AccountKeys[1], verr.Signer)
}
