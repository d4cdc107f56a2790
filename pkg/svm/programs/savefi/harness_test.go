package savefi

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fortiblox/savefi/pkg/svm/programs/token"
	"github.com/fortiblox/savefi/pkg/svm/syscall"
	"github.com/fortiblox/savefi/pkg/types"
)

const (
	sol = uint64(1_000_000_000)
	day = SecondsPerDay

	// 2023-11-15 00:00:00 UTC, a calendar day boundary.
	genesisTime int64 = 1_700_006_400
)

func testPubkey(seed string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte(seed)))
}

// harness runs instructions against an in-memory account set. A failing
// instruction leaves the set untouched.
type harness struct {
	t          *testing.T
	program    *Program
	accounts   map[types.Pubkey]*syscall.AccountInfo
	now        int64
	addrs      Addresses
	admin      types.Pubkey
	returnData []byte
}

func newHarness(t *testing.T, params Params, feeRate uint8) *harness {
	t.Helper()
	h := newBareHarness(t, params)
	require.NoError(t, h.run(h.addrs.InitializeMints(h.admin, feeRate)))
	return h
}

// newBareHarness funds the admin and creates the receipt mint without
// initializing the protocol.
func newBareHarness(t *testing.T, params Params) *harness {
	t.Helper()
	program, err := New(params)
	require.NoError(t, err)

	h := &harness{
		t:        t,
		program:  program,
		accounts: make(map[types.Pubkey]*syscall.AccountInfo),
		now:      genesisTime,
		admin:    testPubkey("admin"),
	}
	h.fund(h.admin, 1000*sol)

	mint := testPubkey("receipt-mint")
	h.addrs, err = ProtocolAddresses(mint)
	require.NoError(t, err)
	h.putMint(mint, token.NewMint(9, &h.addrs.MintAuthority, nil))
	return h
}

func (h *harness) putMint(pk types.Pubkey, m *token.Mint) {
	lamports := uint64(types.RentExemptMinimum(token.MintSize))
	h.accounts[pk] = &syscall.AccountInfo{
		Pubkey:   pk,
		Lamports: &lamports,
		Data:     m.Serialize(),
		Owner:    types.TokenProgramID,
	}
}

func (h *harness) account(pk types.Pubkey) *syscall.AccountInfo {
	acc, ok := h.accounts[pk]
	if !ok {
		acc = syscall.NewAccountInfo(pk, nil, false, false)
		h.accounts[pk] = acc
	}
	return acc
}

func (h *harness) fund(pk types.Pubkey, lamports uint64) {
	*h.account(pk).Lamports += lamports
}

func (h *harness) lamports(pk types.Pubkey) uint64 {
	return *h.account(pk).Lamports
}

// run executes one instruction, checking that lamports are conserved.
func (h *harness) run(ix types.Instruction, buildErr error) error {
	h.t.Helper()
	require.NoError(h.t, buildErr)

	infos := make([]*syscall.AccountInfo, len(ix.Accounts))
	var before uint64
	for i, meta := range ix.Accounts {
		info := h.account(meta.Pubkey).Clone()
		info.IsSigner = meta.IsSigner
		info.IsWritable = meta.IsWritable
		infos[i] = info
		before += *info.Lamports
	}

	ctx := syscall.NewExecutionContext(ProgramID, infos, ix.Data, 1_400_000)
	ctx.UnixTimestamp = h.now
	if err := h.program.Execute(ctx, &ix); err != nil {
		return err
	}

	var after uint64
	for _, info := range infos {
		after += *info.Lamports
		stored := info.Clone()
		stored.IsSigner, stored.IsWritable = false, false
		h.accounts[info.Pubkey] = stored
	}
	require.Equal(h.t, before, after, "lamports not conserved")
	_, h.returnData = ctx.GetReturnData()
	return nil
}

func (h *harness) openVault(seed string, saveRate, lockDays uint8) VaultAccounts {
	h.t.Helper()
	owner := testPubkey(seed)
	h.fund(owner, 100*sol)
	v, err := h.addrs.OwnerAccounts(owner)
	require.NoError(h.t, err)
	require.NoError(h.t, h.run(h.addrs.InitializeVault(v, saveRate, lockDays)))
	return v
}

func (h *harness) vault(v VaultAccounts) *Vault {
	h.t.Helper()
	state, err := LoadVault(h.account(v.Vault))
	require.NoError(h.t, err)
	return state
}

func (h *harness) feeAccount() *FeeAccount {
	h.t.Helper()
	fee, err := LoadFeeAccount(h.account(h.addrs.FeeAccount))
	require.NoError(h.t, err)
	return fee
}

func (h *harness) config() *ProtocolConfig {
	h.t.Helper()
	cfg, err := LoadProtocolConfig(h.account(h.addrs.Config))
	require.NoError(h.t, err)
	return cfg
}

func (h *harness) receipts(v VaultAccounts) uint64 {
	h.t.Helper()
	acct, err := token.LoadTokenAccount(h.account(v.VaultToken))
	require.NoError(h.t, err)
	return acct.Amount
}

func (h *harness) supply() uint64 {
	h.t.Helper()
	m, err := token.LoadMint(h.account(h.addrs.ReceiptMint))
	require.NoError(h.t, err)
	return m.Supply
}

func (h *harness) saveResult() SaveResult {
	h.t.Helper()
	var res SaveResult
	require.NoError(h.t, DecodeReturnData(h.returnData, &res))
	return res
}

func (h *harness) advance(seconds int64) {
	h.now += seconds
}
