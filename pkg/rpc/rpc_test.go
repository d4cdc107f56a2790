package rpc

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/savefi/pkg/accounts"
	"github.com/fortiblox/savefi/pkg/history"
	"github.com/fortiblox/savefi/pkg/ledger"
	"github.com/fortiblox/savefi/pkg/svm/programs/savefi"
	"github.com/fortiblox/savefi/pkg/types"
)

const sol = uint64(1_000_000_000)

type wallet struct {
	pub  types.Pubkey
	priv ed25519.PrivateKey
}

func newWallet(seed string) wallet {
	h := sha256.Sum256([]byte(seed))
	priv := ed25519.NewKeyFromSeed(h[:])
	var pub types.Pubkey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return wallet{pub: pub, priv: priv}
}

type testNode struct {
	t      *testing.T
	ledger *ledger.Ledger
	clock  *ledger.FakeClock
	srv    *httptest.Server
}

func newTestNode(t *testing.T, config *ServerConfig) *testNode {
	t.Helper()
	rec, err := history.OpenSQLite(context.Background(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })

	params := savefi.DefaultParams()
	program, err := savefi.New(params)
	require.NoError(t, err)
	registry := ledger.NewProgramRegistry()
	ledger.RegisterNativePrograms(registry, program)

	clock := ledger.NewFakeClock(time.Unix(1_700_006_400, 0))
	l := ledger.New(accounts.NewMemory(), registry,
		ledger.WithClock(clock), ledger.WithHistory(rec), ledger.WithAirdrops(true))

	if config == nil {
		config = DefaultServerConfig()
	}
	server := NewServer(config, NewHandlers(l, params, nil))
	srv := httptest.NewServer(server.Handler())
	t.Cleanup(srv.Close)
	return &testNode{t: t, ledger: l, clock: clock, srv: srv}
}

type response struct {
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	ID     json.RawMessage `json:"id"`
}

func (n *testNode) post(body string) *http.Response {
	n.t.Helper()
	resp, err := http.Post(n.srv.URL, "application/json", strings.NewReader(body))
	require.NoError(n.t, err)
	n.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (n *testNode) call(method string, params ...interface{}) response {
	n.t.Helper()
	if params == nil {
		params = []interface{}{}
	}
	body, err := json.Marshal(map[string]interface{}{
		"jsonrpc": "2.0", "id": 1, "method": method, "params": params,
	})
	require.NoError(n.t, err)
	resp := n.post(string(body))
	require.Equal(n.t, http.StatusOK, resp.StatusCode)

	var out response
	require.NoError(n.t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (n *testNode) result(method string, v interface{}, params ...interface{}) {
	n.t.Helper()
	out := n.call(method, params...)
	require.Nil(n.t, out.Error, "%s failed: %+v", method, out.Error)
	require.NoError(n.t, json.Unmarshal(out.Result, v))
}

func (n *testNode) send(payer wallet, ixs []types.Instruction, signers ...wallet) response {
	n.t.Helper()
	blockhash, _ := n.ledger.LatestBlockhash()
	tx, err := types.NewTransaction(ixs, payer.pub, blockhash)
	require.NoError(n.t, err)
	keys := []ed25519.PrivateKey{payer.priv}
	for _, s := range signers {
		keys = append(keys, s.priv)
	}
	require.NoError(n.t, tx.Sign(keys...))
	raw, err := tx.Serialize()
	require.NoError(n.t, err)
	return n.call("sendTransaction", EncodeBase64(raw), map[string]interface{}{"encoding": "base64"})
}

func (n *testNode) mustSend(payer wallet, ixs []types.Instruction, signers ...wallet) string {
	n.t.Helper()
	out := n.send(payer, ixs, signers...)
	require.Nil(n.t, out.Error, "sendTransaction failed: %+v", out.Error)
	var sig string
	require.NoError(n.t, json.Unmarshal(out.Result, &sig))
	return sig
}

func TestServer_ProtocolErrors(t *testing.T) {
	n := newTestNode(t, nil)

	out := n.call("noSuchMethod")
	require.NotNil(t, out.Error)
	assert.Equal(t, MethodNotFound, out.Error.Code)

	var parsed response
	require.NoError(t, json.NewDecoder(n.post("{not json").Body).Decode(&parsed))
	assert.Equal(t, ParseError, parsed.Error.Code)

	require.NoError(t, json.NewDecoder(n.post(`{"jsonrpc":"1.0","id":1,"method":"getHealth"}`).Body).Decode(&parsed))
	assert.Equal(t, InvalidRequest, parsed.Error.Code)

	resp, err := http.Get(n.srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&parsed))
	assert.Equal(t, InvalidRequest, parsed.Error.Code)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}

func TestServer_Batch(t *testing.T) {
	n := newTestNode(t, nil)
	resp := n.post(`[
		{"jsonrpc":"2.0","id":1,"method":"getHealth"},
		{"jsonrpc":"2.0","method":"getSlot"},
		{"jsonrpc":"2.0","id":"b","method":"getVersion"}
	]`)
	var out []response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.JSONEq(t, `"ok"`, string(out[0].Result))
	assert.JSONEq(t, `"b"`, string(out[1].ID))
}

func TestServer_NullResultIsPresent(t *testing.T) {
	n := newTestNode(t, nil)
	resp := n.post(`{"jsonrpc":"2.0","id":7,"method":"getTransaction","params":["` + types.Signature{}.String() + `"]}`)
	var raw map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	result, ok := raw["result"]
	require.True(t, ok)
	assert.Equal(t, "null", string(result))
}

func TestServer_RequestIDEchoed(t *testing.T) {
	n := newTestNode(t, nil)
	req, err := http.NewRequest(http.MethodPost, n.srv.URL, bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"getHealth"}`))
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "trace-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "trace-123", resp.Header.Get(RequestIDHeader))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_RateLimit(t *testing.T) {
	config := DefaultServerConfig()
	config.RateLimitRPS = 0.001
	config.RateLimitBurst = 2
	n := newTestNode(t, config)

	body := `{"jsonrpc":"2.0","id":1,"method":"getHealth"}`
	assert.Equal(t, http.StatusOK, n.post(body).StatusCode)
	assert.Equal(t, http.StatusOK, n.post(body).StatusCode)
	limited := n.post(body)
	assert.Equal(t, http.StatusTooManyRequests, limited.StatusCode)
	var out response
	require.NoError(t, json.NewDecoder(limited.Body).Decode(&out))
	assert.Equal(t, RateLimited, out.Error.Code)
}

func TestHandlers_AccountsAndBlockhash(t *testing.T) {
	n := newTestNode(t, nil)
	alice := newWallet("alice")

	var missing ContextualResult
	n.result("getAccountInfo", &missing, alice.pub.String(), map[string]string{"encoding": "base64"})
	assert.Nil(t, missing.Value)

	var sig string
	n.result("requestAirdrop", &sig, alice.pub.String(), 2*sol)
	assert.NotEmpty(t, sig)

	var balance struct {
		Context Context `json:"context"`
		Value   uint64  `json:"value"`
	}
	n.result("getBalance", &balance, alice.pub.String())
	assert.Equal(t, 2*sol, balance.Value)
	assert.Equal(t, uint64(1), balance.Context.Slot)

	var info struct {
		Value AccountInfoResult `json:"value"`
	}
	n.result("getAccountInfo", &info, alice.pub.String(), map[string]string{"encoding": "base64+zstd"})
	assert.Equal(t, 2*sol, info.Value.Lamports)
	assert.Equal(t, types.SystemProgramID.String(), info.Value.Owner)
	assert.Equal(t, EncodingBase64Zstd, info.Value.Data[1])

	var bh struct {
		Value BlockhashResult `json:"value"`
	}
	n.result("getLatestBlockhash", &bh)
	hash, height := n.ledger.LatestBlockhash()
	assert.Equal(t, hash.String(), bh.Value.Blockhash)
	assert.Equal(t, height+150, bh.Value.LastValidBlockHeight)

	var valid struct {
		Value bool `json:"value"`
	}
	n.result("isBlockhashValid", &valid, hash.String())
	assert.True(t, valid.Value)

	var slot uint64
	n.result("getSlot", &slot)
	assert.Equal(t, height, slot)

	var rent uint64
	n.result("getMinimumBalanceForRentExemption", &rent, savefi.VaultSize)
	assert.Equal(t, uint64(types.RentExemptMinimum(savefi.VaultSize)), rent)

	out := n.call("getAccountInfo", "not-a-key")
	require.NotNil(t, out.Error)
	assert.Equal(t, InvalidParams, out.Error.Code)

	out = n.call("getAccountInfo", alice.pub.String(), map[string]string{"encoding": "hex"})
	require.NotNil(t, out.Error)
	assert.Equal(t, UnsupportedEncoding, out.Error.Code)
}

func TestHandlers_AirdropDisabled(t *testing.T) {
	program, err := savefi.New(savefi.DefaultParams())
	require.NoError(t, err)
	registry := ledger.NewProgramRegistry()
	ledger.RegisterNativePrograms(registry, program)
	l := ledger.New(accounts.NewMemory(), registry)
	h := NewHandlers(l, savefi.DefaultParams(), nil)

	params, _ := json.Marshal([]interface{}{newWallet("a").pub.String(), 5})
	_, rpcErr := h.GetHandler("requestAirdrop")(context.Background(), params)
	require.NotNil(t, rpcErr)
	assert.Equal(t, InvalidRequest, rpcErr.Code)
}

func TestHandlers_VaultFlow(t *testing.T) {
	n := newTestNode(t, nil)
	admin, owner, mintKey := newWallet("admin"), newWallet("owner"), newWallet("receipt-mint")
	var sig string
	n.result("requestAirdrop", &sig, admin.pub.String(), 10*sol)
	n.result("requestAirdrop", &sig, owner.pub.String(), 10*sol)

	out := n.call("getVault", owner.pub.String())
	require.NotNil(t, out.Error)
	assert.Equal(t, KeyNotFound, out.Error.Code)
	assert.JSONEq(t, `{"err":{"Custom":6018}}`, mustJSON(t, out.Error.Data))

	out = n.call("getProtocolConfig")
	require.NotNil(t, out.Error)

	addrs, err := savefi.ProtocolAddresses(mintKey.pub)
	require.NoError(t, err)
	n.mustSend(admin, addrs.CreateReceiptMint(admin.pub, 9), mintKey)
	initMints, err := addrs.InitializeMints(admin.pub, 1)
	require.NoError(t, err)
	n.mustSend(admin, []types.Instruction{initMints})

	v, err := addrs.OwnerAccounts(owner.pub)
	require.NoError(t, err)
	openVault, err := addrs.InitializeVault(v, 10, 7)
	require.NoError(t, err)
	n.mustSend(owner, []types.Instruction{openVault})

	trade, err := addrs.ProcessTrade(v, sol)
	require.NoError(t, err)
	tradeSig := n.mustSend(owner, []types.Instruction{trade})

	var vault VaultResult
	n.result("getVault", &vault, owner.pub.String())
	assert.Equal(t, v.Vault.String(), vault.Address)
	assert.Equal(t, uint64(10), uint64(vault.SaveRate))
	assert.Equal(t, uint64(99_000_000), vault.Balance)
	assert.True(t, vault.IsLocked)
	assert.True(t, vault.IsActive)

	var cfg ProtocolConfigResult
	n.result("getProtocolConfig", &cfg)
	assert.Equal(t, admin.pub.String(), cfg.Admin)
	assert.Equal(t, mintKey.pub.String(), cfg.ReceiptMint)

	var fee FeeAccountResult
	n.result("getFeeAccount", &fee)
	assert.Equal(t, uint8(1), fee.FeeRate)
	assert.Equal(t, uint64(10_000_000), fee.CollectedFees)

	withdraw, err := addrs.Withdraw(v)
	require.NoError(t, err)
	out = n.send(owner, []types.Instruction{withdraw})
	require.NotNil(t, out.Error)
	assert.Equal(t, SendTransactionPreflightFailure, out.Error.Code)
	assert.Contains(t, out.Error.Message, "custom program error: 0x1775")
	var data struct {
		Err  json.RawMessage `json:"err"`
		Logs []string        `json:"logs"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustJSON(t, out.Error.Data)), &data))
	assert.JSONEq(t, `{"InstructionError":[0,{"Custom":6005}]}`, string(data.Err))

	var statuses struct {
		Value []*SignatureStatusResult `json:"value"`
	}
	n.result("getSignatureStatuses", &statuses, []string{tradeSig, types.Signature{}.String()})
	require.Len(t, statuses.Value, 2)
	require.NotNil(t, statuses.Value[0])
	assert.Nil(t, statuses.Value[0].Err)
	assert.Equal(t, CommitmentFinalized, statuses.Value[0].ConfirmationStatus)
	assert.Nil(t, statuses.Value[1])

	var tx TransactionRecordResult
	n.result("getTransaction", &tx, tradeSig)
	assert.True(t, tx.Success)
	assert.Equal(t, []string{savefi.InstructionProcessTrade}, tx.Instructions)
	require.Len(t, tx.ReturnData, 2)

	var hist []TransactionRecordResult
	n.result("getTransactionHistory", &hist, owner.pub.String(), map[string]int{"limit": 2})
	require.Len(t, hist, 2)
	assert.False(t, hist[0].Success)
	assert.Equal(t, "VaultLocked", hist[0].ErrorName)
	assert.Equal(t, tradeSig, hist[1].Signature)

	n.clock.Advance(7*24*time.Hour + time.Second)
	n.result("getVault", &vault, owner.pub.String())
	assert.False(t, vault.IsLocked)
	n.mustSend(owner, []types.Instruction{withdraw})
	n.result("getVault", &vault, owner.pub.String())
	assert.Zero(t, vault.Balance)
}

func TestHandlers_SendTransactionRejections(t *testing.T) {
	n := newTestNode(t, nil)

	out := n.call("sendTransaction", "!!!", map[string]string{"encoding": "base64"})
	require.NotNil(t, out.Error)
	assert.Equal(t, InvalidParams, out.Error.Code)

	alice := newWallet("alice")
	var sig string
	n.result("requestAirdrop", &sig, alice.pub.String(), sol)

	ix := types.Instruction{
		ProgramID: types.SystemProgramID,
		Accounts: []types.AccountMeta{
			{Pubkey: alice.pub, IsSigner: true, IsWritable: true},
			{Pubkey: newWallet("bob").pub, IsWritable: true},
		},
		Data: []byte{2, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0},
	}
	stale, err := types.NewTransaction([]types.Instruction{ix}, alice.pub, types.SHA256([]byte("old")))
	require.NoError(t, err)
	require.NoError(t, stale.Sign(alice.priv))
	raw, err := stale.Serialize()
	require.NoError(t, err)

	out = n.call("sendTransaction", EncodeBase58(raw))
	require.NotNil(t, out.Error)
	assert.Equal(t, SendTransactionPreflightFailure, out.Error.Code)
	assert.Contains(t, mustJSON(t, out.Error.Data), "BlockhashNotFound")

	first := n.send(alice, []types.Instruction{ix})
	require.Nil(t, first.Error)
}

func TestHandlers_ProgramParams(t *testing.T) {
	n := newTestNode(t, nil)
	var out ProgramParamsResult
	n.result("getProgramParams", &out)
	assert.Equal(t, savefi.ProgramID.String(), out.ProgramID)
	assert.Equal(t, savefi.DefaultParams(), out.Params)
}

func TestEncoding_ZstdRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("savefi"), 100)
	encoded, err := EncodeAccountData(data, EncodingBase64Zstd)
	require.NoError(t, err)
	decoded, err := DecodeAccountData(encoded[0].(string), EncodingBase64Zstd)
	require.NoError(t, err)
	assert.Equal(t, data, decoded)

	_, err = EncodeAccountData(make([]byte, 200), EncodingBase58)
	assert.Error(t, err)

	assert.Equal(t, []byte{3, 4}, SliceData([]byte{1, 2, 3, 4, 5}, &DataSlice{Offset: 2, Length: 2}))
	assert.Empty(t, SliceData([]byte{1}, &DataSlice{Offset: 5, Length: 1}))
}

func mustJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
