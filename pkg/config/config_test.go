package config

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortiblox/savefi/pkg/svm/programs/savefi"
	"github.com/fortiblox/savefi/pkg/types"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, found, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, savefi.DefaultParams(), cfg.Params())
}

func TestLoad_YAML(t *testing.T) {
	admin := types.Pubkey{1, 2, 3}
	path := writeFile(t, "node.yaml", `
ledger:
  data_dir: /var/lib/savefi
  airdrops: true
  genesis:
    - pubkey: `+admin.String()+`
      lamports: 5000000000
rpc:
  addr: 127.0.0.1:8899
  rate_limit_rps: 50
  rate_limit_burst: 100
snapshot:
  dir: /var/lib/savefi/snapshots
  schedule: "0 0 * * * *"
log:
  level: debug
  format: json
program:
  trade_gating: allowance
  day_window: rolling
  admin: `+admin.String()+`
  params:
    daily_limit: 20000000000
`)

	cfg, found, err := Load(path)
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/var/lib/savefi", cfg.Ledger.DataDir)
	assert.True(t, cfg.Ledger.Airdrops)
	require.Len(t, cfg.Ledger.Genesis, 1)
	assert.Equal(t, admin, cfg.Ledger.Genesis[0].Pubkey)
	assert.Equal(t, uint64(5_000_000_000), cfg.Ledger.Genesis[0].Lamports)
	assert.Equal(t, "127.0.0.1:8899", cfg.RPC.Addr)
	assert.True(t, cfg.RPC.Enabled, "unset fields keep their defaults")
	assert.Equal(t, "json", cfg.Log.Format)

	p := cfg.Params()
	assert.Equal(t, savefi.TradeGatingAllowance, p.TradeGating)
	assert.Equal(t, savefi.DayWindowRolling, p.DayWindow)
	assert.Equal(t, admin, p.Admin)
	assert.Equal(t, uint64(20_000_000_000), p.DailyLimit)
	assert.Equal(t, uint8(20), p.MaxSaveRate)
}

func TestLoad_JSON(t *testing.T) {
	path := writeFile(t, "node.json", `{"metrics":{"enabled":false},"history":{"sqlite_path":"h.db"}}`)
	cfg, found, err := Load(path)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "h.db", cfg.History.SQLitePath)
}

func TestLoad_Errors(t *testing.T) {
	_, _, err := Load(writeFile(t, "node.toml", "x = 1"))
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, _, err = Load(writeFile(t, "node.yaml", "rpc: [not, a, map]"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"rpc without addr", func(c *Config) { c.RPC.Addr = "" }},
		{"metrics without addr", func(c *Config) { c.Metrics.Addr = "" }},
		{"negative rate limit", func(c *Config) { c.RPC.RateLimitRPS = -1 }},
		{"bad trusted proxy", func(c *Config) { c.RPC.TrustedProxies = []string{"proxy.local"} }},
		{"schedule without dir", func(c *Config) { c.Snapshot.Schedule = "@hourly" }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"bad gating", func(c *Config) { c.Program.TradeGating = "sometimes" }},
		{"daily limit below max", func(c *Config) { c.Program.Params.DailyLimit = 1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestRPCProxies(t *testing.T) {
	rc := RPCConfig{TrustedProxies: []string{"10.0.0.0/8", "192.168.1.5", "::ffff:172.16.0.1"}}
	got, err := rc.Proxies()
	require.NoError(t, err)
	assert.Equal(t, []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.168.1.5/32"),
		netip.MustParsePrefix("172.16.0.1/32"),
	}, got)

	got, err = RPCConfig{}.Proxies()
	require.NoError(t, err)
	assert.Empty(t, got)
}
