// Package config loads the node configuration from a YAML or JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fortiblox/savefi/pkg/logging"
	"github.com/fortiblox/savefi/pkg/svm/programs/savefi"
	"github.com/fortiblox/savefi/pkg/types"
)

// Config is the node configuration.
type Config struct {
	Ledger   LedgerConfig   `json:"ledger" yaml:"ledger"`
	RPC      RPCConfig      `json:"rpc" yaml:"rpc"`
	Metrics  MetricsConfig  `json:"metrics" yaml:"metrics"`
	History  HistoryConfig  `json:"history" yaml:"history"`
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Program  ProgramConfig  `json:"program" yaml:"program"`
}

// LedgerConfig holds account storage and faucet settings.
type LedgerConfig struct {
	// DataDir holds the Badger account store. Empty keeps accounts in memory.
	DataDir string `json:"data_dir" yaml:"data_dir"`
	// Airdrops enables the requestAirdrop faucet.
	Airdrops bool `json:"airdrops" yaml:"airdrops"`
	// Genesis lists balances credited when the ledger starts empty.
	Genesis []GenesisAccount `json:"genesis" yaml:"genesis"`
}

// GenesisAccount is a starting balance.
type GenesisAccount struct {
	Pubkey   types.Pubkey `json:"pubkey" yaml:"pubkey"`
	Lamports uint64       `json:"lamports" yaml:"lamports"`
}

// RPCConfig holds JSON-RPC server settings.
type RPCConfig struct {
	Enabled        bool     `json:"enabled" yaml:"enabled"`
	Addr           string   `json:"addr" yaml:"addr"`
	AllowedOrigins []string `json:"allowed_origins" yaml:"allowed_origins"`
	RateLimitRPS   float64  `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int      `json:"rate_limit_burst" yaml:"rate_limit_burst"`
	// TrustedProxies lists proxy IPs or CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string `json:"trusted_proxies" yaml:"trusted_proxies"`
}

// Proxies parses TrustedProxies. A bare IP becomes a single-address prefix.
func (r RPCConfig) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(r.TrustedProxies))
	for _, spec := range r.TrustedProxies {
		if p, err := netip.ParsePrefix(spec); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(spec)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: not an IP or CIDR", spec)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

// HistoryConfig holds transaction history settings.
type HistoryConfig struct {
	// SQLitePath is the history database. Empty keeps history in memory.
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`
}

// SnapshotConfig holds ledger snapshot settings.
type SnapshotConfig struct {
	Dir string `json:"dir" yaml:"dir"`
	// Schedule is a cron expression with a seconds field. Empty disables
	// scheduled snapshots.
	Schedule string `json:"schedule" yaml:"schedule"`
	Retain   int    `json:"retain" yaml:"retain"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// ProgramConfig holds the savings-vault program settings.
type ProgramConfig struct {
	// Params overrides individual platform constants; zero fields keep the
	// defaults.
	Params      ParamOverrides     `json:"params" yaml:"params"`
	TradeGating savefi.TradeGating `json:"trade_gating" yaml:"trade_gating"`
	DayWindow   savefi.DayWindow   `json:"day_window" yaml:"day_window"`
	Admin       types.Pubkey       `json:"admin" yaml:"admin"`
}

// ParamOverrides are optional platform constant overrides.
type ParamOverrides struct {
	MaxSaveRate            uint8  `json:"max_save_rate" yaml:"max_save_rate"`
	MaxLockDays            uint8  `json:"max_lock_days" yaml:"max_lock_days"`
	MaxFeeRate             uint8  `json:"max_fee_rate" yaml:"max_fee_rate"`
	MinDelegation          uint64 `json:"min_delegation" yaml:"min_delegation"`
	MaxDelegation          uint64 `json:"max_delegation" yaml:"max_delegation"`
	DailyLimit             uint64 `json:"daily_limit" yaml:"daily_limit"`
	SubscriptionFee        uint64 `json:"subscription_fee" yaml:"subscription_fee"`
	SubscriptionPeriodDays uint8  `json:"subscription_period_days" yaml:"subscription_period_days"`
	MaxTransactionsPerDay  uint32 `json:"max_transactions_per_day" yaml:"max_transactions_per_day"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		RPC: RPCConfig{
			Enabled:        true,
			Addr:           ":8899",
			AllowedOrigins: []string{"*"},
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Snapshot: SnapshotConfig{
			Retain: 5,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
		Program: ProgramConfig{
			TradeGating: savefi.TradeGatingPerTrade,
			DayWindow:   savefi.DayWindowCalendar,
		},
	}
}

// ErrUnknownFormat is returned for config files that are neither YAML nor JSON.
var ErrUnknownFormat = errors.New("config: unknown file format")

// Load reads the file at path over the defaults. A missing file is not an
// error; found reports whether one was read.
func Load(path string) (cfg Config, found bool, err error) {
	cfg = Default()
	if path == "" {
		return cfg, false, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, false, nil
		}
		return cfg, false, fmt.Errorf("config: read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return cfg, false, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	if err != nil {
		return cfg, false, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, true, nil
}

// Params returns the program parameters: the defaults with the configured
// overrides applied.
func (c *Config) Params() savefi.Params {
	p := savefi.DefaultParams()
	o := c.Program.Params
	if o.MaxSaveRate != 0 {
		p.MaxSaveRate = o.MaxSaveRate
	}
	if o.MaxLockDays != 0 {
		p.MaxLockDays = o.MaxLockDays
	}
	if o.MaxFeeRate != 0 {
		p.MaxFeeRate = o.MaxFeeRate
	}
	if o.MinDelegation != 0 {
		p.MinDelegation = o.MinDelegation
	}
	if o.MaxDelegation != 0 {
		p.MaxDelegation = o.MaxDelegation
	}
	if o.DailyLimit != 0 {
		p.DailyLimit = o.DailyLimit
	}
	if o.SubscriptionFee != 0 {
		p.SubscriptionFee = o.SubscriptionFee
	}
	if o.SubscriptionPeriodDays != 0 {
		p.SubscriptionPeriodDays = o.SubscriptionPeriodDays
	}
	if o.MaxTransactionsPerDay != 0 {
		p.MaxTransactionsPerDay = o.MaxTransactionsPerDay
	}
	if c.Program.TradeGating != "" {
		p.TradeGating = c.Program.TradeGating
	}
	if c.Program.DayWindow != "" {
		p.DayWindow = c.Program.DayWindow
	}
	p.Admin = c.Program.Admin
	return p
}

// Validate checks the configuration for values the node cannot run with.
func (c *Config) Validate() error {
	if c.RPC.Enabled && c.RPC.Addr == "" {
		return fmt.Errorf("config: rpc.addr is required when rpc is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("config: metrics.addr is required when metrics are enabled")
	}
	if c.RPC.RateLimitRPS < 0 || c.RPC.RateLimitBurst < 0 {
		return fmt.Errorf("config: rpc rate limit must not be negative")
	}
	if _, err := c.RPC.Proxies(); err != nil {
		return fmt.Errorf("config: rpc.%w", err)
	}
	if c.Snapshot.Schedule != "" && c.Snapshot.Dir == "" {
		return fmt.Errorf("config: snapshot.dir is required for scheduled snapshots")
	}
	if c.Snapshot.Retain < 0 {
		return fmt.Errorf("config: snapshot.retain must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("config: program params: %w", err)
	}
	return nil
}
