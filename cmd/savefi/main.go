// SaveFi: single-node ledger hosting the SaveFi savings-vault program.
//
// The node keeps accounts in memory or in Badger, executes signed Solana
// transactions against the vault, token and system programs, and serves a
// Solana-compatible JSON-RPC API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortiblox/savefi/pkg/accounts"
	"github.com/fortiblox/savefi/pkg/config"
	"github.com/fortiblox/savefi/pkg/history"
	"github.com/fortiblox/savefi/pkg/ledger"
	"github.com/fortiblox/savefi/pkg/logging"
	"github.com/fortiblox/savefi/pkg/metrics"
	"github.com/fortiblox/savefi/pkg/poh"
	"github.com/fortiblox/savefi/pkg/rpc"
	"github.com/fortiblox/savefi/pkg/snapshot"
	"github.com/fortiblox/savefi/pkg/svm/programs/savefi"
	"github.com/fortiblox/savefi/pkg/types"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "dev"
	BuildTime = "unknown"
)

// Configuration flags
var (
	configFile       = flag.String("config", "savefi.yaml", "Path to YAML or JSON configuration file")
	dataDir          = flag.String("data-dir", "", "Badger account store directory (empty = in memory)")
	historyPath      = flag.String("history", "", "SQLite transaction history path (empty = in memory)")
	snapshotDir      = flag.String("snapshot-dir", "", "Snapshot directory")
	snapshotSchedule = flag.String("snapshot-schedule", "", "Snapshot cron schedule with seconds field")
	logLevel         = flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat        = flag.String("log-format", "", "Log format: text, json")
	rpcAddr          = flag.String("rpc-addr", "", "RPC server listen address")
	enableRPC        = flag.Bool("enable-rpc", false, "Enable JSON-RPC server")
	enableMetrics    = flag.Bool("enable-metrics", false, "Enable Prometheus metrics server")
	metricsAddr      = flag.String("metrics-addr", "", "Metrics server listen address")
	airdrops         = flag.Bool("airdrops", false, "Enable the requestAirdrop faucet")
	showVersion      = flag.Bool("version", false, "Print version and exit")
)

// applyFlags lets explicitly set CLI flags override config file values.
func applyFlags(cfg *config.Config) {
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	if set["data-dir"] {
		cfg.Ledger.DataDir = *dataDir
	}
	if set["airdrops"] {
		cfg.Ledger.Airdrops = *airdrops
	}
	if set["history"] {
		cfg.History.SQLitePath = *historyPath
	}
	if set["snapshot-dir"] {
		cfg.Snapshot.Dir = *snapshotDir
	}
	if set["snapshot-schedule"] {
		cfg.Snapshot.Schedule = *snapshotSchedule
	}
	if set["log-level"] {
		cfg.Log.Level = *logLevel
	}
	if set["log-format"] {
		cfg.Log.Format = *logFormat
	}
	if set["enable-rpc"] {
		cfg.RPC.Enabled = *enableRPC
	}
	if set["rpc-addr"] {
		cfg.RPC.Addr = *rpcAddr
	}
	if set["enable-metrics"] {
		cfg.Metrics.Enabled = *enableMetrics
	}
	if set["metrics-addr"] {
		cfg.Metrics.Addr = *metricsAddr
	}
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("savefi %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
		return
	}

	cfg, found, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if found {
		log.Info(ctx, "loaded configuration", "path", *configFile)
	} else {
		log.Info(ctx, "config file not found, using defaults", "path", *configFile)
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "node failed", "error", err)
		os.Exit(1)
	}
}

// run starts every component and blocks until ctx is done.
func run(ctx context.Context, cfg config.Config, log logging.Logger) error {
	db, err := openAccounts(ctx, cfg.Ledger.DataDir, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error(ctx, "failed to close account store", "error", err)
		}
	}()

	chain, err := restoreSnapshot(ctx, cfg.Snapshot.Dir, db, log)
	if err != nil {
		return err
	}

	rec, err := history.OpenSQLite(ctx, cfg.History.SQLitePath)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer rec.Close()

	params := cfg.Params()
	program, err := savefi.New(params)
	if err != nil {
		return err
	}
	registry := ledger.NewProgramRegistry()
	ledger.RegisterNativePrograms(registry, program)

	m := metrics.NewMetrics()
	opts := []ledger.Option{
		ledger.WithHistory(rec),
		ledger.WithMetrics(m),
		ledger.WithLogger(log.With("component", "ledger")),
		ledger.WithAirdrops(cfg.Ledger.Airdrops),
	}
	if chain != nil {
		opts = append(opts, ledger.WithChain(chain))
	}
	l := ledger.New(db, registry, opts...)

	if err := creditGenesis(ctx, db, cfg.Ledger.Genesis, log); err != nil {
		return err
	}

	handlers := rpc.NewHandlers(l, params, log.With("component", "rpc"))

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(m,
			metrics.WithAddr(cfg.Metrics.Addr),
			metrics.WithHealth(handlers.Health),
			metrics.WithLogger(log.With("component", "metrics")),
		)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer shutdown(log, "metrics server", srv.Stop)

		go metrics.NewCollector(m, db, l.Chain(), 15*time.Second).Run(ctx)
	}

	if cfg.RPC.Enabled {
		rc := rpc.DefaultServerConfig()
		rc.Address = cfg.RPC.Addr
		rc.AllowedOrigins = cfg.RPC.AllowedOrigins
		rc.RateLimitRPS = cfg.RPC.RateLimitRPS
		rc.RateLimitBurst = cfg.RPC.RateLimitBurst
		if rc.TrustedProxies, err = cfg.RPC.Proxies(); err != nil {
			return fmt.Errorf("rpc: %w", err)
		}
		rc.Logger = log.With("component", "rpc")
		srv := rpc.NewServer(rc, handlers)
		if err := srv.Start(); err != nil {
			return fmt.Errorf("start rpc server: %w", err)
		}
		defer shutdown(log, "rpc server", srv.Stop)
	}

	if cfg.Snapshot.Dir != "" {
		sched := snapshot.NewScheduler(l, cfg.Snapshot.Dir, cfg.Snapshot.Retain, log.With("component", "snapshot"))
		if cfg.Snapshot.Schedule != "" {
			if err := sched.Register(cfg.Snapshot.Schedule); err != nil {
				return err
			}
			sched.Start()
		}
		defer func() {
			sched.Stop()
			if path, _, err := sched.TakeNow(); err != nil {
				log.Error(context.Background(), "final snapshot failed", "error", err)
			} else {
				log.Info(context.Background(), "wrote final snapshot", "path", path)
			}
		}()
	}

	hash, height := l.LatestBlockhash()
	log.Info(ctx, "savefi node started",
		"version", Version,
		"program", savefi.ProgramID,
		"height", height,
		"blockhash", hash,
		"accounts", db.Count(),
	)

	<-ctx.Done()
	log.Info(context.Background(), "shutting down")
	return nil
}

func openAccounts(ctx context.Context, dir string, log logging.Logger) (accounts.Store, error) {
	if dir == "" {
		log.Info(ctx, "keeping accounts in memory")
		return accounts.NewMemory(), nil
	}
	db, err := accounts.OpenBadger(dir, log)
	if err != nil {
		return nil, fmt.Errorf("open account store %s: %w", dir, err)
	}
	log.Info(ctx, "opened account store", "path", dir, "accounts", db.Count())
	return db, nil
}

// restoreSnapshot loads the newest snapshot in dir into an empty store. It
// returns a nil chain when nothing was restored.
func restoreSnapshot(ctx context.Context, dir string, db accounts.Store, log logging.Logger) (*poh.Recorder, error) {
	if dir == "" || db.Count() > 0 {
		return nil, nil
	}
	path, err := snapshot.Latest(dir)
	if err != nil {
		return nil, fmt.Errorf("find snapshot: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	manifest, chain, err := snapshot.Load(path, db)
	if err != nil {
		return nil, fmt.Errorf("restore snapshot %s: %w", path, err)
	}
	log.Info(ctx, "restored snapshot",
		"path", path,
		"height", manifest.Height,
		"accounts", manifest.AccountsCount,
	)
	return chain, nil
}

// creditGenesis sets the configured starting balances when the store is
// empty.
func creditGenesis(ctx context.Context, db accounts.Store, genesis []config.GenesisAccount, log logging.Logger) error {
	if len(genesis) == 0 || db.Count() > 0 {
		return nil
	}
	refs := make([]types.AccountRef, 0, len(genesis))
	for _, g := range genesis {
		refs = append(refs, types.AccountRef{
			Pubkey:  g.Pubkey,
			Account: types.NewAccount(types.Lamports(g.Lamports), types.SystemProgramID),
		})
	}
	if err := db.Commit(refs); err != nil {
		return fmt.Errorf("credit genesis accounts: %w", err)
	}
	log.Info(ctx, "credited genesis accounts", "count", len(refs))
	return nil
}

func shutdown(log logging.Logger, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "failed to stop "+name, "error", err)
	}
}
