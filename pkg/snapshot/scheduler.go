package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fortiblox/savefi/pkg/accounts"
	"github.com/fortiblox/savefi/pkg/logging"
	"github.com/fortiblox/savefi/pkg/poh"
)

// Extension is the file suffix of snapshot archives.
const Extension = ".tar.zst"

// Source gives exclusive, consistent access to ledger state.
// *ledger.Ledger implements it.
type Source interface {
	View(fn func(db accounts.Store, chain *poh.Recorder) error) error
}

// Scheduler writes snapshots of a Source into a directory on a cron
// schedule and keeps only the newest Retain of them.
type Scheduler struct {
	cron   *cron.Cron
	source Source
	dir    string
	retain int
	log    logging.Logger
	now    func() time.Time

	mu   sync.Mutex
	last *Manifest
}

// NewScheduler creates a scheduler writing into dir. retain <= 0 keeps
// every snapshot.
func NewScheduler(source Source, dir string, retain int, log logging.Logger) *Scheduler {
	if log == nil {
		log = logging.Nop()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		source: source,
		dir:    dir,
		retain: retain,
		log:    log,
		now:    time.Now,
	}
}

// Register adds the snapshot task under a cron expression with a seconds
// field, e.g. "0 0 * * * *" for hourly.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return fmt.Errorf("register snapshot task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info(context.Background(), "snapshot scheduler started", "dir", s.dir)
}

// Stop stops the scheduler and waits for a running snapshot to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info(context.Background(), "snapshot scheduler stopped")
}

// Last returns the manifest of the newest snapshot this scheduler wrote.
func (s *Scheduler) Last() *Manifest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) run() {
	ctx := context.Background()
	path, m, err := s.TakeNow()
	if err != nil {
		s.log.Error(ctx, "snapshot failed", "error", err)
		return
	}
	s.log.Info(ctx, "snapshot written", "path", path, "height", m.Height, "accounts", m.AccountsCount)
}

// TakeNow writes a snapshot immediately and prunes old ones. The archive
// is written to a temporary file and renamed into place, so readers never
// see a partial snapshot.
func (s *Scheduler) TakeNow() (string, *Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, ".snapshot-*")
	if err != nil {
		return "", nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	var m *Manifest
	err = s.source.View(func(db accounts.Store, chain *poh.Recorder) error {
		var werr error
		m, werr = Write(tmp, db, chain, s.now())
		return werr
	})
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("snapshot: close: %w", cerr)
	}
	if err != nil {
		return "", nil, err
	}

	path := filepath.Join(s.dir, FileName(m))
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", nil, fmt.Errorf("snapshot: rename: %w", err)
	}
	s.last = m

	if err := s.prune(); err != nil {
		s.log.Warn(context.Background(), "failed to prune snapshots", "error", err)
	}
	return path, m, nil
}

// FileName names the archive of m: snapshot-<height>-<unix seconds>.tar.zst,
// zero-padded so names sort by height.
func FileName(m *Manifest) string {
	return fmt.Sprintf("snapshot-%020d-%d%s", m.Height, m.CreatedAt.Unix(), Extension)
}

// List returns the snapshot archives in dir, oldest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "snapshot-") || !strings.HasSuffix(name, Extension) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// Latest returns the newest snapshot archive in dir, or "" if there is none.
func Latest(dir string) (string, error) {
	all, err := List(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if len(all) == 0 {
		return "", nil
	}
	return all[len(all)-1], nil
}

func (s *Scheduler) prune() error {
	if s.retain <= 0 {
		return nil
	}
	all, err := List(s.dir)
	if err != nil {
		return err
	}
	for len(all) > s.retain {
		if err := os.Remove(all[0]); err != nil {
			return err
		}
		all = all[1:]
	}
	return nil
}
