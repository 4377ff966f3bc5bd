package libsql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"
)

// ReplicaEngine reads from a local copy of the primary's database and
// forwards everything else to the primary. The local copy only changes when
// Sync runs.
type ReplicaEngine struct {
	cfg    Config
	remote *RemoteEngine
	logger *slog.Logger

	mu    sync.RWMutex // held for reading while the local file is in use
	local *LocalEngine

	generation atomic.Int64
	syncs      singleflight.Group
	scheduler  *cron.Cron
	closed     atomic.Bool
}

var _ Engine = (*ReplicaEngine)(nil)

// OpenReplica opens the replica file at cfg.Path, pulling it from the primary
// at cfg.URL first if it does not exist yet.
func OpenReplica(ctx context.Context, cfg Config) (*ReplicaEngine, error) {
	if cfg.Path == "" || cfg.URL == "" {
		return nil, fmt.Errorf("libsql: embedded-replica mode requires both a database path and a primary URL")
	}
	remote, err := OpenRemote(ctx, cfg)
	if err != nil {
		return nil, err
	}
	r := &ReplicaEngine{
		cfg:    cfg,
		remote: remote,
		logger: cfg.logger(),
	}

	if _, err := os.Stat(cfg.Path); errors.Is(err, fs.ErrNotExist) {
		if err := r.Sync(ctx); err != nil {
			return nil, fmt.Errorf("libsql: initial replica sync: %w", err)
		}
	}
	if r.local == nil {
		local, err := OpenLocal(ctx, r.localConfig())
		if err != nil {
			return nil, err
		}
		r.local = local
	}

	if cfg.SyncSchedule != "" {
		if err := r.schedule(cfg.SyncSchedule); err != nil {
			r.local.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *ReplicaEngine) localConfig() Config {
	return Config{Mode: ModeLocal, Path: r.cfg.Path, Driver: r.cfg.Driver, Logger: r.logger}
}

func (r *ReplicaEngine) schedule(spec string) error {
	r.scheduler = cron.New()
	_, err := r.scheduler.AddFunc(spec, func() {
		if err := r.Sync(context.Background()); err != nil && !errors.Is(err, ErrClosed) {
			r.logger.Warn("libsql: scheduled replica sync failed", "path", r.cfg.Path, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("libsql: invalid sync schedule %q: %w", spec, err)
	}
	r.scheduler.Start()
	return nil
}

func (r *ReplicaEngine) Mode() Mode { return ModeEmbeddedReplica }

// Path returns the local replica file. Sync replaces it, so other handles
// opened on it stop seeing new data.
func (r *ReplicaEngine) Path() string { return r.cfg.Path }

// Generation is the primary generation the local copy was last synced to.
func (r *ReplicaEngine) Generation() int64 { return r.generation.Load() }

// Query serves reads from the local copy.
func (r *ReplicaEngine) Query(ctx context.Context, query string, args []Value) (*Result, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.local == nil {
		return nil, fmt.Errorf("libsql: replica %s is not available", r.cfg.Path)
	}
	return r.local.Query(ctx, query, args)
}

// Prepare forwards the statement to the primary.
func (r *ReplicaEngine) Prepare(ctx context.Context, query string) (Prepared, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	p, err := r.remote.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	return &replicaPrepared{replica: r, Prepared: p}, nil
}

// syncTimeout bounds one pull from the primary.
const syncTimeout = 2 * time.Minute

// Sync pulls the primary's database into the local copy when the primary has
// moved past the generation last synced. Concurrent calls share one pull.
// The pull is not tied to any one caller: a caller whose ctx ends stops
// waiting and gets ctx.Err(), while the others still get the pull's result.
func (r *ReplicaEngine) Sync(ctx context.Context) error {
	if r.closed.Load() {
		return ErrClosed
	}
	ch := r.syncs.DoChan("sync", func() (any, error) {
		pullCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), syncTimeout)
		defer cancel()
		return nil, r.pull(pullCtx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *ReplicaEngine) pull(ctx context.Context) error {
	path := r.cfg.Path
	tmpPath := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".sync-"+uuid.NewString())
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("libsql: create sync file: %w", err)
	}
	defer os.Remove(tmpPath)

	w := &countingWriter{w: f}
	gen, changed, err := r.remote.client.Snapshot(ctx, r.generation.Load(), w)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("libsql: write sync file: %w", closeErr)
	}
	if err != nil {
		return err
	}
	if !changed {
		r.logger.Debug("libsql: replica up to date", "path", path, "generation", gen)
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrClosed
	}
	if r.local != nil {
		if err := r.local.Close(); err != nil {
			return fmt.Errorf("libsql: close replica before swap: %w", err)
		}
		r.local = nil
	}
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		os.Remove(path + suffix)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("libsql: replace replica file: %w", err)
	}
	local, err := OpenLocal(ctx, r.localConfig())
	if err != nil {
		return err
	}
	r.local = local
	r.generation.Store(gen)

	r.logger.Info("libsql: replica synced",
		"path", path, "generation", gen, "size", humanize.Bytes(uint64(w.n)))
	return nil
}

func (r *ReplicaEngine) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	if r.scheduler != nil {
		<-r.scheduler.Stop().Done()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.local != nil {
		err = r.local.Close()
		r.local = nil
	}
	return errors.Join(err, r.remote.Close())
}

// replicaPrepared runs on the primary and, with ReadYourWrites, refreshes
// the local copy afterwards so the caller's next read observes the change.
// DDL reports no affected rows, so the sync is not conditional on them.
type replicaPrepared struct {
	Prepared
	replica *ReplicaEngine
}

func (p *replicaPrepared) Query(ctx context.Context, args []Value) (*Result, error) {
	res, err := p.Prepared.Query(ctx, args)
	if err != nil {
		return nil, err
	}
	if p.replica.cfg.ReadYourWrites {
		if err := p.replica.Sync(ctx); err != nil {
			p.replica.logger.Warn("libsql: sync after write failed", "path", p.replica.cfg.Path, "error", err)
		}
	}
	return res, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(b []byte) (int, error) {
	n, err := c.w.Write(b)
	c.n += int64(n)
	return n, err
}
