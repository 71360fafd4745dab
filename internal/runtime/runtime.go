package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rzbill/bgq/internal/circuit"
	cfgpkg "github.com/rzbill/bgq/internal/config"
	"github.com/rzbill/bgq/internal/eventbus"
	"github.com/rzbill/bgq/internal/metrics"
	"github.com/rzbill/bgq/internal/queue"
	"github.com/rzbill/bgq/internal/retry"
	pebblestore "github.com/rzbill/bgq/internal/storage/pebble"
	"github.com/rzbill/bgq/internal/tasks"
	"github.com/rzbill/bgq/internal/taskstore"
	"github.com/rzbill/bgq/internal/taskstore/sqlite"
	"github.com/rzbill/bgq/internal/transport"
	"github.com/rzbill/bgq/pkg/log"
)

const (
	pebbleDirName  = "pebble"
	sqliteFileName = "queue.sqlite"
	pauseMetaKey   = "pause_until"
)

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	Logger log.Logger
	// HTTPClient overrides the client used for outbound calls.
	HTTPClient *http.Client
	// DisableAutoRun turns off add-time run triggers.
	DisableAutoRun bool
	Now            func() time.Time
}

// Runtime owns the store, circuit, transport and run coordinator of one queue.
type Runtime struct {
	config  cfgpkg.Config
	logger  log.Logger
	dataDir string

	db    *pebblestore.DB // nil for the sqlite backend
	store taskstore.Store
	meta  taskstore.MetaStore

	bus     *eventbus.Bus
	metrics *metrics.Metrics
	subs    []*eventbus.Subscription
	circuit *circuit.State
	client  *transport.Client
	queue   *queue.Queue
}

// Open initializes storage and wires the queue. Expired tasks are removed
// before it returns.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	rt := &Runtime{
		config:  cfg,
		logger:  logger.WithComponent("runtime"),
		dataDir: cfgpkg.ResolveDataDir(cfg.DataDir),
		metrics: metrics.New(),
	}
	rt.bus = eventbus.New(logger)
	rt.subs = rt.metrics.Subscribe(rt.bus)

	if err := rt.openStore(ctx, logger, now); err != nil {
		return nil, err
	}

	rt.circuit = circuit.New(
		circuit.WithClock(now),
		circuit.WithPersister(metaPersister{meta: rt.meta}),
		circuit.WithLogger(logger),
	)

	clientOpts := []transport.Option{transport.WithLogger(logger), transport.WithObserver(rt.metrics)}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, transport.WithHTTPClient(opts.HTTPClient))
	}
	rt.client = transport.New(transport.Config{
		SiteID:        cfg.SiteID,
		APIKey:        cfg.APIKey,
		APIURL:        cfg.TrackingAPIURL,
		UserAgent:     cfg.UserAgent,
		Timeout:       cfg.HTTP.Timeout(),
		PauseDuration: cfg.HTTP.Pause(),
		Retry: retry.Policy{
			BaseDelay:   cfg.Retry.BaseDelay(),
			MaxDelay:    cfg.Retry.MaxDelay(),
			Multiplier:  cfg.Retry.Multiplier,
			MaxAttempts: cfg.Retry.MaxAttempts,
		},
	}, rt.circuit, clientOpts...)

	rt.queue = queue.New(rt.store, tasks.NewRunner(rt.client, cfg.TrackingAPIURL, logger), queue.Options{
		MinTasksToRun:  cfg.Queue.MinTasksToRun,
		RunDelay:       cfg.Queue.RunDelay(),
		DisableAutoRun: opts.DisableAutoRun,
		TaskExpiry:     cfg.Queue.TaskExpiry(),
		Logger:         logger,
		Bus:            rt.bus,
		Now:            now,
	})

	if n, err := rt.queue.DeleteExpired(ctx); err != nil {
		rt.logger.Warn("failed to delete expired tasks", log.Err(err))
	} else if n > 0 {
		rt.logger.Info("removed expired tasks on open", log.Int("count", n))
		if c, ok := rt.store.(taskstore.Compactor); ok {
			if err := c.Compact(ctx); err != nil {
				rt.logger.Warn("failed to compact task store", log.Err(err))
			}
		}
	}
	if !cfg.HasCredentials() {
		rt.logger.Warn("site id or api key missing, tasks will stay queued")
	}
	rt.metrics.QueueDepth.Set(float64(rt.queue.Status(ctx).NumTasksInQueue))
	return rt, nil
}

func (r *Runtime) openStore(ctx context.Context, logger log.Logger, now func() time.Time) error {
	if err := os.MkdirAll(r.dataDir, 0o755); err != nil {
		return fmt.Errorf("runtime: create data dir: %w", err)
	}
	switch r.config.Storage.Backend {
	case cfgpkg.BackendSQLite:
		s, err := sqlite.Open(ctx, filepath.Join(r.dataDir, sqliteFileName), sqlite.Options{
			Queue:  r.config.Queue.Name,
			Logger: logger,
			Now:    now,
		})
		if err != nil {
			return err
		}
		r.store, r.meta = s, s
	default:
		fsync, err := pebblestore.ParseFsyncMode(r.config.Storage.Fsync)
		if err != nil {
			return err
		}
		db, err := pebblestore.Open(pebblestore.Options{
			DataDir:       filepath.Join(r.dataDir, pebbleDirName),
			Fsync:         fsync,
			FsyncInterval: r.config.Storage.FsyncInterval(),
			Metrics:       r.metrics,
		})
		if err != nil {
			return err
		}
		s, err := taskstore.Open(db, taskstore.Options{Queue: r.config.Queue.Name, Logger: logger, Now: now})
		if err != nil {
			_ = db.Close()
			return err
		}
		r.db, r.store, r.meta = db, s, s
	}
	r.logger.Info("task store opened",
		log.Str("backend", r.config.Storage.Backend), log.Str("data_dir", r.dataDir), log.Str("queue", r.config.Queue.Name))
	return nil
}

// Close stops the queue, abandons pending reissues and closes storage.
func (r *Runtime) Close() error {
	if r.queue != nil {
		r.queue.Close()
	}
	if r.client != nil {
		r.client.Close(false)
	}
	for _, s := range r.subs {
		s.Close()
	}
	var errs []error
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store == nil {
		return errors.New("store not open")
	}
	_, err := r.store.Inventory(ctx)
	return err
}

// RunEvery starts a pass every interval until ctx ends. A non-positive
// interval disables periodic runs and blocks until ctx ends.
func (r *Runtime) RunEvery(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.queue.Run(nil)
		}
	}
}

func (r *Runtime) Queue() *queue.Queue          { return r.queue }
func (r *Runtime) Circuit() *circuit.State      { return r.circuit }
func (r *Runtime) Metrics() *metrics.Metrics    { return r.metrics }
func (r *Runtime) Bus() *eventbus.Bus           { return r.bus }
func (r *Runtime) Store() taskstore.Store       { return r.store }
func (r *Runtime) Transport() *transport.Client { return r.client }
func (r *Runtime) DataDir() string              { return r.dataDir }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// metaPersister keeps the circuit pause end in the store's metadata so a
// restart stays paused.
type metaPersister struct {
	meta taskstore.MetaStore
}

func (p metaPersister) LoadPause() (time.Time, error) {
	b, err := p.meta.GetMeta(context.Background(), pauseMetaKey)
	if err != nil || len(b) == 0 {
		return time.Time{}, err
	}
	var t time.Time
	if err := t.UnmarshalText(b); err != nil {
		return time.Time{}, fmt.Errorf("runtime: decode %s: %w", pauseMetaKey, err)
	}
	return t, nil
}

func (p metaPersister) SavePause(until time.Time) error {
	if until.IsZero() {
		return p.meta.SetMeta(context.Background(), pauseMetaKey, []byte{})
	}
	b, err := until.UTC().MarshalText()
	if err != nil {
		return err
	}
	return p.meta.SetMeta(context.Background(), pauseMetaKey, b)
}
