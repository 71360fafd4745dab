package serverrun

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/bgq/internal/config"
	"github.com/rzbill/bgq/internal/runtime"
	httpserver "github.com/rzbill/bgq/internal/server/http"
	logpkg "github.com/rzbill/bgq/pkg/log"
)

type Options struct {
	Config cfgpkg.Config
	Logger logpkg.Logger
	// Addr overrides Config.Server.Addr.
	Addr string
	// HTTPClient overrides the client used for outbound calls.
	HTTPClient *http.Client
	// Ready, if set, is called with the listener address once serving.
	Ready func(addr net.Addr)
}

// Run opens the runtime, serves the admin API and starts a pass every
// queue.run_interval_ms. It blocks until ctx is cancelled or a signal
// arrives, then closes the runtime.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	addr := opts.Addr
	if addr == "" {
		addr = opts.Config.Server.Addr
	}

	rt, err := runtime.Open(sctx, runtime.Options{Config: opts.Config, Logger: logger, HTTPClient: opts.HTTPClient})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger.Info("starting bgq server",
		logpkg.Str("http", addr),
		logpkg.Str("data_dir", rt.DataDir()),
		logpkg.Str("backend", opts.Config.Storage.Backend),
		logpkg.Str("queue", opts.Config.Queue.Name),
		logpkg.Dur("run_interval", opts.Config.Queue.RunInterval()),
	)

	hsrv := httpserver.New(rt, logger)
	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return err
		}
		if opts.Ready != nil {
			opts.Ready(l.Addr())
		}
		return hsrv.Serve(gctx, l)
	})
	g.Go(func() error {
		return rt.RunEvery(gctx, opts.Config.Queue.RunInterval())
	})

	// One pass on startup drains what a previous process left behind.
	rt.Queue().Run(nil)

	err = g.Wait()
	hsrv.Close()
	logger.Info("bgq server stopped")
	return err
}
