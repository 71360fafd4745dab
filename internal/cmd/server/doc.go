// Package serverrun exposes the Run entrypoint used by `bgq serve`: it opens
// the runtime, serves the admin HTTP API and drives periodic queue passes
// until shutdown.
//
// Example:
//
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: config.Default()})
package serverrun
