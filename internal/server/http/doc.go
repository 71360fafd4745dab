// Package httpserver is the admin REST surface of a queue: health, status,
// add, run, filtered inventory, an SSE event stream and Prometheus metrics.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: cfg})
//	s := httpserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, "127.0.0.1:8080")
package httpserver
