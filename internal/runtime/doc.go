// Package runtime wires storage, the circuit, the HTTP transport and the run
// coordinator into one queue instance. A Runtime is an explicit context
// object: callers open it, hand it to the server or CLI, and close it.
//
// Example:
//
//	cfg := config.Default()
//	cfg.SiteID, cfg.APIKey = "site", "key"
//	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg})
//	if err != nil { ... }
//	defer rt.Close()
//	_, _ = rt.Queue().AddTask(ctx, tasks.TypeTrackEvent, tasks.TrackEvent{Identifier: "u1", Name: "tapped"})
package runtime
