// Package runtime wires storage, config, and shared registries into a
// single-node Verbatim instance. It exposes Open/Close, a basic health
// check, and accessors to the per-session fragment logs used by the
// ingestion services.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	l := rt.Fragments("meeting-42")
//	_ = l.Append(context.Background(), frags)
package runtime
