// Package httpserver provides the REST gateway for Verbatim: JSON
// endpoints for session management, transcript submission and queries, an
// SSE tail stream, alert/stat listings, and the Prometheus scrape
// endpoint.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(rt, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
