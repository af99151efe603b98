// Package httpserver serves the subscriber's inbound delivery route, the
// Dapr subscription discovery route, health checks, and read-only views of
// the current run, the ledger and the embedded bus.
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Role: runtime.RoleSubscribe, Config: cfg})
//	s := httpserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, cfg.HTTPAddr)
package httpserver
