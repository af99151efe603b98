// Package serverrun is the shared entrypoint the CLI uses to start a flocheck
// process in one of its roles, handling lifecycle and shutdown.
//
// Example:
//
//	cfg := config.Default()
//	_ = serverrun.Run(ctx, serverrun.Options{Role: runtime.RoleRun, Config: cfg})
package serverrun
