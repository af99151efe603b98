// Package runtime wires a flocheck process together. Depending on the role
// and configuration it opens pebble, the delivery ledger, the failure policy,
// the subscriber handler and one bus driver. It exposes Open/Close, a health
// check, and Serve for the driver's background delivery loops.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(ctx, runtime.Options{Role: runtime.RoleRun, Config: cfg})
//	defer rt.Close()
//	go rt.Serve(ctx)
//	_ = rt.Publisher().Publish(ctx, cfg.PubsubName, cfg.Topic, event.Event{ID: 1})
package runtime
