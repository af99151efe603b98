// Package config provides loading and environment overlay for the flocheck
// harness configuration. It exposes a Default() baseline, file loading
// (JSON or YAML), an environment overlay and Normalize, which swaps invalid
// values for their documented defaults.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/flocheck.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	for _, err := range cfg.Normalize() {
//	    logger.Warn("config fallback", log.Err(err))
//	}
package config
