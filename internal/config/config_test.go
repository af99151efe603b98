package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.MessageCount != 10 {
		t.Fatalf("default message count: %d", cfg.MessageCount)
	}
	if cfg.MaxConcurrentPublishes != 5 {
		t.Fatalf("default concurrency: %d", cfg.MaxConcurrentPublishes)
	}
	if cfg.SubscriberFailRate != 0 {
		t.Fatalf("default fail rate: %v", cfg.SubscriberFailRate)
	}
	if cfg.PollInterval.D() != 2*time.Second || cfg.MaxStagnantTicks != 5 {
		t.Fatalf("default convergence tuning: %v/%d", cfg.PollInterval.D(), cfg.MaxStagnantTicks)
	}
	if errs := cfg.Normalize(); len(errs) != 0 {
		t.Fatalf("defaults should normalize cleanly: %v", errs)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "flocheck.json")
	data := []byte(`{"messageCount":100,"maxConcurrentPublishes":8,"pollInterval":"250ms","bus":{"driver":"amqp"}}`)
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MessageCount != 100 || cfg.MaxConcurrentPublishes != 8 {
		t.Fatalf("counts not loaded: %+v", cfg)
	}
	if cfg.PollInterval.D() != 250*time.Millisecond {
		t.Fatalf("poll interval: %v", cfg.PollInterval.D())
	}
	if cfg.Bus.Driver != BusAMQP {
		t.Fatalf("driver: %s", cfg.Bus.Driver)
	}
	// untouched fields keep defaults
	if cfg.Topic != "orders" || cfg.Bus.AMQP.Prefetch != 16 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "flocheck.yaml")
	data := []byte("messageCount: 20\nsubscriberFailRate: 0.25\nstartDelay: 0s\npollInterval: 500\nledger:\n  backend: redis\n  redisAddr: cache:6379\n")
	if err := os.WriteFile(file, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MessageCount != 20 || cfg.SubscriberFailRate != 0.25 {
		t.Fatalf("values not loaded: %+v", cfg)
	}
	if cfg.StartDelay.D() != 0 {
		t.Fatalf("start delay: %v", cfg.StartDelay.D())
	}
	if cfg.PollInterval.D() != 500*time.Millisecond {
		t.Fatalf("integer durations are milliseconds, got %v", cfg.PollInterval.D())
	}
	if cfg.Ledger.Backend != LedgerRedis || cfg.Ledger.RedisAddr != "cache:6379" {
		t.Fatalf("ledger: %+v", cfg.Ledger)
	}
}

func TestLoadBadDuration(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(file, []byte(`{"pollInterval":"soon"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(file); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("MESSAGE_COUNT", "42")
	t.Setenv("MAX_CONCURRENT_PUBLISHES", "3")
	t.Setenv("SUBSCRIBER_FAIL_RATE", "0.3")
	t.Setenv("FLOCHECK_POLL_INTERVAL_MS", "100")
	t.Setenv("FLOCHECK_LEDGER", "pebble")
	t.Setenv("ASPNETCORE_URLS", "http://+:5000")
	t.Setenv("FLOCHECK_AMQP_MAX_ATTEMPTS", "5")
	t.Setenv("FLOCHECK_DAPR_TIMEOUT_MS", "1500")
	FromEnv(&cfg)
	if cfg.MessageCount != 42 || cfg.MaxConcurrentPublishes != 3 {
		t.Fatalf("env override counts: %+v", cfg)
	}
	if cfg.SubscriberFailRate != 0.3 {
		t.Fatalf("env override fail rate: %v", cfg.SubscriberFailRate)
	}
	if cfg.PollInterval.D() != 100*time.Millisecond {
		t.Fatalf("env override poll: %v", cfg.PollInterval.D())
	}
	if cfg.Ledger.Backend != LedgerPebble {
		t.Fatalf("env override ledger: %s", cfg.Ledger.Backend)
	}
	if cfg.HTTPAddr != ":5000" {
		t.Fatalf("env override http addr: %s", cfg.HTTPAddr)
	}
	if cfg.Bus.AMQP.MaxAttempts != 5 {
		t.Fatalf("env override amqp attempts: %d", cfg.Bus.AMQP.MaxAttempts)
	}
	if cfg.Bus.Dapr.Timeout.D() != 1500*time.Millisecond {
		t.Fatalf("env override dapr timeout: %v", cfg.Bus.Dapr.Timeout.D())
	}
}

func TestFromEnvInvalidFallsBack(t *testing.T) {
	cfg := Default()
	t.Setenv("MESSAGE_COUNT", "ten")
	t.Setenv("MAX_CONCURRENT_PUBLISHES", "0")
	t.Setenv("SUBSCRIBER_FAIL_RATE", "1.5")
	t.Setenv("FLOCHECK_BUS", "carrier-pigeon")
	FromEnv(&cfg)
	errs := cfg.Normalize()
	if cfg.MessageCount != 10 {
		t.Fatalf("unparseable count should keep default, got %d", cfg.MessageCount)
	}
	if cfg.MaxConcurrentPublishes != 5 {
		t.Fatalf("zero concurrency should fall back, got %d", cfg.MaxConcurrentPublishes)
	}
	if cfg.SubscriberFailRate != 0 {
		t.Fatalf("out-of-range fail rate should fall back, got %v", cfg.SubscriberFailRate)
	}
	if cfg.Bus.Driver != BusEmbedded {
		t.Fatalf("unknown driver should fall back, got %s", cfg.Bus.Driver)
	}
	if len(errs) != 3 {
		t.Fatalf("want 3 fallbacks reported, got %d: %v", len(errs), errs)
	}
	for _, err := range errs {
		if !errors.Is(err, ErrInvalid) {
			t.Fatalf("fallback should wrap ErrInvalid: %v", err)
		}
	}
}

func TestNormalizeRouteAndKey(t *testing.T) {
	cfg := Default()
	cfg.Route = "deliveries"
	cfg.Topic = "payments"
	cfg.Normalize()
	if cfg.Route != "/deliveries" {
		t.Fatalf("route: %s", cfg.Route)
	}
	if cfg.Ledger.Key != "flocheck:ledger:payments" {
		t.Fatalf("ledger key: %s", cfg.Ledger.Key)
	}
}

func TestNormalizePebbleLedgerGetsDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/var/lib")
	cfg := Default()
	cfg.Ledger.Backend = LedgerPebble
	cfg.Normalize()
	if cfg.DataDir != "/var/lib/flocheck" {
		t.Fatalf("data dir: %s", cfg.DataDir)
	}

	cfg = Default()
	cfg.Normalize()
	if cfg.DataDir != "" {
		t.Fatalf("memory ledger should keep an empty data dir, got %s", cfg.DataDir)
	}
}

func TestListenAddrFromURLs(t *testing.T) {
	tests := map[string]string{
		"http://+:5000":                ":5000",
		"http://*:8081;https://*:8443": ":8081",
		"http://localhost:7000":        "localhost:7000",
		"http://example.com":           "",
	}
	for in, want := range tests {
		if got := listenAddrFromURLs(in); got != want {
			t.Errorf("listenAddrFromURLs(%q) = %q, want %q", in, got, want)
		}
	}
}
