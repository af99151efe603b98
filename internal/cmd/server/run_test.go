package serverrun

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/flocheck/internal/config"
	"github.com/rzbill/flocheck/internal/runtime"
	logpkg "github.com/rzbill/flocheck/pkg/log"
)

func testConfig() cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.StartDelay = 0
	cfg.PollInterval = cfgpkg.Duration(10 * time.Millisecond)
	cfg.MaxStagnantTicks = 3
	cfg.Bus.Embedded.MaxAttempts = 2
	cfg.Bus.Embedded.BackoffBase = cfgpkg.Duration(time.Millisecond)
	cfg.Bus.Embedded.BackoffCap = cfgpkg.Duration(5 * time.Millisecond)
	return cfg
}

func TestRunReportsLoss(t *testing.T) {
	cfg := testConfig()
	cfg.MessageCount = 20
	cfg.SubscriberFailRate = 0.25

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := Run(ctx, Options{
		Config:       cfg,
		Logger:       logpkg.NewNopLogger(),
		Report:       &out,
		ExitAfterRun: true,
		FailOnLoss:   true,
	})
	if !errors.Is(err, ErrLossDetected) {
		t.Fatalf("run error = %v, want ErrLossDetected", err)
	}
	report := out.String()
	if !strings.Contains(report, "Number of lost messages: 5") ||
		!strings.Contains(report, "Lost Order IDs: [1, 2, 3, 4, 5]") {
		t.Fatalf("report:\n%s", report)
	}
}

func TestRunCleanExit(t *testing.T) {
	cfg := testConfig()
	cfg.MessageCount = 15

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := Run(ctx, Options{Config: cfg, Logger: logpkg.NewNopLogger(), Report: &out, ExitAfterRun: true, FailOnLoss: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "All messages accounted for. No message loss detected.") {
		t.Fatalf("report:\n%s", out.String())
	}
}

func TestSubscribeRoleServesUntilCancel(t *testing.T) {
	cfg := testConfig()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Role: runtime.RoleSubscribe, Config: cfg, Logger: logpkg.NewNopLogger()})
	}()
	select {
	case err := <-done:
		t.Fatalf("subscribe returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("subscribe did not stop")
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.RejectExpr = "id >"
	err := Run(context.Background(), Options{Config: cfg, Logger: logpkg.NewNopLogger(), ExitAfterRun: true})
	if err == nil {
		t.Fatalf("expected error")
	}
}
