package serverrun

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/flocheck/internal/config"
	"github.com/rzbill/flocheck/internal/converge"
	"github.com/rzbill/flocheck/internal/harness"
	"github.com/rzbill/flocheck/internal/publish"
	"github.com/rzbill/flocheck/internal/runtime"
	grpcserver "github.com/rzbill/flocheck/internal/server/grpc"
	httpserver "github.com/rzbill/flocheck/internal/server/http"
	pebblestore "github.com/rzbill/flocheck/internal/storage/pebble"
	logpkg "github.com/rzbill/flocheck/pkg/log"
)

// ErrLossDetected is returned by Run when FailOnLoss is set and the report
// shows lost events.
var ErrLossDetected = errors.New("message loss detected")

type Options struct {
	Role   runtime.Role
	Config cfgpkg.Config
	Fsync  pebblestore.FsyncMode
	// Logger overrides the logger built from Config.Log.
	Logger logpkg.Logger
	// Report receives the delivery report. Defaults to stdout.
	Report io.Writer
	// ExitAfterRun returns once the run finishes instead of serving until
	// the context is cancelled.
	ExitAfterRun bool
	FailOnLoss   bool
}

// Run opens the runtime, starts the HTTP and gRPC servers and the bus
// delivery loops, and for roles that publish starts the run job. It blocks
// until ctx is cancelled or a signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.Role == "" {
		opts.Role = runtime.RoleRun
	}
	cfg := opts.Config

	procLogger := opts.Logger
	if procLogger == nil {
		var err error
		procLogger, err = logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			lvl := logpkg.InfoLevel
			if l, e := logpkg.ParseLevel(cfg.Log.Level); e == nil {
				lvl = l
			}
			procLogger = logpkg.NewLogger(logpkg.WithLevel(lvl), logpkg.WithFormatter(&logpkg.TextFormatter{}))
		}
		logpkg.RedirectStdLog(procLogger)
	}
	for _, fixed := range cfg.Normalize() {
		procLogger.Warn("config value replaced", logpkg.Err(fixed))
	}

	procLogger.Info("starting flocheck",
		logpkg.Str("role", string(opts.Role)),
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("grpc", cfg.GRPCAddr),
		logpkg.Str("bus", cfg.Bus.Driver),
		logpkg.Str("ledger", cfg.Ledger.Backend),
		logpkg.Int("message_count", cfg.MessageCount),
		logpkg.Int("max_concurrent_publishes", cfg.MaxConcurrentPublishes),
		logpkg.Float64("subscriber_fail_rate", cfg.SubscriberFailRate),
	)

	rt, err := runtime.Open(sctx, runtime.Options{Role: opts.Role, Config: cfg, Fsync: opts.Fsync, Logger: procLogger})
	if err != nil {
		return err
	}
	defer rt.Close()

	var hsrv *httpserver.Server
	var gsrv *grpcserver.Server
	var wg sync.WaitGroup
	if cfg.HTTPAddr != "" {
		hsrv = httpserver.New(rt, procLogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
				procLogger.Error("http server failed", logpkg.Err(err))
				stop()
			}
		}()
	}
	if cfg.GRPCAddr != "" {
		gsrv = grpcserver.New(rt, procLogger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gsrv.ListenAndServe(sctx, cfg.GRPCAddr); err != nil && sctx.Err() == nil {
				procLogger.Error("grpc server failed", logpkg.Err(err))
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := rt.Serve(sctx); err != nil && sctx.Err() == nil {
			procLogger.Error("delivery loop failed", logpkg.Err(err))
			stop()
		}
	}()

	runErr := func() error {
		if rt.Publisher() == nil {
			<-sctx.Done()
			return nil
		}
		job := &harness.Job{
			Count:          cfg.MessageCount,
			MaxConcurrency: cfg.MaxConcurrentPublishes,
			StartDelay:     cfg.StartDelay.D(),
			Pipeline: &publish.Pipeline{
				Publisher: rt.Publisher(),
				Pubsub:    cfg.PubsubName,
				Topic:     cfg.Topic,
				Logger:    procLogger,
			},
			Ledger: rt.ReconcileLedger(),
			Monitor: converge.Options{
				PollInterval:     cfg.PollInterval.D(),
				MaxStagnantTicks: cfg.MaxStagnantTicks,
			},
			Report: opts.Report,
			Logger: procLogger,
		}
		h := job.Start(sctx)
		if hsrv != nil {
			hsrv.SetRun(h)
		}
		res, err := h.Wait()
		if err != nil && sctx.Err() == nil {
			return fmt.Errorf("run %s: %w", h.RunID(), err)
		}
		if opts.FailOnLoss && res.Report != nil && res.Report.Lossy() {
			err = ErrLossDetected
		} else {
			err = nil
		}
		if opts.ExitAfterRun {
			return err
		}
		procLogger.Info("run finished, still serving", logpkg.Str("run_id", h.RunID()))
		<-sctx.Done()
		return err
	}()

	stop()
	if gsrv != nil {
		gsrv.Close()
	}
	if hsrv != nil {
		hsrv.Close()
	}
	wg.Wait()
	return runErr
}
