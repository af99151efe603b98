package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/rzbill/flocheck/internal/bus"
	amqpbus "github.com/rzbill/flocheck/internal/bus/amqp"
	"github.com/rzbill/flocheck/internal/bus/dapr"
	"github.com/rzbill/flocheck/internal/bus/embedded"
	cfgpkg "github.com/rzbill/flocheck/internal/config"
	"github.com/rzbill/flocheck/internal/inject"
	"github.com/rzbill/flocheck/internal/ledger"
	pebblestore "github.com/rzbill/flocheck/internal/storage/pebble"
	"github.com/rzbill/flocheck/internal/subscriber"
	"github.com/rzbill/flocheck/pkg/log"
)

// Role selects which sides of a run this process hosts.
type Role string

const (
	// RoleRun hosts both the publisher and the subscriber.
	RoleRun Role = "run"
	// RolePublish hosts only the publisher.
	RolePublish Role = "publish"
	// RoleSubscribe hosts only the subscriber.
	RoleSubscribe Role = "subscribe"
)

func (r Role) publishes() bool  { return r != RoleSubscribe }
func (r Role) subscribes() bool { return r != RolePublish }

// Options for building the Runtime.
type Options struct {
	Role   Role
	Config cfgpkg.Config
	Fsync  pebblestore.FsyncMode
	// InMemory keeps pebble state off disk. An empty Config.DataDir has the
	// same effect.
	InMemory bool
	Logger   log.Logger
}

// Runtime wires storage, the ledger, the bus driver and the subscriber for a
// single process.
type Runtime struct {
	role   Role
	config cfgpkg.Config
	logger log.Logger

	db        *pebblestore.DB
	ledger    ledger.Ledger
	policy    inject.Policy
	handler   *subscriber.Handler
	publisher bus.Publisher
	embedded  *embedded.Bus
	amqp      *amqpbus.Conn
	consumer  *amqpbus.Consumer
}

// ErrUnsharedLedger is returned when a publish-only process is configured
// with a ledger it cannot share with the separate subscriber process.
var ErrUnsharedLedger = errors.New("pebble ledger is private to one process; use redis to share it")

// Open builds every component the role and configuration call for. On error
// whatever was already opened is closed.
func Open(ctx context.Context, opts Options) (_ *Runtime, err error) {
	if opts.Role == "" {
		opts.Role = RoleRun
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}
	cfg := opts.Config
	embeddedBus := cfg.Bus.Driver == cfgpkg.BusEmbedded && opts.Role.publishes()
	inProcess := embeddedBus && cfg.Bus.Embedded.Endpoint == ""
	// Pebble holds an exclusive lock on its directory, so the subscriber
	// process and this one can never open the same ledger.
	if opts.Role == RolePublish && !inProcess && cfg.Ledger.Backend == cfgpkg.LedgerPebble {
		return nil, fmt.Errorf("%w: %w", cfgpkg.ErrInvalid, ErrUnsharedLedger)
	}

	r := &Runtime{role: opts.Role, config: cfg, logger: logger}
	defer func() {
		if err != nil {
			_ = r.Close()
		}
	}()

	if embeddedBus || cfg.Ledger.Backend == cfgpkg.LedgerPebble {
		r.db, err = pebblestore.Open(pebblestore.Options{
			DataDir:  cfg.DataDir,
			InMemory: opts.InMemory || cfg.DataDir == "",
			Fsync:    opts.Fsync,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	if r.ledger, err = openLedger(ctx, cfg, r.db); err != nil {
		return nil, err
	}

	r.policy, err = inject.NewPolicy(cfg.RejectExpr, cfg.MessageCount, cfg.SubscriberFailRate)
	if err != nil {
		return nil, err
	}

	if opts.Role.subscribes() || inProcess {
		r.handler = subscriber.NewHandler(r.policy, r.ledger, logger)
	}

	switch cfg.Bus.Driver {
	case cfgpkg.BusEmbedded:
		if embeddedBus {
			ec := cfg.Bus.Embedded
			r.embedded = embedded.New(r.db, embedded.Options{
				MaxAttempts: ec.MaxAttempts,
				Workers:     ec.Workers,
				BackoffBase: ec.BackoffBase.D(),
				BackoffCap:  ec.BackoffCap.D(),
				Logger:      logger,
			})
			r.publisher = r.embedded
		}
	case cfgpkg.BusDapr:
		if opts.Role.publishes() {
			client := &http.Client{Timeout: cfg.Bus.Dapr.Timeout.D()}
			r.publisher = dapr.NewPublisher(cfg.Bus.Dapr.Addr, dapr.WithHTTPClient(client))
		}
	case cfgpkg.BusAMQP:
		ac := cfg.Bus.AMQP
		topo := amqpbus.Topology{Exchange: ac.Exchange, Queue: ac.Queue, Topic: cfg.Topic}
		if r.amqp, err = amqpbus.Dial(ac.URL, topo); err != nil {
			return nil, err
		}
		if opts.Role.publishes() {
			if r.publisher, err = amqpbus.NewPublisher(r.amqp.Publish, ac.Exchange, 0); err != nil {
				return nil, err
			}
		}
		if opts.Role.subscribes() {
			r.consumer = &amqpbus.Consumer{
				Channel:     r.amqp.Consume,
				Topology:    topo,
				Prefetch:    ac.Prefetch,
				MaxAttempts: ac.MaxAttempts,
				Logger:      logger,
			}
		}
	default:
		return nil, fmt.Errorf("%w: bus driver %q", cfgpkg.ErrInvalid, cfg.Bus.Driver)
	}
	return r, nil
}

func openLedger(ctx context.Context, cfg cfgpkg.Config, db *pebblestore.DB) (ledger.Ledger, error) {
	switch cfg.Ledger.Backend {
	case cfgpkg.LedgerMemory, "":
		return ledger.NewMemory(), nil
	case cfgpkg.LedgerPebble:
		return ledger.OpenPebble(db, cfg.Ledger.Key)
	case cfgpkg.LedgerRedis:
		return ledger.DialRedis(ctx, cfg.Ledger.RedisAddr, cfg.Ledger.Key)
	default:
		return nil, fmt.Errorf("%w: ledger backend %q", cfgpkg.ErrInvalid, cfg.Ledger.Backend)
	}
}

// Serve runs the background delivery loops this process owns: the embedded
// dispatcher and the AMQP consumer. A dapr subscriber is pushed to over HTTP
// and needs no loop. Serve returns nil once ctx is done.
func (r *Runtime) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	cfg := r.config
	if r.embedded != nil {
		var h bus.Handler = r.handler
		if ep := cfg.Bus.Embedded.Endpoint; ep != "" {
			h = &embedded.HTTPHandler{URL: ep, Pubsub: cfg.PubsubName, Topic: cfg.Topic}
		}
		g.Go(func() error { return r.embedded.Dispatch(ctx, cfg.PubsubName, cfg.Topic, h) })
	}
	if r.consumer != nil {
		g.Go(func() error { return r.consumer.Consume(ctx, r.handler) })
	}
	return g.Wait()
}

// Close closes underlying resources.
func (r *Runtime) Close() error {
	var errs []error
	if r.amqp != nil {
		errs = append(errs, r.amqp.Close())
	}
	if r.ledger != nil {
		errs = append(errs, r.ledger.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

// CheckHealth probes the store and the ledger.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db != nil {
		it, err := r.db.NewIter(nil)
		if err != nil {
			return err
		}
		it.Close()
	}
	if r.ledger == nil {
		return errors.New("ledger not open")
	}
	if _, err := r.ledger.Count(ctx); err != nil {
		return fmt.Errorf("ledger: %w", err)
	}
	return nil
}

// ReconcileLedger returns the ledger this process can reconcile a run
// against, or nil when the accepted ids are out of reach: a publish-only
// process with no in-process subscriber can only read a redis ledger.
func (r *Runtime) ReconcileLedger() ledger.Ledger {
	if r.role == RolePublish && r.handler == nil && r.config.Ledger.Backend != cfgpkg.LedgerRedis {
		return nil
	}
	return r.ledger
}

func (r *Runtime) Role() Role { return r.role }

// Ledger is the accepted-id set the subscriber records into.
func (r *Runtime) Ledger() ledger.Ledger { return r.ledger }

// Subscriber is nil when this process hosts no receiving side.
func (r *Runtime) Subscriber() *subscriber.Handler { return r.handler }

// Publisher is nil for RoleSubscribe.
func (r *Runtime) Publisher() bus.Publisher { return r.publisher }

// Embedded is the in-process bus, or nil for other drivers.
func (r *Runtime) Embedded() *embedded.Bus { return r.embedded }

// DB exposes the underlying DB for advanced operations (internal use only).
// It is nil when nothing needed pebble.
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

func (r *Runtime) Logger() log.Logger { return r.logger }
