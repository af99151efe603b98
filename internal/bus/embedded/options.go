package embedded

import (
	"time"

	"github.com/rzbill/flocheck/pkg/log"
)

// Options tune the dispatcher. Zero values take the defaults.
type Options struct {
	// MaxAttempts is the number of deliveries before an event is
	// dead-lettered.
	MaxAttempts int
	// Workers bounds concurrent deliveries.
	Workers int
	// BackoffBase is the delay before the first redelivery; it doubles per
	// attempt up to BackoffCap.
	BackoffBase time.Duration
	BackoffCap  time.Duration
	// BatchSize is how many entries the dispatcher reads per pass.
	BatchSize int
	// Group names the dispatcher's durable cursor.
	Group  string
	Logger log.Logger
	// Now is the clock, for tests.
	Now func() time.Time
}

const (
	DefaultMaxAttempts = 3
	DefaultWorkers     = 4
	DefaultBackoffBase = 200 * time.Millisecond
	DefaultBackoffCap  = 5 * time.Second
	DefaultBatchSize   = 64
	DefaultGroup       = "dispatcher"
)

func (o *Options) withDefaults() {
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Workers < 1 {
		o.Workers = DefaultWorkers
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = DefaultBackoffCap
	}
	if o.BatchSize < 1 {
		o.BatchSize = DefaultBatchSize
	}
	if o.Group == "" {
		o.Group = DefaultGroup
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// backoff returns the delay before delivery attempt+1, where attempt is the
// number of deliveries already made (>= 1).
func (o *Options) backoff(attempt uint32) time.Duration {
	d := o.BackoffBase
	for i := uint32(1); i < attempt; i++ {
		d *= 2
		if d >= o.BackoffCap {
			return o.BackoffCap
		}
	}
	return min(d, o.BackoffCap)
}
