package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays environment variables onto cfg. Values that fail to parse
// are ignored, leaving the existing (default or file) value in place.
//
// The three run knobs keep their historical unprefixed names so existing
// deployment manifests work unchanged: MESSAGE_COUNT,
// MAX_CONCURRENT_PUBLISHES and SUBSCRIBER_FAIL_RATE.
func FromEnv(cfg *Config) {
	envInt("MESSAGE_COUNT", &cfg.MessageCount)
	envInt("MAX_CONCURRENT_PUBLISHES", &cfg.MaxConcurrentPublishes)
	if v := os.Getenv("SUBSCRIBER_FAIL_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.SubscriberFailRate = f
		}
	}
	envString("FLOCHECK_REJECT_EXPR", &cfg.RejectExpr)

	if v := os.Getenv("ASPNETCORE_URLS"); v != "" {
		if addr := listenAddrFromURLs(v); addr != "" {
			cfg.HTTPAddr = addr
		}
	}
	envString("FLOCHECK_HTTP_ADDR", &cfg.HTTPAddr)
	envString("FLOCHECK_GRPC_ADDR", &cfg.GRPCAddr)
	envString("FLOCHECK_DATA_DIR", &cfg.DataDir)

	envString("FLOCHECK_PUBSUB_NAME", &cfg.PubsubName)
	envString("FLOCHECK_TOPIC", &cfg.Topic)
	envString("FLOCHECK_ROUTE", &cfg.Route)

	envMillis("FLOCHECK_START_DELAY_MS", &cfg.StartDelay)
	envMillis("FLOCHECK_POLL_INTERVAL_MS", &cfg.PollInterval)
	envInt("FLOCHECK_MAX_STAGNANT_TICKS", &cfg.MaxStagnantTicks)

	envString("FLOCHECK_BUS", &cfg.Bus.Driver)
	envString("FLOCHECK_DAPR_ADDR", &cfg.Bus.Dapr.Addr)
	envMillis("FLOCHECK_DAPR_TIMEOUT_MS", &cfg.Bus.Dapr.Timeout)
	envString("FLOCHECK_AMQP_URL", &cfg.Bus.AMQP.URL)
	envString("FLOCHECK_AMQP_EXCHANGE", &cfg.Bus.AMQP.Exchange)
	envString("FLOCHECK_AMQP_QUEUE", &cfg.Bus.AMQP.Queue)
	envInt("FLOCHECK_AMQP_PREFETCH", &cfg.Bus.AMQP.Prefetch)
	envInt("FLOCHECK_AMQP_MAX_ATTEMPTS", &cfg.Bus.AMQP.MaxAttempts)
	envString("FLOCHECK_EMBEDDED_ENDPOINT", &cfg.Bus.Embedded.Endpoint)
	envInt("FLOCHECK_EMBEDDED_MAX_ATTEMPTS", &cfg.Bus.Embedded.MaxAttempts)
	envInt("FLOCHECK_EMBEDDED_WORKERS", &cfg.Bus.Embedded.Workers)
	envMillis("FLOCHECK_EMBEDDED_BACKOFF_BASE_MS", &cfg.Bus.Embedded.BackoffBase)
	envMillis("FLOCHECK_EMBEDDED_BACKOFF_CAP_MS", &cfg.Bus.Embedded.BackoffCap)

	envString("FLOCHECK_LEDGER", &cfg.Ledger.Backend)
	envString("FLOCHECK_REDIS_ADDR", &cfg.Ledger.RedisAddr)
	envString("FLOCHECK_LEDGER_KEY", &cfg.Ledger.Key)

	envString("FLOCHECK_LOG_LEVEL", &cfg.Log.Level)
	envString("FLOCHECK_LOG_FORMAT", &cfg.Log.Format)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func envMillis(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && ms >= 0 {
			*dst = Duration(time.Duration(ms) * time.Millisecond)
		}
	}
}

// listenAddrFromURLs turns the first entry of an ASP.NET-style URL list
// ("http://+:5000;https://...") into a listen address (":5000").
func listenAddrFromURLs(v string) string {
	first := strings.TrimSpace(strings.Split(v, ";")[0])
	// url.Parse rejects "+" and "*" as hosts.
	first = strings.Replace(first, "://+", "://0.0.0.0", 1)
	first = strings.Replace(first, "://*", "://0.0.0.0", 1)
	u, err := url.Parse(first)
	if err != nil || u.Port() == "" {
		return ""
	}
	host := u.Hostname()
	if host == "0.0.0.0" {
		host = ""
	}
	return host + ":" + u.Port()
}
