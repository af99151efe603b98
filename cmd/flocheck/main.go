package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	clientcmd "github.com/rzbill/flocheck/internal/cmd/client"
	serverrun "github.com/rzbill/flocheck/internal/cmd/server"
	cfgpkg "github.com/rzbill/flocheck/internal/config"
	"github.com/rzbill/flocheck/internal/runtime"
	pebblestore "github.com/rzbill/flocheck/internal/storage/pebble"
	logpkg "github.com/rzbill/flocheck/pkg/log"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flocheck",
		Short: "Pub/sub delivery verification harness",
		Long: "flocheck publishes a known population of events through a pub/sub channel, " +
			"injects subscriber failures, and reports which events were never accepted.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", os.Getenv("FLOCHECK_CONFIG"), "Config file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug|info|warn|error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text|json")
	rootCmd.PersistentFlags().String("api", envOr("FLOCHECK_API", "http://127.0.0.1:8080"), "HTTP base URL for client commands")

	rootCmd.AddCommand(
		newRoleCommand(runtime.RoleRun, "Publish, subscribe and report in one process"),
		newRoleCommand(runtime.RolePublish, "Publish the run and report if the ledger is shared"),
		newRoleCommand(runtime.RoleSubscribe, "Serve the inbound delivery endpoint"),
	)
	for _, c := range clientcmd.Commands(func() string {
		u, _ := rootCmd.PersistentFlags().GetString("api")
		return u
	}) {
		rootCmd.AddCommand(c)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		if errors.Is(err, serverrun.ErrLossDetected) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRoleCommand(role runtime.Role, short string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(role),
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			fsync, err := parseFsync(cmd)
			if err != nil {
				return err
			}
			exit, _ := cmd.Flags().GetBool("exit")
			failOnLoss, _ := cmd.Flags().GetBool("fail-on-loss")
			return serverrun.Run(cmd.Context(), serverrun.Options{
				Role:         role,
				Config:       cfg,
				Fsync:        fsync,
				Report:       cmd.OutOrStdout(),
				ExitAfterRun: exit,
				FailOnLoss:   failOnLoss,
			})
		},
	}
	f := cmd.Flags()
	f.Int("message-count", 0, "Number of events to publish (ids 1..N)")
	f.Int("max-concurrent", 0, "Max publishes in flight")
	f.Float64("fail-rate", 0, "Fraction of the lowest ids the subscriber rejects")
	f.String("reject-expr", "", "CEL rejection predicate over id, total, fail_rate and threshold")
	f.String("http", "", "HTTP listen address")
	f.String("grpc", "", "gRPC health listen address (empty disables)")
	f.String("bus", "", "Bus driver: embedded|dapr|amqp")
	f.String("ledger", "", "Ledger backend: memory|pebble|redis")
	f.String("data-dir", "", "Pebble data directory (empty keeps embedded bus state in memory; a pebble ledger defaults to the user data dir)")
	f.String("fsync", "interval", "Fsync mode: always|interval|never")
	if role != runtime.RoleSubscribe {
		f.Bool("exit", false, "Exit after the report instead of serving until interrupted")
		f.Bool("fail-on-loss", false, "Exit with status 2 when the report shows loss")
	}
	return cmd
}

// loadConfig layers defaults, the config file, the environment and finally
// explicitly set flags.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, fmt.Errorf("load config: %w", err)
	}
	cfgpkg.FromEnv(&cfg)

	f := cmd.Flags()
	if f.Changed("message-count") {
		cfg.MessageCount, _ = f.GetInt("message-count")
	}
	if f.Changed("max-concurrent") {
		cfg.MaxConcurrentPublishes, _ = f.GetInt("max-concurrent")
	}
	if f.Changed("fail-rate") {
		cfg.SubscriberFailRate, _ = f.GetFloat64("fail-rate")
	}
	setString := func(flag string, dst *string) {
		if f.Changed(flag) {
			*dst, _ = f.GetString(flag)
		}
	}
	setString("reject-expr", &cfg.RejectExpr)
	setString("http", &cfg.HTTPAddr)
	setString("grpc", &cfg.GRPCAddr)
	setString("bus", &cfg.Bus.Driver)
	setString("ledger", &cfg.Ledger.Backend)
	setString("data-dir", &cfg.DataDir)
	setString("log-level", &cfg.Log.Level)
	setString("log-format", &cfg.Log.Format)
	if _, err := logpkg.ParseLevel(cfg.Log.Level); err != nil {
		return cfgpkg.Config{}, err
	}
	return cfg, nil
}

func parseFsync(cmd *cobra.Command) (pebblestore.FsyncMode, error) {
	mode, _ := cmd.Flags().GetString("fsync")
	switch mode {
	case "always":
		return pebblestore.FsyncModeAlways, nil
	case "interval":
		return pebblestore.FsyncModeInterval, nil
	case "never":
		return pebblestore.FsyncModeNever, nil
	default:
		return 0, fmt.Errorf("invalid --fsync %q; use always|interval|never", mode)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
