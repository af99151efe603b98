package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// newStatusCommand constructs the `status` command.
func newStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current run and, once finished, its delivery report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getJSON(cmd, baseURL()+"/v1/run")
		},
	}
	return cmd
}

// newLedgerCommand constructs the `ledger` command.
func newLedgerCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Show how many distinct ids the subscriber accepted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, _ := cmd.Flags().GetBool("ids")
			u := baseURL() + "/v1/ledger"
			if ids {
				u += "?ids=1"
			}
			return getJSON(cmd, u)
		},
	}
	cmd.Flags().Bool("ids", false, "Also list the accepted ids")
	return cmd
}

// newDeadLettersCommand constructs the `deadletters` command.
func newDeadLettersCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deadletters",
		Short: "List ids parked on the embedded bus dead-letter topic",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			u := baseURL() + "/v1/deadletters"
			if limit > 0 {
				u += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
			}
			return getJSON(cmd, u)
		},
	}
	cmd.Flags().Int("limit", 0, "Max ids to list (0 = all)")
	return cmd
}

// newHealthCommand constructs the `health` command, a grpc.health.v1 probe.
func newHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the gRPC health service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, _ := cmd.Flags().GetString("service")
			timeout, _ := cmd.Flags().GetDuration("timeout")
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return withHealthClient(func(cli healthpb.HealthClient) error {
				res, err := cli.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", res.GetStatus())
				if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
					return fmt.Errorf("not serving")
				}
				return nil
			})
		},
	}
	cmd.Flags().String("service", "", "Health service name (empty = overall)")
	cmd.Flags().Duration("timeout", 3*time.Second, "Probe timeout")
	return cmd
}
