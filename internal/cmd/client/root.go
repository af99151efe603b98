package client

import (
	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewRoot constructs a root Cobra command holding the client commands.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "flocheck",
		Short: "flocheck client commands",
	}
	for _, c := range Commands(baseURL) {
		root.AddCommand(c)
	}
	return root
}

// Commands returns the client commands for embedding in another root.
func Commands(baseURL BaseURLFunc) []*cobra.Command {
	return []*cobra.Command{
		newStatusCommand(baseURL),
		newLedgerCommand(baseURL),
		newDeadLettersCommand(baseURL),
		newHealthCommand(),
	}
}
