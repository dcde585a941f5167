// Command odnode runs a standalone on-demand ordering node over libp2p.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// NewRootCmd returns the odnode command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "odnode",
		Short: "On-demand transaction ordering node",

		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newRunCmd(),
		newStatusCmd(),
	)

	return root
}
