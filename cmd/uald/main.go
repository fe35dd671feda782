package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/ual/internal/logging"
	"github.com/danmuck/ual/internal/observability"
	"github.com/spf13/cobra"
)

func main() {
	logging.ConfigureRuntime()
	observability.InitLogger("uald")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var configPath string
	root := &cobra.Command{
		Use:           "uald",
		Short:         "UAL gateway daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "cmd/uald/config.toml", "gateway TOML config")

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "uald: %v\n", err)
		stop()
		os.Exit(1)
	}
}
