package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/ual/internal/logging"
	"github.com/danmuck/ual/internal/observability"
)

func main() {
	logging.ConfigureRuntime()
	observability.InitLogger("ualctl")
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ualctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
