package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/squadracorsepolito/acmedash/cli"
)

func main() {
	ctx, cancelCtx := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelCtx()

	if err := cli.ExecuteWithContext(ctx); err != nil {
		cancelCtx()
		os.Exit(1)
	}
}
