// Package main runs the seasonctl operator CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/outlast/internal/cmd/seasonctl"
	"github.com/louisbranch/outlast/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := seasonctl.Execute(ctx, os.Stdout, os.Args[1:]); err != nil {
		stop()
		config.Exitf("seasonctl: %v", err)
	}
}
