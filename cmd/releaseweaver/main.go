package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"releaseweaver/internal/cli"
)

// main cancels the run on SIGINT or SIGTERM: jobs already running finish,
// nothing new starts.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], cli.Env{Stdout: os.Stdout, Stderr: os.Stderr, Getenv: os.Getenv})
	stop()
	os.Exit(code)
}
