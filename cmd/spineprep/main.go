package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrsinham/spineprep/cmd/spineprep/cli"
)

// version is set at build time via -ldflags
var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, version, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}
