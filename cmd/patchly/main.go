// Package main provides patchly, a streaming binary diff/patch engine.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/hutomosaktikartiko/patchly/internal/cli"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	exitCode := cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, os.Environ(), sigCh)

	os.Exit(exitCode)
}
