// asyncnet - an asynchronous TCP transport with listen and connect modes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"asyncnet/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "asyncnet: %v\n", err)
		os.Exit(1)
	}
}
