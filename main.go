// Drone - the capability core of a tasking agent.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"drone/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "drone: %v\n", err)
		os.Exit(1)
	}
}
