// Command postingsctl ingests postings into a checkpointed index and queries
// it.
//
// The index lives in memory; every invocation restores the latest checkpoint
// of the configured blob store and ingest writes a new one.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "postingsctl: %v\n", err)
		os.Exit(1)
	}
}
