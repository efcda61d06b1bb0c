// Command kwstune tunes the detection threshold of a keyword spotter against
// human-reviewed recordings.
//
// Usage:
//
//	kwstune [--config kwstune.yaml] <command>
//
// Commands:
//
//	step     run one search step and print the token to resume from
//	run      step until the search finishes
//	ledger   print the trials of the current refinement round
//	history  print finished runs
//	serve    expose the step surface over HTTP
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kwstune: %v\n", err)
		os.Exit(1)
	}
}
