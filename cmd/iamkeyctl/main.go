// iamkeyctl runs one-off credential tasks against the same export directory
// the iamkeycheck server reads.
//
// Usage:
//
//	# Print the first exported credential pair as JSON
//	iamkeyctl extract-creds
//
//	# Run a single stale-key check with a 48 hour threshold
//	iamkeyctl check --hours 48 --csv-dir ./secrets
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCmd(defaultIdentities)
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		if !errors.Is(err, errNoCredentials) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
