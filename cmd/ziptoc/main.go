// Command ziptoc indexes ZIP archives in remote storage and extracts their
// entries without downloading whole archives.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

var version = "devel"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "ziptoc:", err)
		stop()
		os.Exit(1)
	}
}
