// Command kaldav queries and manages CalDAV calendars. Filters are written in
// the filter/dsl syntax.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		reportError(cmd.ErrOrStderr(), err)
		stop()
		os.Exit(1)
	}
}
