// Command accessd serves the access-control entry points and runs their
// schema migrations and housekeeping.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("accessd: exiting")
		stop()
		os.Exit(1)
	}
}
