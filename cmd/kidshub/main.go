// Command kidshub is the command line client for the KidsHub marketplace.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/geocoder89/kidshub/internal/config"
	"github.com/geocoder89/kidshub/internal/session"
)

func main() {
	config.LoadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCmd(config.LoadClient(), os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, session.ErrDemoMode) {
			fmt.Fprintln(os.Stderr, "kidshub: no backend configured (set KIDSHUB_URL); running in demo mode")
		} else {
			fmt.Fprintln(os.Stderr, "kidshub:", err)
		}
		os.Exit(1)
	}
}
