// HVAC Link Core - gateway bridge for networked air-conditioning units.
//
// This is the main entry point. The serve command keeps a long-lived MQTT
// session to the site broker, ingests status reports from every registered
// gateway into SQLite and exposes Prometheus metrics. The remaining
// commands are operator tools that share the same configuration and
// database: registering gateways, dispatching control commands, enriching
// auto-discovered devices and running the staleness sweep by hand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

func main() {
	// Cancel on Ctrl+C or SIGTERM so serve can shut down cleanly
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called explicitly above
	}
}
