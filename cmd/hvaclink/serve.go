package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/hvac-link-core/internal/gateway"
	"github.com/nerrad567/hvac-link-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/hvac-link-core/internal/infrastructure/metrics"
	"github.com/nerrad567/hvac-link-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/hvac-link-core/internal/ingest"
)

const (
	// topicResyncInterval is how often the subscription set is compared
	// with the gateway directory, so gateways registered by another
	// process are picked up without a restart.
	topicResyncInterval = 30 * time.Second

	shutdownTimeout = 10 * time.Second
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway bridge",
		Long: `Run the long-lived bridge that:
- Subscribes to the upstream topic of every registered gateway
- Reconciles reported units into the device registry
- Marks gateways that stop reporting offline
- Serves Prometheus metrics and a health endpoint`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// runServe wires every component and blocks until ctx is cancelled.
// Returning an error allows main to handle exit codes consistently.
func runServe(ctx context.Context, opts *rootOptions) error { //nolint:gocognit // startup wiring
	a, err := opts.openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.log

	log.Info("starting HVAC Link Core",
		"version", version,
		"commit", commit,
		"build_date", date,
		"site", a.cfg.Site.ID,
	)
	log.Info("code tables loaded", "gateways", a.codes.Gateways())

	reg := metrics.NewRegistry("hvaclink")

	// Optional time-series export of every device snapshot
	if a.cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(ctx, a.cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			_ = influxClient.Close()
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		influxClient.SetObserver(reg)
		a.reconciler.SetSnapshotSink(influxClient)
		log.Info("InfluxDB connected",
			"url", a.cfg.InfluxDB.URL,
			"org", a.cfg.InfluxDB.Org,
			"bucket", a.cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Ingest pipeline behind the receive loop
	processor := ingest.NewProcessor(a.directory, a.reconciler, ingest.Config{
		CascadePresence: a.cfg.Gateways.CascadeDevices,
	})
	processor.SetLogger(log.Component("ingest"))
	processor.SetMetrics(reg)

	sup, err := a.newSupervisor(processor.HandleMessage)
	if err != nil {
		return err
	}
	sup.SetMetrics(reg)

	// A broker that is down at startup is not fatal: publishes and the
	// resync ticker reconnect on demand.
	if startErr := sup.Start(ctx); startErr != nil {
		log.Warn("MQTT not connected at startup, will retry", "error", startErr)
	} else {
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", a.cfg.MQTT.Broker.Host, a.cfg.MQTT.Broker.Port),
			"client_id", a.cfg.MQTT.Broker.ClientID,
			"subscriptions", len(sup.Subscribed()),
		)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		sup.Stop()
	}()

	// Staleness sweep
	if a.cfg.Gateways.SweepInterval > 0 {
		sweeper := gateway.NewSweeper(a.directory, a.reconciler, gateway.SweeperConfig{
			StaleAfter: a.cfg.Gateways.StaleAfter,
			Interval:   a.cfg.Gateways.SweepInterval,
			Cascade:    a.cfg.Gateways.CascadeDevices,
		})
		sweeper.SetLogger(log.Component("sweeper"))
		sweeper.SetObserver(reg)
		sweeper.Start(ctx)
		defer sweeper.Stop()
	} else {
		log.Info("staleness sweep disabled")
	}

	// Metrics endpoint
	if a.cfg.Metrics.Enabled {
		srv := metrics.NewServer(a.cfg.Metrics.Listen, reg, func(ctx context.Context) error {
			return healthCheck(ctx, a, sup)
		})
		srv.SetLogger(log.Component("http"))
		go func() {
			if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", serveErr)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("metrics server listening", "addr", a.cfg.Metrics.Listen)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	resyncLoop(ctx, sup, log)

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// resyncLoop keeps the subscription set in line with the directory until
// ctx is cancelled.
func resyncLoop(ctx context.Context, sup *mqtt.Supervisor, log mqtt.Logger) {
	ticker := time.NewTicker(topicResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !sup.IsConnected() {
				if err := sup.Start(ctx); err != nil {
					log.Warn("MQTT reconnect failed", "error", err)
				}
				continue
			}
			if err := sup.Resubscribe(ctx); err != nil {
				log.Warn("topic resync failed", "error", err)
			}
		}
	}
}

// healthCheck verifies the database and broker session.
func healthCheck(ctx context.Context, a *app, sup *mqtt.Supervisor) error {
	if err := a.db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := sup.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}
