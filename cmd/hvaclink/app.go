package main

import (
	"context"
	"fmt"

	_ "github.com/nerrad567/hvac-link-core/migrations"

	"github.com/nerrad567/hvac-link-core/internal/codetable"
	"github.com/nerrad567/hvac-link-core/internal/command"
	"github.com/nerrad567/hvac-link-core/internal/device"
	"github.com/nerrad567/hvac-link-core/internal/gateway"
	"github.com/nerrad567/hvac-link-core/internal/infrastructure/config"
	"github.com/nerrad567/hvac-link-core/internal/infrastructure/database"
	"github.com/nerrad567/hvac-link-core/internal/infrastructure/logging"
	"github.com/nerrad567/hvac-link-core/internal/infrastructure/mqtt"
)

// app holds the components every command needs.
type app struct {
	cfg        *config.Config
	log        *logging.Logger
	db         *database.DB
	codes      *codetable.Set
	directory  *gateway.Directory
	reconciler *device.Reconciler
	history    *device.SQLiteHistoryRepository
}

// openApp opens the database, applies migrations, loads the code tables
// and wires the directory and reconciler.
func openApp(ctx context.Context, cfg *config.Config, log *logging.Logger) (*app, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	codes, err := codetable.Load(cfg.CodeTables)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("loading code tables: %w", err)
	}

	directory := gateway.NewDirectory(gateway.NewSQLiteRepository(db.DB))
	directory.SetLogger(log.Component("gateway"))

	reconciler := device.NewReconciler(device.NewSQLiteRepository(db.DB), codes)
	reconciler.SetLogger(log.Component("device"))

	return &app{
		cfg:        cfg,
		log:        log,
		db:         db,
		codes:      codes,
		directory:  directory,
		reconciler: reconciler,
		history:    device.NewSQLiteHistoryRepository(db.DB),
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.log.Error("error closing database", "error", err)
	}
}

// newSupervisor builds the broker session. handler may be nil for
// publish-only commands: nothing is subscribed and the session is ephemeral,
// so a running serve keeps its client ID and persistent subscriptions.
func (a *app) newSupervisor(handler mqtt.MessageHandler) (*mqtt.Supervisor, error) {
	var topics mqtt.TopicSource = a.directory
	ephemeral := false
	if handler == nil {
		topics = noTopics{}
		handler = func(string, []byte) error { return nil }
		ephemeral = true
	}
	sup, err := mqtt.NewSupervisor(mqtt.Options{
		Config:    a.cfg.MQTT,
		Topics:    topics,
		Handler:   handler,
		Ephemeral: ephemeral,
	})
	if err != nil {
		return nil, fmt.Errorf("creating MQTT supervisor: %w", err)
	}
	sup.SetLogger(a.log.Component("mqtt"))
	return sup, nil
}

// newDispatcher wires a dispatcher that publishes through sup.
func (a *app) newDispatcher(sup *mqtt.Supervisor) *command.Dispatcher {
	d := command.NewDispatcher(a.reconciler, a.directory, a.codes, sup, nil, command.Config{
		QueryDelay: a.cfg.Command.QueryDelay,
	})
	d.SetLogger(a.log.Component("command"))
	return d
}

type noTopics struct{}

func (noTopics) AllSubscribeTopics(context.Context) ([]string, error) { return nil, nil }
