package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Logger defines the logging interface used by the directory and sweeper.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Directory maps gateway identifiers to their topic pairs.
//
// Every lookup reads through to the repository, so gateways registered by
// another process (the CLI, for instance) are visible immediately.
type Directory struct {
	repo   Repository
	logger Logger
	now    func() time.Time
}

// NewDirectory creates a Directory over repo.
func NewDirectory(repo Repository) *Directory {
	return &Directory{
		repo:   repo,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the directory.
func (d *Directory) SetLogger(logger Logger) {
	d.logger = logger
}

// AllSubscribeTopics returns every distinct subscribe topic, sorted.
func (d *Directory) AllSubscribeTopics(ctx context.Context) ([]string, error) {
	topics, err := d.repo.SubscribeTopics(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing subscribe topics: %w", err)
	}
	return topics, nil
}

// PublishTopicFor returns the outbound topic for a gateway, or
// ErrGatewayNotFound.
func (d *Directory) PublishTopicFor(ctx context.Context, gatewayID string) (string, error) {
	g, err := d.repo.Get(ctx, gatewayID)
	if err != nil {
		return "", fmt.Errorf("publish topic for %q: %w", gatewayID, err)
	}
	return g.PublishTopic, nil
}

// Upsert registers a gateway or updates its topics and description.
// Calling it again with the same values is a no-op apart from the returned
// gateway.
func (d *Directory) Upsert(ctx context.Context, g Gateway) (*Gateway, bool, error) {
	g.GatewayID = strings.TrimSpace(g.GatewayID)
	g.Description = strings.TrimSpace(g.Description)
	if err := g.Validate(); err != nil {
		return nil, false, err
	}

	created, err := d.repo.Upsert(ctx, &g)
	if err != nil {
		return nil, false, err
	}
	stored, err := d.repo.Get(ctx, g.GatewayID)
	if err != nil {
		return nil, false, err
	}

	if created {
		d.logger.Info("gateway registered", "gateway_id", g.GatewayID,
			"subscribe_topic", g.SubscribeTopic, "publish_topic", g.PublishTopic)
	} else {
		d.logger.Debug("gateway updated", "gateway_id", g.GatewayID)
	}
	return stored, created, nil
}

// Get retrieves a gateway by identifier.
func (d *Directory) Get(ctx context.Context, gatewayID string) (*Gateway, error) {
	return d.repo.Get(ctx, gatewayID)
}

// List retrieves all gateways.
func (d *Directory) List(ctx context.Context) ([]Gateway, error) {
	return d.repo.List(ctx)
}

// Delete removes a gateway and its devices.
func (d *Directory) Delete(ctx context.Context, gatewayID string) error {
	if err := d.repo.Delete(ctx, gatewayID); err != nil {
		return err
	}
	d.logger.Info("gateway deleted", "gateway_id", gatewayID)
	return nil
}

// SetOnline records that a gateway was heard from, with its presence.
// It reports whether the online flag changed.
func (d *Directory) SetOnline(ctx context.Context, gatewayID string, online bool) (bool, error) {
	changed, err := d.repo.SetOnline(ctx, gatewayID, online, d.now())
	if err != nil {
		return false, fmt.Errorf("setting %q online=%t: %w", gatewayID, online, err)
	}
	if changed {
		d.logger.Info("gateway presence changed", "gateway_id", gatewayID, "online", online)
	}
	return changed, nil
}

// Touch marks a gateway online after any successfully decoded message.
func (d *Directory) Touch(ctx context.Context, gatewayID string) error {
	_, err := d.SetOnline(ctx, gatewayID, true)
	return err
}

// MarkStale flips gateways not heard from since cutoff to offline.
func (d *Directory) MarkStale(ctx context.Context, cutoff time.Time) ([]string, error) {
	ids, err := d.repo.MarkStale(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("marking stale gateways: %w", err)
	}
	return ids, nil
}
