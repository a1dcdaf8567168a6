package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/hvac-link-core/internal/device"
	"github.com/nerrad567/hvac-link-core/internal/gateway"
	"github.com/nerrad567/hvac-link-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/hvac-link-core/internal/protocol"
)

// Message outcome labels reported to Metrics.
const (
	OutcomeApplied        = "applied"
	OutcomeIgnored        = "ignored"
	OutcomeDecodeError    = "decode_error"
	OutcomeUnknownGateway = "unknown_gateway"
	OutcomeFailed         = "failed"
)

// ErrUnknownGateway is returned for messages from gateways that are not in
// the directory or have no code table.
var ErrUnknownGateway = errors.New("ingest: unknown gateway")

// Logger defines the logging interface used by the Processor.
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

// Metrics receives per-message outcomes. It is satisfied by *metrics.Registry.
type Metrics interface {
	ObserveMessage(cmd, outcome string)
	ObserveDeviceCreated()
}

type noopMetrics struct{}

func (noopMetrics) ObserveMessage(string, string) {}
func (noopMetrics) ObserveDeviceCreated()         {}

// Directory is the gateway lookup the processor needs. It is satisfied by
// *gateway.Directory.
type Directory interface {
	Get(ctx context.Context, gatewayID string) (*gateway.Gateway, error)
	SetOnline(ctx context.Context, gatewayID string, online bool) (bool, error)
	Touch(ctx context.Context, gatewayID string) error
}

// Reconciler applies unit reports. It is satisfied by *device.Reconciler.
type Reconciler interface {
	ReconcileAndApply(ctx context.Context, gatewayID, address string, raw device.RawStatus) (device.Result, error)
	SetGatewayDevicesOnline(ctx context.Context, gatewayID string, online bool, source string) (int64, error)
}

// Config configures a Processor.
type Config struct {
	// CascadePresence pushes explicit online/offline events to every device
	// of the gateway.
	CascadePresence bool

	// Timeout bounds the storage work for one message. Default: 10 seconds.
	Timeout time.Duration
}

// Outcome summarises what one message did.
type Outcome struct {
	Command   protocol.Command
	GatewayID string
	Units     int
	Created   int
	Changed   int
	Failed    int
	Cascaded  int64
}

// Processor decodes inbound payloads and applies them.
type Processor struct {
	dir     Directory
	rec     Reconciler
	cfg     Config
	logger  Logger
	metrics Metrics
}

// NewProcessor creates a Processor.
func NewProcessor(dir Directory, rec Reconciler, cfg Config) *Processor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Processor{
		dir:     dir,
		rec:     rec,
		cfg:     cfg,
		logger:  noopLogger{},
		metrics: noopMetrics{},
	}
}

// SetLogger sets the logger for the processor.
func (p *Processor) SetLogger(logger Logger) {
	p.logger = logger
}

// SetMetrics sets the metrics sink.
func (p *Processor) SetMetrics(m Metrics) {
	p.metrics = m
}

// HandleMessage has the mqtt.MessageHandler signature.
func (p *Processor) HandleMessage(topic string, payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()

	_, err := p.Process(ctx, topic, payload)
	return err
}

// Process handles one payload received on topic.
func (p *Processor) Process(ctx context.Context, topic string, payload []byte) (Outcome, error) {
	msg, err := protocol.Parse(payload)
	if err != nil {
		p.metrics.ObserveMessage("", OutcomeDecodeError)
		return Outcome{}, fmt.Errorf("decoding message on %s: %w", topic, err)
	}

	h := msg.Envelope()
	out := Outcome{Command: h.Command, GatewayID: h.GatewayID}
	cmd := string(h.Command)

	gw, err := p.dir.Get(ctx, h.GatewayID)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayNotFound) {
			p.metrics.ObserveMessage(cmd, OutcomeUnknownGateway)
			return out, fmt.Errorf("%w: %q (cmd %s on %s)", ErrUnknownGateway, h.GatewayID, cmd, topic)
		}
		p.metrics.ObserveMessage(cmd, OutcomeFailed)
		return out, fmt.Errorf("looking up gateway %q: %w", h.GatewayID, err)
	}
	if !mqtt.MatchTopic(gw.SubscribeTopic, topic) {
		p.logger.Warn("message topic does not match gateway subscribe topic",
			"gateway_id", gw.GatewayID, "topic", topic, "subscribe_topic", gw.SubscribeTopic)
	}

	switch m := msg.(type) {
	case protocol.StatusMessage:
		err = p.applyStatus(ctx, m, &out)
	case protocol.PresenceMessage:
		err = p.applyPresence(ctx, m, &out)
	case protocol.ControlAck:
		p.logger.Info("control_write acknowledged", "gateway_id", h.GatewayID, "serial", h.Serial, "addrs", m.Addrs)
		err = p.dir.Touch(ctx, h.GatewayID)
	default:
		p.logger.Info("ignoring unknown command", "gateway_id", h.GatewayID, "cmd", cmd)
		if err = p.dir.Touch(ctx, h.GatewayID); err == nil {
			p.metrics.ObserveMessage(cmd, OutcomeIgnored)
			return out, nil
		}
	}

	switch {
	case errors.Is(err, device.ErrNoCodeTable):
		p.metrics.ObserveMessage(cmd, OutcomeUnknownGateway)
		return out, fmt.Errorf("%w: %w", ErrUnknownGateway, err)
	case err != nil:
		p.metrics.ObserveMessage(cmd, OutcomeFailed)
		return out, err
	}
	p.metrics.ObserveMessage(cmd, OutcomeApplied)
	return out, nil
}

// applyStatus reconciles every reported unit. A failure on one unit is
// logged and the rest are still applied; a gateway without a code table
// aborts the message.
func (p *Processor) applyStatus(ctx context.Context, m protocol.StatusMessage, out *Outcome) error {
	if err := p.dir.Touch(ctx, m.GatewayID); err != nil {
		return err
	}

	for _, u := range m.Units {
		out.Units++
		res, err := p.rec.ReconcileAndApply(ctx, m.GatewayID, u.Address, rawStatus(u))
		if err != nil {
			if errors.Is(err, device.ErrNoCodeTable) {
				return err
			}
			out.Failed++
			p.logger.Warn("unit update failed", "gateway_id", m.GatewayID, "address", u.Address, "error", err)
			continue
		}
		if res.Created {
			out.Created++
			p.metrics.ObserveDeviceCreated()
		}
		if res.Changed {
			out.Changed++
		}
	}

	p.logger.Debug("status applied", "gateway_id", m.GatewayID, "cmd", m.Command,
		"units", out.Units, "created", out.Created, "changed", out.Changed, "failed", out.Failed)
	return nil
}

// applyPresence handles explicit online/offline events.
func (p *Processor) applyPresence(ctx context.Context, m protocol.PresenceMessage, out *Outcome) error {
	if _, err := p.dir.SetOnline(ctx, m.GatewayID, m.Online); err != nil {
		return err
	}
	if !p.cfg.CascadePresence {
		return nil
	}

	n, err := p.rec.SetGatewayDevicesOnline(ctx, m.GatewayID, m.Online, device.SourcePresence)
	if err != nil {
		return err
	}
	out.Cascaded = n
	return nil
}

func rawStatus(u protocol.UnitReport) device.RawStatus {
	return device.RawStatus{
		OnOffCode:   u.OnOff,
		ModeCode:    u.Mode,
		SetTemp:     u.SetTemp,
		CurrentTemp: u.CurrentTemp,
		FanSpeed:    u.FanSpeed,
		Presence:    u.Presence,
	}
}
