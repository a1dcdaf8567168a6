package command

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nerrad567/hvac-link-core/internal/device"
	"github.com/nerrad567/hvac-link-core/internal/protocol"
)

// Logger is the logging interface used by the dispatcher.
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

// Metrics receives per-dispatch target counts.
type Metrics interface {
	ObserveDispatch(succeeded, failed int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveDispatch(int, int) {}

// Publisher delivers a payload to a topic. Satisfied by *mqtt.Supervisor.
type Publisher interface {
	PublishDefault(ctx context.Context, topic string, payload []byte) error
}

// TopicResolver maps a gateway to its publish topic. Satisfied by
// *gateway.Directory.
type TopicResolver interface {
	PublishTopicFor(ctx context.Context, gatewayID string) (string, error)
}

// DeviceSource looks up target devices. Satisfied by *device.Reconciler.
type DeviceSource interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
}

// Config holds dispatcher settings.
type Config struct {
	// QueryDelay is the wait between a sent control write and the status
	// query. Zero or negative sends the query straight away.
	QueryDelay time.Duration
}

// Result is the per-target outcome of a dispatch. Every target appears in
// exactly one of Success or Failed, and always has a Details entry.
type Result struct {
	Success []string          `json:"success"`
	Failed  []string          `json:"failed"`
	Details map[string]string `json:"details"`
}

// Dispatcher encodes and publishes control intents.
//
// Thread Safety: DispatchControl is safe for concurrent use.
type Dispatcher struct {
	devices DeviceSource
	topics  TopicResolver
	codes   Encoder
	pub     Publisher
	seq     *protocol.Sequence

	queryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error

	logger  Logger
	metrics Metrics
}

// NewDispatcher creates a dispatcher. seq may be nil, in which case a
// fresh sequence is started.
func NewDispatcher(devices DeviceSource, topics TopicResolver, codes Encoder, pub Publisher, seq *protocol.Sequence, cfg Config) *Dispatcher {
	if seq == nil {
		seq = protocol.NewSequence()
	}
	delay := cfg.QueryDelay
	if delay < 0 {
		delay = 0
	}
	return &Dispatcher{
		devices:    devices,
		topics:     topics,
		codes:      codes,
		pub:        pub,
		seq:        seq,
		queryDelay: delay,
		sleep:      sleepCtx,
		logger:     noopLogger{},
		metrics:    noopMetrics{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	if logger != nil {
		d.logger = logger
	}
}

// SetMetrics sets the dispatch observer.
func (d *Dispatcher) SetMetrics(m Metrics) {
	if m != nil {
		d.metrics = m
	}
}

type target struct {
	id      string
	address string
}

type outcome struct {
	ok     bool
	detail string
}

// DispatchControl sends intent to the given devices. An invalid intent or
// an empty target list is returned as an error before anything is sent.
// Every other failure is reported per device in the Result.
func (d *Dispatcher) DispatchControl(ctx context.Context, deviceIDs []string, intent Intent) (*Result, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	ids := dedupe(deviceIDs)
	if len(ids) == 0 {
		return nil, ErrNoTargets
	}

	outcomes := make(map[string]outcome, len(ids))
	groups := make(map[string][]target)
	for _, id := range ids {
		dev, err := d.devices.GetDevice(ctx, id)
		if err != nil {
			outcomes[id] = outcome{detail: err.Error()}
			continue
		}
		groups[dev.GatewayID] = append(groups[dev.GatewayID], target{id: id, address: dev.Address})
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for gatewayID, targets := range groups {
		wg.Add(1)
		go func(gatewayID string, targets []target) {
			defer wg.Done()
			res := d.dispatchGroup(ctx, gatewayID, targets, intent)
			mu.Lock()
			for id, o := range res {
				outcomes[id] = o
			}
			mu.Unlock()
		}(gatewayID, targets)
	}
	wg.Wait()

	result := &Result{
		Success: []string{},
		Failed:  []string{},
		Details: make(map[string]string, len(ids)),
	}
	for _, id := range ids {
		o := outcomes[id]
		if o.ok {
			result.Success = append(result.Success, id)
		} else {
			result.Failed = append(result.Failed, id)
		}
		result.Details[id] = o.detail
	}

	d.metrics.ObserveDispatch(len(result.Success), len(result.Failed))
	d.logger.Info("control dispatched",
		"targets", len(ids),
		"gateways", len(groups),
		"succeeded", len(result.Success),
		"failed", len(result.Failed),
	)
	return result, nil
}

// dispatchGroup sends one control write and its follow-up query for
// targets that share a gateway.
func (d *Dispatcher) dispatchGroup(ctx context.Context, gatewayID string, targets []target, intent Intent) map[string]outcome {
	addrs := make([]string, len(targets))
	for i, t := range targets {
		addrs[i] = t.address
	}
	sort.Strings(addrs)

	fail := func(err error) map[string]outcome {
		d.logger.Warn("control dispatch failed", "gateway_id", gatewayID, "targets", len(targets), "error", err)
		return groupOutcome(targets, outcome{detail: err.Error()})
	}

	topic, err := d.topics.PublishTopicFor(ctx, gatewayID)
	if err != nil {
		return fail(err)
	}

	cw, err := encode(d.codes, d.seq.Next(), gatewayID, addrs, intent)
	if err != nil {
		return fail(err)
	}
	payload, err := cw.Marshal()
	if err != nil {
		return fail(err)
	}
	if err := d.pub.PublishDefault(ctx, topic, payload); err != nil {
		return fail(err)
	}

	detail := "control sent"
	if err := d.query(ctx, topic, gatewayID, addrs); err != nil {
		d.logger.Warn("status query after control failed", "gateway_id", gatewayID, "error", err)
		detail = "control sent; status query failed: " + err.Error()
	}
	return groupOutcome(targets, outcome{ok: true, detail: detail})
}

// query waits for the units to react, then asks for their status.
func (d *Dispatcher) query(ctx context.Context, topic, gatewayID string, addrs []string) error {
	if d.queryDelay > 0 {
		if err := d.sleep(ctx, d.queryDelay); err != nil {
			return err
		}
	}
	payload, err := protocol.StatusQuery{
		Serial:    d.seq.Next(),
		GatewayID: gatewayID,
		Addrs:     addrs,
	}.Marshal()
	if err != nil {
		return err
	}
	return d.pub.PublishDefault(ctx, topic, payload)
}

// QueryGateway publishes a status_read for every unit behind a gateway.
func (d *Dispatcher) QueryGateway(ctx context.Context, gatewayID string) error {
	topic, err := d.topics.PublishTopicFor(ctx, gatewayID)
	if err != nil {
		return err
	}
	payload, err := protocol.StatusQueryAll(d.seq.Next(), gatewayID)
	if err != nil {
		return err
	}
	if err := d.pub.PublishDefault(ctx, topic, payload); err != nil {
		return fmt.Errorf("query gateway %s: %w", gatewayID, err)
	}
	return nil
}

func groupOutcome(targets []target, o outcome) map[string]outcome {
	out := make(map[string]outcome, len(targets))
	for _, t := range targets {
		out[t.id] = o
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting before status query: %w", ctx.Err())
	}
}
