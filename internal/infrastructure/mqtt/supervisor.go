package mqtt

import (
	"context"
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/hvac-link-core/internal/infrastructure/config"
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
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

// Metrics receives connection and publish outcomes. It is satisfied by
// *metrics.Registry.
type Metrics interface {
	ObserveConnect(err error)
	SetConnected(connected bool)
	ObservePublish(attempts int, err error)
	ObserveSubscribe(topic string, err error)
}

type noopMetrics struct{}

func (noopMetrics) ObserveConnect(error)           {}
func (noopMetrics) SetConnected(bool)              {}
func (noopMetrics) ObservePublish(int, error)      {}
func (noopMetrics) ObserveSubscribe(string, error) {}

// TopicSource lists the topics the session must be subscribed to. It is
// satisfied by *gateway.Directory.
type TopicSource interface {
	AllSubscribeTopics(ctx context.Context) ([]string, error)
}

// MessageHandler is the callback signature for received messages.
//
// Handlers run on the receive loop, one message at a time. A returned
// error is logged and never stops the loop.
type MessageHandler func(topic string, payload []byte) error

// ClientFactory builds the underlying paho client.
type ClientFactory func(opts *pahomqtt.ClientOptions) pahomqtt.Client

// Options configures a Supervisor.
type Options struct {
	Config  config.MQTTConfig
	Topics  TopicSource
	Handler MessageHandler

	// Retry overrides the publish policy derived from Config.Publish.
	Retry *RetryPolicy

	// NewClient defaults to pahomqtt.NewClient.
	NewClient ClientFactory

	// Ephemeral runs a clean session under a unique client ID derived from
	// Config.Broker.ClientID and publishes no presence status. Short-lived
	// publish-only processes use it so they never displace the resident
	// session.
	Ephemeral bool
}

// Supervisor owns the single broker session of the process.
//
// It connects on demand, keeps track of which directory topics the session
// is subscribed to and retries publishes with a bounded policy. Connection
// loss only clears the connected flag; the next publish, Start or
// Resubscribe brings the session back.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Start, Stop and Resubscribe are serialised.
type Supervisor struct {
	cfg       config.MQTTConfig
	topics    TopicSource
	handler   MessageHandler
	retry     RetryPolicy
	newClient ClientFactory
	ephemeral bool

	// lifecycleMu serialises connect, subscribe and teardown.
	lifecycleMu sync.Mutex

	// mu guards the fields below.
	mu         sync.Mutex
	client     pahomqtt.Client
	connected  bool
	subscribed map[string]struct{}

	pollInterval time.Duration

	logger   Logger
	metrics  Metrics
	loggerMu sync.RWMutex
}

// NewSupervisor creates a Supervisor. It does not connect; call Start.
func NewSupervisor(opts Options) (*Supervisor, error) {
	if opts.Handler == nil {
		return nil, fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}
	if opts.Config.QoS < 0 || opts.Config.QoS > maxQoS {
		return nil, ErrInvalidQoS
	}

	retry := PolicyFromConfig(opts.Config.Publish)
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	newClient := opts.NewClient
	if newClient == nil {
		newClient = pahomqtt.NewClient
	}
	cfg := opts.Config
	if opts.Ephemeral {
		cfg.Broker.ClientID = EphemeralClientID(cfg.Broker.ClientID)
	}

	return &Supervisor{
		cfg:          cfg,
		topics:       opts.Topics,
		handler:      opts.Handler,
		retry:        retry,
		newClient:    newClient,
		ephemeral:    opts.Ephemeral,
		subscribed:   make(map[string]struct{}),
		pollInterval: 50 * time.Millisecond,
		logger:       noopLogger{},
		metrics:      noopMetrics{},
	}, nil
}

// SetLogger sets the logger for the supervisor and its handlers.
func (s *Supervisor) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// SetMetrics sets the metrics sink.
func (s *Supervisor) SetMetrics(m Metrics) {
	s.loggerMu.Lock()
	s.metrics = m
	s.loggerMu.Unlock()
}

func (s *Supervisor) log() Logger {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.logger
}

func (s *Supervisor) stats() Metrics {
	s.loggerMu.RLock()
	defer s.loggerMu.RUnlock()
	return s.metrics
}

// Start connects the session and subscribes every directory topic that is
// not already subscribed. Calling Start while connected is a no-op.
//
// A connect failure is logged, leaves the supervisor disconnected and is
// returned; callers may retry. A subscribe failure for one topic does not
// fail Start: the topic stays out of the subscribed set and is retried on
// the next Start or Resubscribe.
func (s *Supervisor) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.IsConnected() {
		return nil
	}

	client := s.ensureClient()
	token := client.Connect()
	err := waitToken(token, s.connectTimeout())
	s.stats().ObserveConnect(err)
	if err != nil {
		s.setConnected(false)
		s.log().Error("mqtt connect failed", "broker", s.brokerAddr(), "error", err)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	present := sessionPresent(token)
	s.mu.Lock()
	if !present {
		// The broker has no subscriptions for us; forget what we tracked.
		s.subscribed = make(map[string]struct{})
	}
	s.connected = true
	s.mu.Unlock()
	s.stats().SetConnected(true)

	s.log().Info("mqtt connected", "broker", s.brokerAddr(), "session_present", present)
	s.publishStatus(client, "online", "")

	if err := s.syncSubscriptions(ctx); err != nil {
		s.log().Warn("mqtt subscription sync incomplete", "error", err)
	}
	return nil
}

// Resubscribe subscribes directory topics added since the last sync.
func (s *Supervisor) Resubscribe(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.IsConnected() {
		return ErrNotConnected
	}
	return s.syncSubscriptions(ctx)
}

// Stop publishes a graceful offline status, tears the session down and
// clears all connection state. Stop on a stopped supervisor is a no-op.
func (s *Supervisor) Stop() {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	s.mu.Lock()
	client := s.client
	s.client = nil
	s.connected = false
	s.subscribed = make(map[string]struct{})
	s.mu.Unlock()

	if client == nil {
		return
	}
	if client.IsConnected() {
		s.publishStatus(client, "offline", "graceful_shutdown")
	}
	client.Disconnect(defaultDisconnectQuiesce)
	s.stats().SetConnected(false)
	s.log().Info("mqtt session stopped")
}

// ClientID returns the client ID the session connects with.
func (s *Supervisor) ClientID() string {
	return s.cfg.Broker.ClientID
}

// IsConnected returns the last known connection state.
func (s *Supervisor) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected && s.client != nil && s.client.IsConnected()
}

// HealthCheck verifies the session is up.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !s.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Subscribed returns the tracked subscription set.
func (s *Supervisor) Subscribed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.subscribed))
	for t := range s.subscribed {
		out = append(out, t)
	}
	return out
}

func (s *Supervisor) ensureClient() pahomqtt.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client
	}

	opts := buildClientOptions(s.cfg, s.ephemeral)
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleConnectionLost(err)
	})
	// Messages for subscriptions restored from a persistent session that
	// this process has not registered a route for yet.
	opts.SetDefaultPublishHandler(s.wrapHandler(s.handler))

	s.client = s.newClient(opts)
	return s.client
}

// handleConnectionLost only records the loss; it never reconnects.
func (s *Supervisor) handleConnectionLost(err error) {
	s.setConnected(false)
	s.log().Warn("mqtt connection lost", "error", err)
}

// markDisconnected resets the session after a failed publish so the next
// attempt goes through Start again. The subscribed set is kept: with a
// persistent session the broker still holds those subscriptions.
func (s *Supervisor) markDisconnected() {
	s.mu.Lock()
	client := s.client
	s.connected = false
	s.mu.Unlock()
	s.stats().SetConnected(false)

	if client != nil && client.IsConnected() {
		client.Disconnect(0)
	}
}

func (s *Supervisor) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
	s.stats().SetConnected(v)
}

func (s *Supervisor) publishStatus(client pahomqtt.Client, status, reason string) {
	if s.ephemeral {
		return
	}
	clientID := s.cfg.Broker.ClientID
	token := client.Publish(StatusTopic(clientID), byte(s.cfg.QoS), true, buildStatusPayload(clientID, status, reason))
	if err := waitToken(token, statusPublishTimeout); err != nil {
		s.log().Debug("mqtt status publish failed", "status", status, "error", err)
	}
}

func (s *Supervisor) connectTimeout() time.Duration {
	if s.cfg.Broker.ConnectTimeout > 0 {
		return s.cfg.Broker.ConnectTimeout
	}
	return defaultConnectTimeout
}

func (s *Supervisor) ackTimeout() time.Duration {
	if s.cfg.Publish.AckTimeout > 0 {
		return s.cfg.Publish.AckTimeout
	}
	return 5 * time.Second
}

func (s *Supervisor) brokerAddr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Broker.Host, s.cfg.Broker.Port)
}

// wrapHandler wraps a MessageHandler with panic recovery and logging.
func (s *Supervisor) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				s.log().Error("MQTT handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			s.log().Warn("MQTT handler returned error",
				"topic", msg.Topic(),
				"error", err,
			)
		}
	}
}

// sessionPresent reports the CONNACK session-present flag when the token
// carries one.
func sessionPresent(token pahomqtt.Token) bool {
	sp, ok := token.(interface{ SessionPresent() bool })
	return ok && sp.SessionPresent()
}

func waitToken(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	return token.Error()
}
