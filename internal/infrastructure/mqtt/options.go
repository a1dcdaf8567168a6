package mqtt

import (
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/hvac-link-core/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is used when the config leaves it unset.
	defaultConnectTimeout = 10 * time.Second

	// defaultKeepAlive is used when the config leaves it unset.
	defaultKeepAlive = 60 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// statusPublishTimeout bounds the best-effort presence publishes.
	statusPublishTimeout = 2 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho options from config.
//
// The session is persistent (clean session off) so the broker keeps our
// subscriptions across a reconnect, and paho's own reconnect loop is
// disabled: reconnection is driven by the Supervisor, lazily on the next
// publish or explicitly through Start. An ephemeral session uses a clean
// session and carries no Last Will.
func buildClientOptions(cfg config.MQTTConfig, ephemeral bool) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port))
	opts.SetClientID(cfg.Broker.ClientID)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(ephemeral)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	// Handlers run one at a time, in arrival order.
	opts.SetOrderMatters(true)

	connectTimeout := cfg.Broker.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(connectTimeout)

	keepAlive := cfg.Broker.KeepAlive
	if keepAlive <= 0 {
		keepAlive = defaultKeepAlive
	}
	opts.SetKeepAlive(keepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	if !ephemeral {
		configureLWT(opts, cfg.Broker.ClientID)
	}
	return opts
}

// EphemeralClientID derives a unique client ID from base for short-lived
// sessions, so they never take over the long-running session's ID.
func EphemeralClientID(base string) string {
	return fmt.Sprintf("%s-cli-%s", base, strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// configureLWT sets the Last Will so monitoring sees an unexpected
// disconnect of this core instance.
//
// Topic: hvaclink/{client_id}/status
// QoS: 1, retained
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetWill(StatusTopic(clientID), buildStatusPayload(clientID, "offline", "unexpected_disconnect"), 1, true)
}

// buildStatusPayload creates the JSON presence payload for this instance.
func buildStatusPayload(clientID, status, reason string) string {
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"client_id":%q,"timestamp":%q}`,
			status, clientID, time.Now().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf(`{"status":%q,"client_id":%q,"reason":%q,"timestamp":%q}`,
		status, clientID, reason, time.Now().UTC().Format(time.RFC3339))
}
