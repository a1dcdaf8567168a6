package mqtt

import (
	"context"
	"fmt"
	"time"
)

// Maximum payload size for MQTT messages (1MB).
const maxPayloadSize = 1 << 20

// Publish sends payload to topic and waits for the broker acknowledgement.
//
// When the session is down it calls Start; a failed connect ends the
// attempt at once, otherwise the connected state is polled for up to the
// configured connect wait. A failed attempt resets the
// connected flag, so the next attempt reconnects, and is retried under the
// RetryPolicy. When all attempts fail the error wraps ErrPublishFailed;
// delivery is best-effort.
func (s *Supervisor) Publish(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if err := ValidatePublishTopic(topic); err != nil {
		return err
	}
	if qos > maxQoS {
		return ErrInvalidQoS
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	attempts, err := s.retry.Do(ctx,
		func(_ int) error {
			return s.publishOnce(ctx, topic, payload, qos, retained)
		},
		func(attempt int, err error) {
			s.log().Warn("mqtt publish attempt failed", "topic", topic, "attempt", attempt, "error", err)
			s.markDisconnected()
		},
	)
	s.stats().ObservePublish(attempts, err)
	if err != nil {
		s.log().Error("mqtt publish failed", "topic", topic, "attempts", attempts, "error", err)
		return fmt.Errorf("%w after %d attempt(s): %w", ErrPublishFailed, attempts, err)
	}
	return nil
}

// PublishDefault publishes with the configured QoS, not retained.
func (s *Supervisor) PublishDefault(ctx context.Context, topic string, payload []byte) error {
	return s.Publish(ctx, topic, payload, byte(s.cfg.QoS), false)
}

func (s *Supervisor) publishOnce(ctx context.Context, topic string, payload []byte, qos byte, retained bool) error {
	if !s.IsConnected() {
		// Start already waited out the connect timeout; with paho's own
		// reconnect disabled nothing else can bring the session up.
		if err := s.Start(ctx); err != nil {
			s.log().Debug("mqtt start during publish failed", "error", err)
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: %w", ErrNotConnected, err)
		}
		if err := s.waitConnected(ctx, s.cfg.Publish.ConnectWait); err != nil {
			return err
		}
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, retained, payload)
	return waitToken(token, s.ackTimeout())
}

// waitConnected polls the connected state until it is true or wait elapses.
func (s *Supervisor) waitConnected(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		if s.IsConnected() {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w within %v", ErrNotConnected, wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
