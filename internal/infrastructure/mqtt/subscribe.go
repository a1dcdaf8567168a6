package mqtt

import (
	"context"
	"errors"
	"fmt"
)

// syncSubscriptions subscribes every directory topic missing from the
// subscribed set. Callers hold lifecycleMu.
func (s *Supervisor) syncSubscriptions(ctx context.Context) error {
	if s.topics == nil {
		return nil
	}

	topics, err := s.topics.AllSubscribeTopics(ctx)
	if err != nil {
		return fmt.Errorf("%w: listing topics: %w", ErrSubscribeFailed, err)
	}

	s.mu.Lock()
	client := s.client
	var missing []string
	for _, t := range topics {
		if _, ok := s.subscribed[t]; !ok {
			missing = append(missing, t)
		}
	}
	s.mu.Unlock()

	if client == nil || len(missing) == 0 {
		return nil
	}

	var errs []error
	for _, topic := range missing {
		if err := s.subscribe(topic); err != nil {
			errs = append(errs, err)
			continue
		}
		s.mu.Lock()
		s.subscribed[topic] = struct{}{}
		s.mu.Unlock()
	}
	return errors.Join(errs...)
}

func (s *Supervisor) subscribe(topic string) error {
	if err := ValidateFilter(topic); err != nil {
		s.stats().ObserveSubscribe(topic, err)
		return err
	}

	s.mu.Lock()
	client := s.client
	s.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	token := client.Subscribe(topic, byte(s.cfg.QoS), s.wrapHandler(s.handler))
	err := waitToken(token, s.ackTimeout())
	s.stats().ObserveSubscribe(topic, err)
	if err != nil {
		s.log().Warn("mqtt subscribe failed", "topic", topic, "error", err)
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}
	s.log().Info("mqtt subscribed", "topic", topic, "qos", s.cfg.QoS)
	return nil
}
