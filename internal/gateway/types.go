package gateway

import (
	"fmt"
	"strings"
	"time"
)

// Gateway is one physical IoT hub and the topic pair it talks on.
type Gateway struct {
	GatewayID      string    `json:"gateway_id"`
	SubscribeTopic string    `json:"subscribe_topic"`
	PublishTopic   string    `json:"publish_topic"`
	Description    string    `json:"description,omitempty"`
	Online         bool      `json:"online"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

const (
	maxIDLength    = 128
	maxTopicLength = 256
)

// Validate checks identifier and topic rules. The publish topic must be a
// concrete topic; the subscribe topic may use MQTT wildcards.
func (g *Gateway) Validate() error {
	id := strings.TrimSpace(g.GatewayID)
	if id == "" {
		return fmt.Errorf("%w: gateway_id is required", ErrInvalidGateway)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: gateway_id exceeds %d characters", ErrInvalidGateway, maxIDLength)
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("%w: gateway_id %q contains topic characters", ErrInvalidGateway, id)
	}

	if err := validateTopic("subscribe_topic", g.SubscribeTopic); err != nil {
		return err
	}
	if err := validateTopic("publish_topic", g.PublishTopic); err != nil {
		return err
	}
	if strings.ContainsAny(g.PublishTopic, "+#") {
		return fmt.Errorf("%w: publish_topic %q must not contain wildcards", ErrInvalidGateway, g.PublishTopic)
	}
	return nil
}

func validateTopic(field, topic string) error {
	if strings.TrimSpace(topic) == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidGateway, field)
	}
	if topic != strings.TrimSpace(topic) {
		return fmt.Errorf("%w: %s has surrounding whitespace", ErrInvalidGateway, field)
	}
	if len(topic) > maxTopicLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidGateway, field, maxTopicLength)
	}
	return nil
}
