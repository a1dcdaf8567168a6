package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of topics owned by this service. Gateway topics
// are not under it; they come from the gateway directory.
const TopicPrefix = "hvaclink"

// StatusTopic returns the retained presence topic of one core instance.
//
// Example: hvaclink/hvaclink-core/status
func StatusTopic(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefix, clientID)
}

// ValidatePublishTopic checks that topic names a concrete topic.
func ValidatePublishTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: %q contains wildcards", ErrInvalidTopic, topic)
	}
	if strings.ContainsRune(topic, 0) {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidTopic, topic)
	}
	return nil
}

// ValidateFilter checks a subscription filter: "+" must fill a whole level
// and "#" may only be the last level.
func ValidateFilter(filter string) error {
	if filter == "" {
		return fmt.Errorf("%w: empty", ErrInvalidTopic)
	}
	if strings.ContainsRune(filter, 0) {
		return fmt.Errorf("%w: %q contains NUL", ErrInvalidTopic, filter)
	}

	levels := strings.Split(filter, "/")
	for i, level := range levels {
		switch {
		case level == "#":
			if i != len(levels)-1 {
				return fmt.Errorf("%w: %q has '#' before the last level", ErrInvalidTopic, filter)
			}
		case level == "+":
		case strings.ContainsAny(level, "+#"):
			return fmt.Errorf("%w: %q has a wildcard inside a level", ErrInvalidTopic, filter)
		}
	}
	return nil
}

// MatchTopic reports whether topic is matched by filter.
func MatchTopic(filter, topic string) bool {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")

	for i, f := range fl {
		if f == "#" {
			return true
		}
		if i >= len(tl) {
			return false
		}
		if f != "+" && f != tl[i] {
			return false
		}
	}
	return len(fl) == len(tl)
}
