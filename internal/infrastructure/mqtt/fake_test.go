package mqtt

import (
	"context"
	"errors"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeToken is a completed (or never-completing) paho token.
type fakeToken struct {
	err     error
	timeout bool
	session bool
}

func (t *fakeToken) Wait() bool                     { return !t.timeout }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) SessionPresent() bool           { return t.session }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}

type publishCall struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// fakeClient implements pahomqtt.Client without a broker.
type fakeClient struct {
	mu sync.Mutex

	opts      *pahomqtt.ClientOptions
	connected bool

	// Behaviour knobs.
	connectErr     error
	sessionPresent bool
	publishErrs    []error // consumed in order; nil entries succeed
	publishTimeout bool
	subscribeErr   map[string]error

	// Recorded calls.
	connects    int
	disconnects int
	publishes   []publishCall
	subscribes  []string
	handlers    map[string]pahomqtt.MessageHandler
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		subscribeErr: make(map[string]error),
		handlers:     make(map[string]pahomqtt.MessageHandler),
	}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.connectErr != nil {
		return &fakeToken{err: c.connectErr}
	}
	c.connected = true
	return &fakeToken{session: c.sessionPresent}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnects++
	c.connected = false
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	c.publishes = append(c.publishes, publishCall{topic: topic, qos: qos, retained: retained, payload: data})

	if c.publishTimeout {
		return &fakeToken{timeout: true}
	}
	if len(c.publishErrs) > 0 {
		err := c.publishErrs[0]
		c.publishErrs = c.publishErrs[1:]
		return &fakeToken{err: err}
	}
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribes = append(c.subscribes, topic)
	if err := c.subscribeErr[topic]; err != nil {
		return &fakeToken{err: err}
	}
	c.handlers[topic] = callback
	return &fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	for topic, qos := range filters {
		c.Subscribe(topic, qos, callback)
	}
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(...string) pahomqtt.Token { return &fakeToken{} }

func (c *fakeClient) AddRoute(topic string, callback pahomqtt.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
}

func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

// dropConnection simulates a network failure detected by paho.
func (c *fakeClient) dropConnection() {
	c.mu.Lock()
	c.connected = false
	lost := c.opts.OnConnectionLost
	c.mu.Unlock()
	if lost != nil {
		lost(c, errors.New("connection reset by peer"))
	}
}

// deliver pushes an inbound message through the handler registered for topic.
func (c *fakeClient) deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	h, ok := c.handlers[topic]
	c.mu.Unlock()
	if !ok {
		return false
	}
	h(c, &fakeMessage{topic: topic, payload: payload})
	return true
}

func (c *fakeClient) publishesTo(topic string) []publishCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []publishCall
	for _, p := range c.publishes {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (c *fakeClient) subscribeCount(topic string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.subscribes {
		if t == topic {
			n++
		}
	}
	return n
}

func (c *fakeClient) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// staticTopics is a TopicSource backed by a slice.
type staticTopics struct {
	mu     sync.Mutex
	topics []string
	err    error
}

func (s *staticTopics) AllSubscribeTopics(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.topics...), s.err
}

func (s *staticTopics) set(topics ...string) {
	s.mu.Lock()
	s.topics = topics
	s.mu.Unlock()
}
