package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/rust-community-pl/mqtt-consumer/internal/consumer"
)

// Config holds the broker credentials and the subscription.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	UseTLS   bool
	Topic    string
	QoS      byte
}

// Dialer connects to an MQTT broker and bridges paho's callback delivery
// into the channel-based Session the connection manager consumes.
//
// Auto-reconnect is disabled on purpose: reconnection is the manager's state
// machine, and a fresh session must not start until the previous session's
// handlers have drained.
type Dialer struct {
	cfg Config
}

func NewDialer(cfg Config) *Dialer {
	return &Dialer{cfg: cfg}
}

func (d *Dialer) Dial(ctx context.Context) (consumer.Session, error) {
	sess := &session{
		messages: make(chan consumer.Message, 16),
		done:     make(chan struct{}),
	}

	scheme := "tcp"
	if d.cfg.UseTLS {
		scheme = "ssl"
	}
	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, d.cfg.Host, d.cfg.Port)).
		SetClientID("mqtt-consumer-" + uuid.NewString()[:8]).
		SetUsername(d.cfg.Username).
		SetPassword(d.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt transport failed: %v", err)
			sess.finish()
		})
	if d.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{})
	}

	client := paho.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connect to %s:%d: %w", d.cfg.Host, d.cfg.Port, err)
	}

	onMessage := func(_ paho.Client, m paho.Message) {
		sess.deliver(consumer.Message{Topic: m.Topic(), Payload: m.Payload()})
	}
	if err := wait(ctx, client.Subscribe(d.cfg.Topic, d.cfg.QoS, onMessage)); err != nil {
		client.Disconnect(0)
		return nil, fmt.Errorf("subscribe to %q: %w", d.cfg.Topic, err)
	}

	sess.client = client
	log.Printf("subscribed to %q", d.cfg.Topic)
	return sess, nil
}

type session struct {
	client   paho.Client
	messages chan consumer.Message
	done     chan struct{}

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

func (s *session) Messages() <-chan consumer.Message {
	return s.messages
}

// deliver forwards a broker message unless the session already ended. The
// send races against done so a delivery stuck behind a slow consumer cannot
// outlive the session.
func (s *session) deliver(msg consumer.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	select {
	case s.messages <- msg:
	case <-s.done:
	}
}

// finish ends the session exactly once: stop accepting deliveries, unblock
// the ones in flight, then close the message channel.
func (s *session) finish() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()

	s.inflight.Wait()
	close(s.messages)
}

func (s *session) Close() {
	s.finish()
	if s.client != nil && s.client.IsConnectionOpen() {
		s.client.Disconnect(250)
	}
}

// wait blocks on a paho token while honoring context cancellation.
func wait(ctx context.Context, token paho.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}
