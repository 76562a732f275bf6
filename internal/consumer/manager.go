package consumer

import (
	"context"
	"log"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"
)

// Session is one continuous subscription to the message bus. The messages
// channel closes when the transport fails or the session is closed; there is
// no recovery inside a session, only a new one.
type Session interface {
	Messages() <-chan Message
	Close()
}

// Dialer establishes broker sessions. Implementations subscribe to the
// configured topics before returning.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Backoff bounds the reconnect delay. The delay doubles per failed attempt
// from Initial up to Max and resets after a successful connect.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoff is used when no backoff is configured.
var DefaultBackoff = Backoff{Initial: time.Second, Max: 30 * time.Second}

// Manager owns the subscribe loop: dial, consume until the transport drops,
// drain in-flight handlers, reconnect. It never gives up on its own; only
// cancelling the context ends the loop, and even then the active session's
// handlers run to completion first.
type Manager struct {
	dialer      Dialer
	dispatcher  *Dispatcher
	backoff     Backoff
	maxInflight int
	rnd         *rand.Rand
}

// NewManager wires a connection manager. maxInflight bounds the number of
// concurrently running handlers per session; zero means unbounded.
func NewManager(dialer Dialer, dispatcher *Dispatcher, backoff Backoff, maxInflight int) *Manager {
	if backoff.Initial <= 0 {
		backoff = DefaultBackoff
	}
	if backoff.Max < backoff.Initial {
		backoff.Max = backoff.Initial
	}
	return &Manager{
		dialer:      dialer,
		dispatcher:  dispatcher,
		backoff:     backoff,
		maxInflight: maxInflight,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run drives the Disconnected/Subscribed loop until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	delay := m.backoff.Initial
	for {
		if ctx.Err() != nil {
			return nil
		}

		session, err := m.dialer.Dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("broker connect failed: %v (retrying in %s)", err, delay)
			if !m.sleep(ctx, delay) {
				return nil
			}
			delay = m.nextDelay(delay)
			continue
		}
		delay = m.backoff.Initial

		m.consume(ctx, session)
		session.Close()

		if ctx.Err() != nil {
			return nil
		}
		log.Printf("lost connection to the broker, reconnecting")
	}
}

// consume reads the session until its channel closes or ctx is cancelled,
// then waits for every dispatched handler to finish. No handler is abandoned
// mid-flight, and the next reconnect attempt starts only after this drain.
func (m *Manager) consume(ctx context.Context, session Session) {
	var group errgroup.Group
	if m.maxInflight > 0 {
		group.SetLimit(m.maxInflight)
	}

receive:
	for {
		select {
		case <-ctx.Done():
			break receive
		case msg, ok := <-session.Messages():
			if !ok {
				break receive
			}
			m.dispatcher.Dispatch(ctx, msg, &group)
		}
	}

	_ = group.Wait()
}

func (m *Manager) nextDelay(delay time.Duration) time.Duration {
	delay *= 2
	if delay > m.backoff.Max {
		delay = m.backoff.Max
	}
	return delay
}

// sleep waits for the delay plus up to 10% jitter; returns false on cancel.
func (m *Manager) sleep(ctx context.Context, delay time.Duration) bool {
	jitterMax := int64(delay) / 10
	if jitterMax > 0 {
		delay += time.Duration(m.rnd.Int63n(jitterMax + 1))
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
