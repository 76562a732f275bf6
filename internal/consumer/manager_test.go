package consumer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
)

type stubSession struct {
	ch chan Message
}

// newStubSession pre-loads messages; when failAfter is set the channel closes
// once they are drained, simulating a transport failure.
func newStubSession(failAfter bool, msgs ...Message) *stubSession {
	ch := make(chan Message, len(msgs)+1)
	for _, msg := range msgs {
		ch <- msg
	}
	if failAfter {
		close(ch)
	}
	return &stubSession{ch: ch}
}

func (s *stubSession) Messages() <-chan Message { return s.ch }
func (s *stubSession) Close()                   {}

type scriptedDialer struct {
	mu       sync.Mutex
	script   []func(ctx context.Context) (Session, error)
	attempts int
}

func (d *scriptedDialer) Dial(ctx context.Context) (Session, error) {
	d.mu.Lock()
	index := d.attempts
	d.attempts++
	d.mu.Unlock()

	if index < len(d.script) {
		return d.script[index](ctx)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (d *scriptedDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

func sessionOf(s Session) func(context.Context) (Session, error) {
	return func(context.Context) (Session, error) { return s, nil }
}

func dialFailure(err error) func(context.Context) (Session, error) {
	return func(context.Context) (Session, error) { return nil, err }
}

func testBackoff() Backoff {
	return Backoff{Initial: time.Millisecond, Max: 4 * time.Millisecond}
}

func payload(s string) Message {
	return Message{Topic: "answer", Payload: []byte(s)}
}

func TestManagerResubscribesAfterTransportFailure(t *testing.T) {
	handler := newCollectingHandler(3)
	dispatcher := NewDispatcher("answer", "|", handler)

	dialer := &scriptedDialer{script: []func(context.Context) (Session, error){
		sessionOf(newStubSession(true,
			payload("00-B0-D0-63-C2-26|q1|0"),
			payload("00-B0-D0-63-C2-26|q2|1"),
		)),
		sessionOf(newStubSession(false,
			payload("FF-DE-AD-BE-EF-FF|q1|2"),
		)),
	}}
	manager := NewManager(dialer, dispatcher, testBackoff(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	select {
	case <-handler.signal:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for messages across sessions")
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := dialer.dials(); got < 2 {
		t.Fatalf("expected a reconnect after the transport failure, dials=%d", got)
	}
	if got := len(handler.collected()); got != 3 {
		t.Fatalf("expected 3 handled answers, got %d", got)
	}
}

func TestManagerRetriesFailedDials(t *testing.T) {
	handler := newCollectingHandler(1)
	dispatcher := NewDispatcher("answer", "|", handler)

	dialer := &scriptedDialer{script: []func(context.Context) (Session, error){
		dialFailure(errors.New("broker down")),
		dialFailure(errors.New("still down")),
		sessionOf(newStubSession(false, payload("00-B0-D0-63-C2-26|q1|3"))),
	}}
	manager := NewManager(dialer, dispatcher, testBackoff(), 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	select {
	case <-handler.signal:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a successful dial")
	}
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := dialer.dials(); got < 3 {
		t.Fatalf("expected at least 3 dial attempts, got %d", got)
	}
}

// handlerFunc adapts a plain func to the Handler interface.
type handlerFunc func()

func (f handlerFunc) Handle(context.Context, domain.Answer) { f() }

func TestManagerDrainsHandlersBeforeReconnect(t *testing.T) {
	gate := make(chan struct{})
	started := make(chan struct{})
	handler := handlerFunc(func() {
		close(started)
		<-gate
	})
	dispatcher := NewDispatcher("answer", "|", handler)

	dialer := &scriptedDialer{script: []func(context.Context) (Session, error){
		sessionOf(newStubSession(true, payload("00-B0-D0-63-C2-26|q1|0"))),
		sessionOf(newStubSession(false)),
	}}
	manager := NewManager(dialer, dispatcher, testBackoff(), 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- manager.Run(ctx) }()

	<-started
	// The first session is already gone, but its handler still runs; the
	// manager must not redial until it finishes.
	time.Sleep(20 * time.Millisecond)
	if got := dialer.dials(); got != 1 {
		t.Fatalf("expected no redial while a handler is in flight, dials=%d", got)
	}

	close(gate)
	deadline := time.Now().Add(5 * time.Second)
	for dialer.dials() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for reconnect after drain")
		}
		time.Sleep(time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
