package consumer

import (
	"context"
	"log"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
)

// Message is one inbound broker message.
type Message struct {
	Topic   string
	Payload []byte
}

// Handler consumes a decoded answer. Implementations log their own failures;
// a handler never fails the session it was dispatched from.
type Handler interface {
	Handle(ctx context.Context, answer domain.Answer)
}

// Dispatcher filters, decodes and fans out inbound messages. Handling is
// scheduled on the session's task group so the receive loop is free to take
// the next message before the previous one has been persisted.
type Dispatcher struct {
	topicFilter string
	separator   string
	handler     Handler
}

func NewDispatcher(topicFilter, separator string, handler Handler) *Dispatcher {
	if separator == "" {
		separator = domain.DefaultSeparator
	}
	return &Dispatcher{topicFilter: topicFilter, separator: separator, handler: handler}
}

// Dispatch routes one message. Mismatched topics and undecodable payloads are
// logged and dropped; they are never retried, the same payload will not come
// back from the bus. group.Go blocks once the group's limit is reached, which
// deliberately pushes back on the receive loop instead of growing unbounded.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message, group *errgroup.Group) {
	if !TopicMatches(msg.Topic, d.topicFilter) {
		log.Printf("skipping payload %q from irrelevant topic %q (only watching %q)",
			msg.Payload, msg.Topic, d.topicFilter)
		return
	}

	answer, err := domain.ParseAnswer(string(msg.Payload), d.separator)
	if err != nil {
		log.Printf("ignoring incorrect payload %q: %v", msg.Payload, err)
		return
	}

	group.Go(func() error {
		d.handler.Handle(ctx, answer)
		return nil
	})
}

// TopicMatches reports whether a concrete topic matches an MQTT topic filter,
// honoring the + and # wildcards.
func TopicMatches(topic, filter string) bool {
	topicParts := strings.Split(topic, "/")
	filterParts := strings.Split(filter, "/")

	for i, part := range filterParts {
		if part == "#" {
			return true
		}
		if i >= len(topicParts) {
			return false
		}
		if part != "+" && part != topicParts[i] {
			return false
		}
	}
	return len(topicParts) == len(filterParts)
}
