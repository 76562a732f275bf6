package consumer

import (
	"context"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
)

type collectingHandler struct {
	mu      sync.Mutex
	answers []domain.Answer
	want    int
	signal  chan struct{}
}

func newCollectingHandler(want int) *collectingHandler {
	return &collectingHandler{want: want, signal: make(chan struct{})}
}

func (h *collectingHandler) Handle(_ context.Context, answer domain.Answer) {
	h.mu.Lock()
	h.answers = append(h.answers, answer)
	count := len(h.answers)
	h.mu.Unlock()
	if count == h.want {
		close(h.signal)
	}
}

func (h *collectingHandler) collected() []domain.Answer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]domain.Answer(nil), h.answers...)
}

func TestDispatchDecodesAndSchedules(t *testing.T) {
	handler := newCollectingHandler(1)
	dispatcher := NewDispatcher("answer", "|", handler)

	var group errgroup.Group
	dispatcher.Dispatch(context.Background(), Message{
		Topic:   "answer",
		Payload: []byte("00-B0-D0-63-C2-26|spam|2"),
	}, &group)
	_ = group.Wait()

	answers := handler.collected()
	if len(answers) != 1 {
		t.Fatalf("expected one handled answer, got %d", len(answers))
	}
	if answers[0].DeviceID != "00:b0:d0:63:c2:26" || answers[0].QuestionID != "spam" || answers[0].Choice != 2 {
		t.Fatalf("unexpected answer %+v", answers[0])
	}
}

func TestDispatchDropsIrrelevantTopic(t *testing.T) {
	handler := newCollectingHandler(1)
	dispatcher := NewDispatcher("answer", "|", handler)

	var group errgroup.Group
	dispatcher.Dispatch(context.Background(), Message{
		Topic:   "chatter",
		Payload: []byte("00-B0-D0-63-C2-26|spam|2"),
	}, &group)
	_ = group.Wait()

	if len(handler.collected()) != 0 {
		t.Fatalf("expected message from other topic to be dropped")
	}
}

func TestDispatchDropsUndecodablePayload(t *testing.T) {
	handler := newCollectingHandler(1)
	dispatcher := NewDispatcher("answer", "|", handler)

	var group errgroup.Group
	for _, payload := range []string{"garbage", "C0-FF-ZZ-F0-40-23|foobar|3", "00-B0-D0-63-C2-26|spam|7"} {
		dispatcher.Dispatch(context.Background(), Message{Topic: "answer", Payload: []byte(payload)}, &group)
	}
	_ = group.Wait()

	if len(handler.collected()) != 0 {
		t.Fatalf("expected undecodable payloads to be dropped")
	}
}

func TestTopicMatches(t *testing.T) {
	cases := []struct {
		topic  string
		filter string
		want   bool
	}{
		{"answer", "answer", true},
		{"answer", "other", false},
		{"quiz/answer", "quiz/+", true},
		{"quiz/answer/extra", "quiz/+", false},
		{"quiz/answer/extra", "quiz/#", true},
		{"quiz", "quiz/#", true},
		{"quizzes/answer", "quiz/#", false},
		{"quiz/answer", "#", true},
	}
	for _, tc := range cases {
		if got := TopicMatches(tc.topic, tc.filter); got != tc.want {
			t.Fatalf("TopicMatches(%q, %q) = %v, want %v", tc.topic, tc.filter, got, tc.want)
		}
	}
}
