package app

import (
	"context"
	"log"

	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
)

// InsertOutcome classifies one attempt to persist an answer.
type InsertOutcome int

const (
	// InsertCommitted means the answer became the durable first answer for
	// its (device, question) pair.
	InsertCommitted InsertOutcome = iota
	// InsertDuplicate means the pair already had a committed answer. Expected
	// under retransmission; not an error.
	InsertDuplicate
	// InsertFailed means the store rejected the write for any other reason.
	// The answer is lost from the durable layer.
	InsertFailed
)

// AnswerStore is the durable first-write-wins store for answers. Uniqueness
// of (device_id, question_id) is enforced by the store itself, not by
// check-then-insert application logic.
type AnswerStore interface {
	Insert(ctx context.Context, answer *domain.Answer) (InsertOutcome, error)
	DeleteAll(ctx context.Context) (int, error)
	ScanAll(ctx context.Context) ([]domain.Answer, error)
}

// BankLoader fetches the question bank from a backing store (YAML file,
// Postgres, in-memory for tests).
type BankLoader interface {
	LoadBank(ctx context.Context) (domain.QuestionBank, error)
}

// StatsPublisher pushes per-device tallies to external display tooling.
type StatsPublisher interface {
	PublishDevice(ctx context.Context, snapshot DeviceSnapshot) error
}

// Ingestor handles one decoded answer: persist first, then fold the answer
// into the aggregate only when the store committed it. The two layers are not
// transactionally linked; the aggregate stays consistent with the store by
// construction because duplicates and failures never reach it.
type Ingestor struct {
	store     AnswerStore
	agg       *Aggregator
	publisher StatsPublisher
}

func NewIngestor(store AnswerStore, agg *Aggregator, publisher StatsPublisher) *Ingestor {
	return &Ingestor{store: store, agg: agg, publisher: publisher}
}

// Handle runs the persist+aggregate sequence for one answer. It never
// returns an error: every failure mode is logged and the next message is
// unaffected.
func (i *Ingestor) Handle(ctx context.Context, answer domain.Answer) {
	outcome, err := i.store.Insert(ctx, &answer)
	switch outcome {
	case InsertCommitted:
		log.Printf("saved %s", answer)
	case InsertDuplicate:
		log.Printf("skipped %s (already answered)", answer)
		return
	default:
		log.Printf("ignoring failure while persisting %s: %v", answer, err)
		return
	}

	if _, ok := i.agg.Record(answer); !ok {
		return
	}

	if i.publisher == nil {
		return
	}
	if snapshot, ok := i.agg.DeviceSnapshot(answer.DeviceID); ok {
		// Best effort: the display export must never stall ingestion.
		if err := i.publisher.PublishDevice(ctx, snapshot); err != nil {
			log.Printf("stats export for %s failed: %v", answer.DeviceID, err)
		}
	}
}
