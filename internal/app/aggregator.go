package app

import (
	"log"
	"sync"

	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
)

// DeviceStatistics tallies the answers the aggregator has observed for one
// device. It may lag behind the durable store until rehydrated.
type DeviceStatistics struct {
	bank    domain.QuestionBank
	answers map[string]domain.Answer
}

func newDeviceStatistics(bank domain.QuestionBank) *DeviceStatistics {
	return &DeviceStatistics{
		bank:    bank,
		answers: make(map[string]domain.Answer),
	}
}

// TotalAnswers counts the distinct questions this device has answered.
func (s *DeviceStatistics) TotalAnswers() int {
	return len(s.answers)
}

// TotalCorrectAnswers counts recorded answers whose choice matches the bank's
// correct index. Entries pointing at questions missing from the bank are
// ignored.
func (s *DeviceStatistics) TotalCorrectAnswers() int {
	correct := 0
	for questionID, answer := range s.answers {
		question, ok := s.bank[questionID]
		if !ok {
			continue
		}
		if question.Correct.Index == answer.Choice {
			correct++
		}
	}
	return correct
}

// DeviceSnapshot is an immutable view of one device's tallies.
type DeviceSnapshot struct {
	DeviceID            string `json:"device_id"`
	TotalAnswers        int    `json:"total_answers"`
	TotalCorrectAnswers int    `json:"total_correct_answers"`
}

// DeviceReport is the serializable per-device export for display tooling.
type DeviceReport struct {
	TotalAnswers        int `json:"total_answers"`
	TotalCorrectAnswers int `json:"total_correct_answers"`
}

// Aggregator owns the process-wide device statistics map. All mutation and
// snapshotting happens under a single mutex: the bank lookup, the
// fetch-or-create of the device entry, the existence check, and the insert
// form one critical section, so two concurrent answers from the same device
// can never race on map creation or both count as first for a question.
type Aggregator struct {
	bank domain.QuestionBank

	mu          sync.Mutex
	devices     map[string]*DeviceStatistics
	order       []string
	subscribers map[chan []LeaderboardItem]struct{}
}

func NewAggregator(bank domain.QuestionBank) *Aggregator {
	return &Aggregator{
		bank:        bank,
		devices:     make(map[string]*DeviceStatistics),
		subscribers: make(map[chan []LeaderboardItem]struct{}),
	}
}

// Record applies a committed answer to the in-memory aggregate. It must only
// be called once the durable store has accepted the answer; duplicates
// rejected by the store never reach the aggregate.
//
// The returned question is the bank entry the answer refers to; ok is false
// when the aggregate was left untouched (unknown question, or the device had
// already answered it).
func (a *Aggregator) Record(answer domain.Answer) (domain.Question, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	question, ok := a.recordLocked(answer)
	if ok {
		a.broadcastLocked()
	}
	return question, ok
}

// recordLocked is the single per-answer aggregation step shared by live
// ingestion and bulk replay. Callers must hold a.mu.
func (a *Aggregator) recordLocked(answer domain.Answer) (domain.Question, bool) {
	question, ok := a.bank[answer.QuestionID]
	if !ok {
		log.Printf("stats: %s refers to a question outside the active bank, skipping", answer)
		return domain.Question{}, false
	}

	stats, ok := a.devices[answer.DeviceID]
	if !ok {
		stats = newDeviceStatistics(a.bank)
		a.devices[answer.DeviceID] = stats
		a.order = append(a.order, answer.DeviceID)
	}

	if _, exists := stats.answers[answer.QuestionID]; exists {
		// Should not happen while the store enforces uniqueness, but the
		// aggregate must not depend on that in every code path.
		log.Printf("stats: ignoring repeated %s, keeping the first answer", answer)
		return question, false
	}

	stats.answers[answer.QuestionID] = answer
	return question, true
}

// Rehydrate discards the current aggregate and rebuilds it by replaying
// durable answers through the same per-answer step as live ingestion.
// Replaying the same store state twice yields identical snapshots.
func (a *Aggregator) Rehydrate(answers []domain.Answer) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.devices = make(map[string]*DeviceStatistics)
	a.order = nil
	for _, answer := range answers {
		a.recordLocked(answer)
	}
	a.broadcastLocked()
}

// Snapshot returns per-device tallies in the order devices were first seen.
func (a *Aggregator) Snapshot() []DeviceSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() []DeviceSnapshot {
	snapshot := make([]DeviceSnapshot, 0, len(a.order))
	for _, deviceID := range a.order {
		stats := a.devices[deviceID]
		snapshot = append(snapshot, DeviceSnapshot{
			DeviceID:            deviceID,
			TotalAnswers:        stats.TotalAnswers(),
			TotalCorrectAnswers: stats.TotalCorrectAnswers(),
		})
	}
	return snapshot
}

// DeviceSnapshot returns the tallies for a single device.
func (a *Aggregator) DeviceSnapshot(deviceID string) (DeviceSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats, ok := a.devices[deviceID]
	if !ok {
		return DeviceSnapshot{}, false
	}
	return DeviceSnapshot{
		DeviceID:            deviceID,
		TotalAnswers:        stats.TotalAnswers(),
		TotalCorrectAnswers: stats.TotalCorrectAnswers(),
	}, true
}

// Report exports the aggregate as the device_id -> tallies mapping consumed
// by external display tooling.
func (a *Aggregator) Report() map[string]DeviceReport {
	a.mu.Lock()
	defer a.mu.Unlock()

	report := make(map[string]DeviceReport, len(a.devices))
	for deviceID, stats := range a.devices {
		report[deviceID] = DeviceReport{
			TotalAnswers:        stats.TotalAnswers(),
			TotalCorrectAnswers: stats.TotalCorrectAnswers(),
		}
	}
	return report
}

// Subscribe returns a channel that receives a fresh leaderboard whenever the
// aggregate changes. The caller must invoke the returned cancel function to
// avoid leaks.
func (a *Aggregator) Subscribe() (<-chan []LeaderboardItem, func()) {
	ch := make(chan []LeaderboardItem, 8)

	a.mu.Lock()
	a.subscribers[ch] = struct{}{}
	initial := BuildLeaderboard(a.snapshotLocked())
	a.mu.Unlock()

	ch <- initial

	cancel := func() {
		a.mu.Lock()
		if _, ok := a.subscribers[ch]; ok {
			delete(a.subscribers, ch)
			close(ch)
		}
		a.mu.Unlock()
	}
	return ch, cancel
}

func (a *Aggregator) broadcastLocked() {
	if len(a.subscribers) == 0 {
		return
	}
	leaderboard := BuildLeaderboard(a.snapshotLocked())
	for ch := range a.subscribers {
		select {
		case ch <- leaderboard:
		default:
			// Drop the stale update so a slow display never blocks ingestion.
			select {
			case <-ch:
			default:
			}
			ch <- leaderboard
		}
	}
}
