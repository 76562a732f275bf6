package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/rust-community-pl/mqtt-consumer/internal/app"
	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
)

// SQLSTATE for a unique constraint violation.
const pgUniqueViolation = "23505"

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	DeviceID   string    `bun:"device_id,pk"`
	QuestionID string    `bun:"question_id,pk"`
	Choice     int       `bun:"choice"`
	ReceivedAt time.Time `bun:"received_at,nullzero,default:current_timestamp"`
}

// AnswerStore persists answers in the answers table. First-write-wins is the
// composite primary key (device_id, question_id); there is no update path and
// no check-then-insert.
type AnswerStore struct {
	db *bun.DB
}

func NewAnswerStore(db *bun.DB) *AnswerStore {
	return &AnswerStore{db: db}
}

// NewDB opens a bun handle over pgdriver for the given DSN.
func NewDB(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

// Insert writes the answer, letting the database assign received_at. A
// primary key conflict reports InsertDuplicate; anything else reports
// InsertFailed with the wrapped cause.
func (s *AnswerStore) Insert(ctx context.Context, answer *domain.Answer) (app.InsertOutcome, error) {
	row := &answerRow{
		DeviceID:   answer.DeviceID,
		QuestionID: answer.QuestionID,
		Choice:     answer.Choice,
	}
	_, err := s.db.NewInsert().Model(row).Returning("received_at").Exec(ctx)
	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == pgUniqueViolation {
			return app.InsertDuplicate, nil
		}
		return app.InsertFailed, fmt.Errorf("insert answer: %w", err)
	}
	answer.ReceivedAt = row.ReceivedAt
	return app.InsertCommitted, nil
}

// DeleteAll purges every durable answer and returns the count removed. Used
// for resetting between events, never on the ingestion hot path.
func (s *AnswerStore) DeleteAll(ctx context.Context) (int, error) {
	res, err := s.db.NewDelete().Model((*answerRow)(nil)).Where("TRUE").Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete answers: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted answers: %w", err)
	}
	return int(affected), nil
}

// ScanAll returns every durable answer in arrival order, for replaying into
// a fresh aggregate.
func (s *AnswerStore) ScanAll(ctx context.Context) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Order("received_at ASC", "device_id ASC", "question_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan answers: %w", err)
	}

	answers := make([]domain.Answer, 0, len(rows))
	for _, row := range rows {
		answers = append(answers, domain.Answer{
			DeviceID:   row.DeviceID,
			QuestionID: row.QuestionID,
			Choice:     row.Choice,
			ReceivedAt: row.ReceivedAt,
		})
	}
	return answers, nil
}
