package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
)

// BankLoader reads the question bank from the questions table, one JSONB
// record per row, ordered by seeding position.
type BankLoader struct {
	pool *pgxpool.Pool
}

func NewBankLoader(pool *pgxpool.Pool) *BankLoader {
	return &BankLoader{pool: pool}
}

func (l *BankLoader) LoadBank(ctx context.Context) (domain.QuestionBank, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM questions ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("load question bank: %w", err)
	}
	defer rows.Close()

	var records []domain.QuestionRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan question row: %w", err)
		}
		var record domain.QuestionRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			return nil, fmt.Errorf("unmarshal question: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read question rows: %w", err)
	}

	return domain.BuildBank(records)
}
