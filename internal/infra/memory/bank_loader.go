package memory

import (
	"context"

	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
)

// StaticBankLoader serves a pre-built question bank (useful for tests/demos).
type StaticBankLoader struct {
	bank domain.QuestionBank
}

func NewStaticBankLoader(bank domain.QuestionBank) *StaticBankLoader {
	return &StaticBankLoader{bank: bank}
}

func (l *StaticBankLoader) LoadBank(_ context.Context) (domain.QuestionBank, error) {
	return l.bank, nil
}
