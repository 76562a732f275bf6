package bankfile

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rust-community-pl/mqtt-consumer/internal/domain"
)

// Loader reads the question bank from a YAML file: an ordered list of
// question records. Validation is wholesale; one bad record rejects the file.
type Loader struct {
	path string
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

func (l *Loader) LoadBank(_ context.Context) (domain.QuestionBank, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}

	var records []domain.QuestionRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse question bank %s: %w", l.path, err)
	}

	bank, err := domain.BuildBank(records)
	if err != nil {
		return nil, fmt.Errorf("question bank %s: %w", l.path, err)
	}
	return bank, nil
}
