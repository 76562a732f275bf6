package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// CorrectChoice pairs the winning choice index with its answer text.
type CorrectChoice struct {
	Index int
	Text  string
}

// Question is one validated quiz item. Loaders build instances through
// NewQuestion, so a bank entry always satisfies the consistency rules.
type Question struct {
	ID      string
	Content string
	Choices map[int]string
	Correct CorrectChoice
	Comment string
}

// QuestionBank maps question IDs to validated questions for one event.
type QuestionBank map[string]Question

// NewQuestion validates a quiz item. The correct choice must reference an
// existing entry in choices and carry the exact same text; a mismatch rejects
// the question, and with it the whole bank.
func NewQuestion(id, content string, choices map[int]string, correct CorrectChoice, comment string) (Question, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Question{}, fmt.Errorf("%w: question with empty id", ErrBankInconsistent)
	}

	trimmed := make(map[int]string, len(choices))
	for index, text := range choices {
		if index < MinChoice || index > MaxChoice {
			return Question{}, fmt.Errorf("%w: question %q has choice index %d", ErrBankInconsistent, id, index)
		}
		trimmed[index] = strings.TrimSpace(text)
	}

	correct.Text = strings.TrimSpace(correct.Text)
	referenced, ok := trimmed[correct.Index]
	if !ok {
		return Question{}, fmt.Errorf("%w: question %q marks %d correct but offers no such choice",
			ErrBankInconsistent, id, correct.Index)
	}
	if referenced != correct.Text {
		return Question{}, fmt.Errorf("%w: question %q correct text %q does not match choice %d (%q)",
			ErrBankInconsistent, id, correct.Text, correct.Index, referenced)
	}

	return Question{
		ID:      id,
		Content: strings.TrimSpace(content),
		Choices: trimmed,
		Correct: correct,
		Comment: strings.TrimSpace(comment),
	}, nil
}

// QuestionRecord is the serialized shape of one bank entry, shared by the
// YAML file loader and the Postgres JSONB loader.
type QuestionRecord struct {
	ID      string        `json:"id" yaml:"id"`
	Content string        `json:"content" yaml:"content"`
	Answers AnswersRecord `json:"answers" yaml:"answers"`
}

// AnswersRecord carries the choices of one serialized bank entry.
type AnswersRecord struct {
	Choices map[int]string `json:"choices" yaml:"choices"`
	Correct CorrectRecord  `json:"correct" yaml:"correct"`
	Comment string         `json:"comment,omitempty" yaml:"comment,omitempty"`
}

// CorrectRecord is serialized as a two-element [index, text] sequence.
type CorrectRecord struct {
	Index int
	Text  string
}

func (c *CorrectRecord) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("correct: expected [index, text], got %d elements", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &c.Index); err != nil {
		return fmt.Errorf("correct index: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &c.Text); err != nil {
		return fmt.Errorf("correct text: %w", err)
	}
	return nil
}

func (c CorrectRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{c.Index, c.Text})
}

func (c *CorrectRecord) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.SequenceNode || len(node.Content) != 2 {
		return fmt.Errorf("correct: expected [index, text] sequence")
	}
	if err := node.Content[0].Decode(&c.Index); err != nil {
		return fmt.Errorf("correct index: %w", err)
	}
	if err := node.Content[1].Decode(&c.Text); err != nil {
		return fmt.Errorf("correct text: %w", err)
	}
	return nil
}

func (c CorrectRecord) MarshalYAML() (any, error) {
	return [2]any{c.Index, c.Text}, nil
}

// BuildBank validates every record and keys the result by question ID.
// A single invalid record rejects the whole bank.
func BuildBank(records []QuestionRecord) (QuestionBank, error) {
	bank := make(QuestionBank, len(records))
	for _, record := range records {
		question, err := NewQuestion(
			record.ID,
			record.Content,
			record.Answers.Choices,
			CorrectChoice{Index: record.Answers.Correct.Index, Text: record.Answers.Correct.Text},
			record.Answers.Comment,
		)
		if err != nil {
			return nil, err
		}
		if _, exists := bank[question.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateQuestion, question.ID)
		}
		bank[question.ID] = question
	}
	return bank, nil
}
