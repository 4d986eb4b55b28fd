package excel

import (
	"context"
	"fmt"

	"github.com/SalahElkadim/alc/internal/model"
)

// QuestionBankReader turns an uploaded workbook into questions ready to insert.
type QuestionBankReader interface {
	// Read parses and validates; no questions are returned unless all pass.
	Read(ctx context.Context, data []byte) ([]model.Question, error)
}

type workbookReader struct {
	parser    *Parser
	validator *Validator
}

func NewQuestionBankReader() QuestionBankReader {
	return &workbookReader{
		parser:    NewParser(),
		validator: NewValidator(),
	}
}

func (r *workbookReader) Read(ctx context.Context, data []byte) ([]model.Question, error) {
	questions, err := r.parser.Parse(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := r.validator.Validate(ctx, questions); err != nil {
		return nil, err
	}
	return questions, nil
}

// Tally counts questions per "type/difficulty" bucket, the unit exams are
// composed from.
func Tally(questions []model.Question) map[string]int {
	out := make(map[string]int)
	for _, q := range questions {
		out[fmt.Sprintf("%s/%s", q.Type, q.Difficulty)]++
	}
	return out
}
