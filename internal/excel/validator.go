package excel

import (
	"context"
	"fmt"
	"strings"

	"github.com/SalahElkadim/alc/internal/model"
	"github.com/SalahElkadim/alc/pkg/errors"
)

const maxTextLength = 2000

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Validate(ctx context.Context, questions []model.Question) error {
	if len(questions) == 0 {
		return errors.ErrSchemaValidation
	}

	for i, q := range questions {
		if err := v.validateQuestion(q, i+1); err != nil {
			return err
		}
	}

	return nil
}

func (v *Validator) validateQuestion(q model.Question, n int) error {
	field := func(name string) string {
		return fmt.Sprintf("%s[%d].%s", q.Type, n, name)
	}

	if !q.Difficulty.Valid() {
		return errors.ValidationError{
			Field:   field("difficulty"),
			Value:   q.Difficulty,
			Message: "must be easy, medium or hard",
		}
	}

	if len(q.Text) == 0 || len(q.Text) > maxTextLength {
		return errors.ValidationError{
			Field:   field("question"),
			Value:   q.Text,
			Message: "question text cannot be empty",
		}
	}

	switch q.Type {
	case model.QuestionMCQ:
		if len(q.Choices) < 2 {
			return errors.ValidationError{Field: field("choices"), Value: q.Choices, Message: "needs at least two choices"}
		}
		if !contains(q.Choices, q.CorrectAnswer) {
			return errors.ValidationError{Field: field("correct_answer"), Value: q.CorrectAnswer, Message: "must be one of the choices"}
		}

	case model.QuestionMatching:
		if len(q.Pairs) < 2 {
			return errors.ValidationError{Field: field("pairs"), Value: len(q.Pairs), Message: "needs at least two pairs"}
		}
		seen := make(map[string]bool, len(q.Pairs))
		for _, p := range q.Pairs {
			if p.LeftItem == "" || p.RightItem == "" {
				return errors.ValidationError{Field: field("pairs"), Value: p.MatchKey, Message: "left and right items are required"}
			}
			// graded case and space insensitively, so compared the same way here
			left := strings.ToLower(strings.TrimSpace(p.LeftItem))
			if seen[left] {
				return errors.ValidationError{Field: field("left_item"), Value: p.LeftItem, Message: "left items must be unique"}
			}
			seen[left] = true
		}

	case model.QuestionReading:
		if len(q.SubQuestions) == 0 {
			return errors.ValidationError{Field: field("sub_questions"), Value: 0, Message: "needs at least one sub-question"}
		}
		for i, sq := range q.SubQuestions {
			if sq.Question == "" || sq.CorrectAnswer == "" {
				return errors.ValidationError{
					Field:   field(fmt.Sprintf("sub_questions[%d]", i+1)),
					Value:   sq.Question,
					Message: "question and correct_answer are required",
				}
			}
			if len(sq.Choices) > 0 && !contains(sq.Choices, sq.CorrectAnswer) {
				return errors.ValidationError{
					Field:   field(fmt.Sprintf("sub_questions[%d].correct_answer", i+1)),
					Value:   sq.CorrectAnswer,
					Message: "must be one of the choices",
				}
			}
		}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
