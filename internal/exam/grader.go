package exam

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/SalahElkadim/alc/internal/model"
)

var (
	trueWords  = map[string]bool{"true": true, "1": true, "yes": true, "صح": true}
	falseWords = map[string]bool{"false": true, "0": true, "no": true, "خطأ": true}
)

// Outcome is the result of grading a single exam question.
type Outcome struct {
	Score        decimal.Decimal
	Possible     decimal.Decimal
	IsCorrect    bool
	SubQuestions int
}

func (o Outcome) Partial() bool {
	return o.Score.IsPositive() && o.Score.LessThan(o.Possible)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Grade scores answer against the frozen correct answer of q. It has no side
// effects. An error means the frozen payload itself is unreadable.
func Grade(q model.ExamQuestion, answer Answer) (Outcome, error) {
	switch q.QuestionType {
	case model.QuestionMCQ:
		return gradeMCQ(q, answer)
	case model.QuestionTrueFalse:
		return gradeTrueFalse(q, answer)
	case model.QuestionMatching:
		return gradeMatching(q, answer)
	case model.QuestionReading:
		return gradeReading(q, answer)
	}
	return Outcome{}, fmt.Errorf("unknown question type %q", q.QuestionType)
}

func gradeMCQ(q model.ExamQuestion, answer Answer) (Outcome, error) {
	out := Outcome{Score: decimal.Zero, Possible: q.Points}

	correct, ok := scalarText(q.CorrectAnswer)
	if !ok {
		return out, fmt.Errorf("question %s: malformed mcq answer", q.PublicID)
	}
	if answer.Kind != AnswerText || answer.Empty() {
		return out, nil
	}

	if normalize(answer.Text) == normalize(correct) {
		out.Score = q.Points
		out.IsCorrect = true
	}
	return out, nil
}

func gradeTrueFalse(q model.ExamQuestion, answer Answer) (Outcome, error) {
	out := Outcome{Score: decimal.Zero, Possible: q.Points}

	var correct bool
	if err := json.Unmarshal(q.CorrectAnswer, &correct); err != nil {
		return out, fmt.Errorf("question %s: malformed true/false answer: %w", q.PublicID, err)
	}

	var given bool
	switch answer.Kind {
	case AnswerBool:
		given = answer.Bool
	case AnswerText:
		word := normalize(answer.Text)
		switch {
		case trueWords[word]:
			given = true
		case falseWords[word]:
			given = false
		default:
			return out, nil
		}
	default:
		return out, nil
	}

	if given == correct {
		out.Score = q.Points
		out.IsCorrect = true
	}
	return out, nil
}

func gradeMatching(q model.ExamQuestion, answer Answer) (Outcome, error) {
	var pairs []model.MatchingPair
	if err := json.Unmarshal(q.CorrectAnswer, &pairs); err != nil {
		return Outcome{}, fmt.Errorf("question %s: malformed matching pairs: %w", q.PublicID, err)
	}

	if len(pairs) == 0 {
		return Outcome{Score: decimal.Zero, Possible: decimal.NewFromInt(1)}, nil
	}

	// One point per frozen pair, matching the snapshot's points.
	out := Outcome{Score: decimal.Zero, Possible: decimal.NewFromInt(int64(len(pairs)))}
	if answer.Kind != AnswerPairs {
		return out, nil
	}

	given := make(map[string]string, len(answer.Pairs))
	for _, p := range answer.Pairs {
		given[normalize(p.LeftItem)] = normalize(p.RightItem)
	}

	matched := 0
	for _, p := range pairs {
		if got, ok := given[normalize(p.LeftItem)]; ok && got == normalize(p.RightItem) {
			matched++
		}
	}

	out.Score = decimal.NewFromInt(int64(matched))
	out.IsCorrect = matched == len(pairs)
	return out, nil
}

func gradeReading(q model.ExamQuestion, answer Answer) (Outcome, error) {
	var subs []model.ReadingSubQuestion
	if err := json.Unmarshal(q.CorrectAnswer, &subs); err != nil {
		return Outcome{}, fmt.Errorf("question %s: malformed reading sub-questions: %w", q.PublicID, err)
	}
	if len(subs) == 0 {
		return Outcome{Score: decimal.Zero, Possible: decimal.NewFromInt(1)}, nil
	}

	out := Outcome{
		Score:        decimal.Zero,
		Possible:     decimal.NewFromInt(int64(len(subs))),
		SubQuestions: len(subs),
	}

	correct := 0
	switch answer.Kind {
	case AnswerText:
		// A single free-text answer only addresses a lone sub-question.
		if len(subs) == 1 && !answer.Empty() && normalize(answer.Text) == normalize(subs[0].CorrectAnswer) {
			correct = 1
		}

	case AnswerList:
		byQuestion := make(map[string][]int, len(subs))
		for i, s := range subs {
			question := normalize(s.Question)
			byQuestion[question] = append(byQuestion[question], i)
		}

		// Each sub-question takes at most one answer. A list position
		// naming the sub-question at the same index wins, otherwise the
		// first unused sub-question with that text.
		used := make([]bool, len(subs))
		for pos, a := range answer.List {
			question := normalize(a.Question)
			idx := -1
			if pos < len(subs) && !used[pos] && normalize(subs[pos].Question) == question {
				idx = pos
			} else {
				for _, i := range byQuestion[question] {
					if !used[i] {
						idx = i
						break
					}
				}
			}
			if idx < 0 {
				continue
			}
			used[idx] = true
			if normalize(a.Answer) == normalize(subs[idx].CorrectAnswer) {
				correct++
			}
		}
	}

	out.Score = decimal.NewFromInt(int64(correct))
	out.IsCorrect = correct == len(subs)
	return out, nil
}

// PossiblePoints is the denominator contribution of q, used for unanswered questions.
func PossiblePoints(q model.ExamQuestion) decimal.Decimal {
	out, err := Grade(q, Answer{Kind: AnswerNone})
	if err != nil || out.Possible.IsZero() {
		return q.Points
	}
	return out.Possible
}
