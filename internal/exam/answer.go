package exam

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

type AnswerKind int

const (
	AnswerNone AnswerKind = iota
	// AnswerText is a single free-text value (MCQ choice, TrueFalse word,
	// or one Reading answer).
	AnswerText
	AnswerBool
	AnswerPairs
	AnswerList
)

type PairAnswer struct {
	LeftItem  string `json:"left_item"`
	RightItem string `json:"right_item"`
}

type SubAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Answer is a submitted answer resolved to exactly one shape.
type Answer struct {
	Kind  AnswerKind
	Text  string
	Bool  bool
	Pairs []PairAnswer
	List  []SubAnswer
}

func (a Answer) Empty() bool {
	switch a.Kind {
	case AnswerNone:
		return true
	case AnswerText:
		return strings.TrimSpace(a.Text) == ""
	case AnswerPairs:
		return len(a.Pairs) == 0
	case AnswerList:
		return len(a.List) == 0
	}
	return false
}

// ParseAnswer resolves a raw JSON answer for a question type. Shapes that
// can never be graded for that type are rejected with a ValidationError.
func ParseAnswer(qtype model.QuestionType, raw json.RawMessage) (Answer, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Answer{Kind: AnswerNone}, nil
	}

	invalid := func(msg string) (Answer, error) {
		return Answer{}, apperrors.ValidationError{Field: "answer", Value: string(raw), Message: msg}
	}

	switch qtype {
	case model.QuestionMCQ:
		text, ok := scalarText(raw)
		if !ok {
			return invalid("mcq answer must be a single value")
		}
		return Answer{Kind: AnswerText, Text: text}, nil

	case model.QuestionTrueFalse:
		var b bool
		if err := json.Unmarshal(raw, &b); err == nil {
			return Answer{Kind: AnswerBool, Bool: b}, nil
		}
		text, ok := scalarText(raw)
		if !ok {
			return invalid("true/false answer must be a single value")
		}
		return Answer{Kind: AnswerText, Text: text}, nil

	case model.QuestionMatching:
		var pairs []PairAnswer
		if err := json.Unmarshal(raw, &pairs); err == nil {
			return Answer{Kind: AnswerPairs, Pairs: pairs}, nil
		}
		var byLeft map[string]string
		if err := json.Unmarshal(raw, &byLeft); err == nil {
			for left, right := range byLeft {
				pairs = append(pairs, PairAnswer{LeftItem: left, RightItem: right})
			}
			return Answer{Kind: AnswerPairs, Pairs: pairs}, nil
		}
		return invalid("matching answer must be a list of {left_item, right_item}")

	case model.QuestionReading:
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			return Answer{Kind: AnswerText, Text: text}, nil
		}
		var list []SubAnswer
		if err := json.Unmarshal(raw, &list); err == nil {
			return Answer{Kind: AnswerList, List: list}, nil
		}
		return invalid("reading answer must be a string or a list of {question, answer}")
	}

	return invalid(fmt.Sprintf("unknown question type %q", qtype))
}

func scalarText(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		if b {
			return "true", true
		}
		return "false", true
	}
	return "", false
}
