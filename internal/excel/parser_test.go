package excel

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/SalahElkadim/alc/internal/model"
	"github.com/SalahElkadim/alc/pkg/errors"
)

func workbook(t *testing.T, sheets map[string][][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()

	for name, rows := range sheets {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for i, row := range rows {
			row := row
			require.NoError(t, f.SetSheetRow(name, fmt.Sprintf("A%d", i+1), &row))
		}
	}
	require.NoError(t, f.DeleteSheet("Sheet1"))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func fullWorkbook(t *testing.T) []byte {
	return workbook(t, map[string][][]interface{}{
		"MCQ": {
			{"difficulty", "question", "choices", "correct_answer"},
			{"Easy", "Pick the verb", "run | blue | table", "run"},
			{},
			{"medium", "Pick the noun", "go|chair", "chair"},
		},
		"truefalse": {
			{"difficulty", "question", "answer"},
			{"easy", "The sky is blue", "صح"},
			{"hard", "Fire is cold", "FALSE"},
		},
		"matching": {
			{"group", "difficulty", "question", "left_item", "right_item"},
			{"m1", "easy", "Match the opposites", "hot", "cold"},
			{"m1", "easy", "", "up", "down"},
			{"m2", "hard", "Match capitals", "France", "Paris"},
			{"m2", "hard", "", "Japan", "Tokyo"},
		},
		"reading": {
			{"group", "difficulty", "question", "passage", "sub_question", "choices", "correct_answer"},
			{"r1", "medium", "Read the passage", "Tom has a cat.", "What does Tom have?", "cat|dog", "cat"},
			{"r1", "medium", "", "", "Who has a cat?", "", "Tom"},
		},
	})
}

func TestParseWorkbook(t *testing.T) {
	questions, err := NewParser().Parse(context.Background(), fullWorkbook(t))
	require.NoError(t, err)
	require.Len(t, questions, 7)

	byType := map[model.QuestionType][]model.Question{}
	for _, q := range questions {
		byType[q.Type] = append(byType[q.Type], q)
	}

	mcq := byType[model.QuestionMCQ]
	require.Len(t, mcq, 2)
	assert.Equal(t, model.DifficultyEasy, mcq[0].Difficulty)
	assert.Equal(t, []string{"run", "blue", "table"}, mcq[0].Choices)
	assert.Equal(t, "run", mcq[0].CorrectAnswer)

	tf := byType[model.QuestionTrueFalse]
	require.Len(t, tf, 2)
	assert.True(t, tf[0].IsTrue)
	assert.False(t, tf[1].IsTrue)

	matching := byType[model.QuestionMatching]
	require.Len(t, matching, 2)
	assert.Equal(t, "Match the opposites", matching[0].Text)
	require.Len(t, matching[0].Pairs, 2)
	assert.Equal(t, model.MatchingPair{MatchKey: "2", LeftItem: "up", RightItem: "down"}, matching[0].Pairs[1])

	reading := byType[model.QuestionReading]
	require.Len(t, reading, 1)
	assert.Equal(t, "Tom has a cat.", reading[0].Passage)
	require.Len(t, reading[0].SubQuestions, 2)
	assert.Equal(t, []string{"cat", "dog"}, reading[0].SubQuestions[0].Choices)
	assert.Empty(t, reading[0].SubQuestions[1].Choices)

	require.NoError(t, NewValidator().Validate(context.Background(), questions))
}

func TestParseMissingColumn(t *testing.T) {
	data := workbook(t, map[string][][]interface{}{
		"mcq": {{"difficulty", "question", "correct_answer"}, {"easy", "q", "a"}},
	})

	_, err := NewParser().Parse(context.Background(), data)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing required column: choices")
}

func TestParseNoKnownSheets(t *testing.T) {
	data := workbook(t, map[string][][]interface{}{"grades": {{"a"}, {"b"}}})

	_, err := NewParser().Parse(context.Background(), data)
	assert.ErrorIs(t, err, errors.ErrInvalidFileFormat)
}

func TestParseInvalidTrueFalse(t *testing.T) {
	data := workbook(t, map[string][][]interface{}{
		"truefalse": {{"difficulty", "question", "answer"}, {"easy", "q", "maybe"}},
	})

	_, err := NewParser().Parse(context.Background(), data)
	var ve errors.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "truefalse!answer2", ve.Field)
}

func TestParseNotAWorkbook(t *testing.T) {
	_, err := NewParser().Parse(context.Background(), []byte("not a zip"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := model.Question{
		Type: model.QuestionMCQ, Difficulty: model.DifficultyEasy, Text: "q",
		Choices: []string{"a", "b"}, CorrectAnswer: "a",
	}

	cases := []struct {
		name  string
		q     func(q model.Question) model.Question
		field string
	}{
		{"bad difficulty", func(q model.Question) model.Question { q.Difficulty = "extreme"; return q }, "mcq[1].difficulty"},
		{"empty text", func(q model.Question) model.Question { q.Text = ""; return q }, "mcq[1].question"},
		{"answer not a choice", func(q model.Question) model.Question { q.CorrectAnswer = "c"; return q }, "mcq[1].correct_answer"},
		{"one pair", func(q model.Question) model.Question {
			q.Type = model.QuestionMatching
			q.Pairs = []model.MatchingPair{{MatchKey: "1", LeftItem: "a", RightItem: "b"}}
			return q
		}, "matching[1].pairs"},
		{"duplicate left", func(q model.Question) model.Question {
			q.Type = model.QuestionMatching
			q.Pairs = []model.MatchingPair{{MatchKey: "1", LeftItem: "a", RightItem: "b"}, {MatchKey: "2", LeftItem: "a", RightItem: "c"}}
			return q
		}, "matching[1].left_item"},
		{"duplicate left ignoring case", func(q model.Question) model.Question {
			q.Type = model.QuestionMatching
			q.Pairs = []model.MatchingPair{{MatchKey: "1", LeftItem: "Cat", RightItem: "b"}, {MatchKey: "2", LeftItem: " cat ", RightItem: "c"}}
			return q
		}, "matching[1].left_item"},
		{"reading without subs", func(q model.Question) model.Question { q.Type = model.QuestionReading; return q }, "reading[1].sub_questions"},
	}

	v := NewValidator()
	require.NoError(t, v.Validate(context.Background(), []model.Question{valid}))
	assert.ErrorIs(t, v.Validate(context.Background(), nil), errors.ErrSchemaValidation)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(context.Background(), []model.Question{tc.q(valid)})
			var ve errors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestQuestionBankReader(t *testing.T) {
	reader := NewQuestionBankReader()

	questions, err := reader.Read(context.Background(), fullWorkbook(t))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"mcq/easy":       1,
		"mcq/medium":     1,
		"truefalse/easy": 1,
		"truefalse/hard": 1,
		"matching/easy":  1,
		"matching/hard":  1,
		"reading/medium": 1,
	}, Tally(questions))

	bad := workbook(t, map[string][][]interface{}{
		"mcq": {
			{"difficulty", "question", "choices", "correct_answer"},
			{"easy", "Pick one", "a|b", "c"},
		},
	})
	questions, err = reader.Read(context.Background(), bad)
	assert.Error(t, err)
	assert.Nil(t, questions)
}
