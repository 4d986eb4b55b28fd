package excel

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/SalahElkadim/alc/internal/model"
	"github.com/SalahElkadim/alc/pkg/errors"
)

// Sheet layouts, one question type per sheet. Matching and reading rows that
// share a group value are folded into a single question.
var sheetColumns = map[model.QuestionType][]string{
	model.QuestionMCQ:       {"difficulty", "question", "choices", "correct_answer"},
	model.QuestionTrueFalse: {"difficulty", "question", "answer"},
	model.QuestionMatching:  {"group", "difficulty", "question", "left_item", "right_item"},
	model.QuestionReading:   {"group", "difficulty", "question", "sub_question", "correct_answer"},
}

const choiceSeparator = "|"

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

type sheetRow struct {
	num    int
	values map[string]string
}

func (r sheetRow) get(col string) string {
	return r.values[col]
}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]model.Question, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer file.Close()

	sheets := make(map[string]string)
	for _, name := range file.GetSheetList() {
		sheets[strings.ToLower(strings.TrimSpace(name))] = name
	}

	var questions []model.Question
	found := false
	for _, qtype := range model.QuestionTypes {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		sheetName, ok := sheets[string(qtype)]
		if !ok {
			continue
		}
		found = true

		rows, err := p.readSheet(file, sheetName, sheetColumns[qtype])
		if err != nil {
			return nil, err
		}

		parsed, err := p.build(qtype, sheetName, rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, parsed...)
	}

	if !found {
		return nil, errors.ErrInvalidFileFormat
	}

	return questions, nil
}

func (p *Parser) readSheet(file *excelize.File, sheetName string, required []string) ([]sheetRow, error) {
	rows, err := file.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows of %s: %w", sheetName, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	columnMap := make(map[string]int)
	for i, col := range rows[0] {
		columnMap[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range required {
		if _, exists := columnMap[col]; !exists {
			return nil, fmt.Errorf("sheet %s: missing required column: %s", sheetName, col)
		}
	}

	var out []sheetRow
	for i, row := range rows[1:] {
		values := make(map[string]string, len(columnMap))
		blank := true
		for col, idx := range columnMap {
			if idx < len(row) {
				values[col] = strings.TrimSpace(row[idx])
				if values[col] != "" {
					blank = false
				}
			}
		}
		if blank {
			continue
		}
		out = append(out, sheetRow{num: i + 2, values: values})
	}
	return out, nil
}

func (p *Parser) build(qtype model.QuestionType, sheet string, rows []sheetRow) ([]model.Question, error) {
	switch qtype {
	case model.QuestionMCQ:
		return p.buildMCQ(sheet, rows)
	case model.QuestionTrueFalse:
		return p.buildTrueFalse(sheet, rows)
	case model.QuestionMatching:
		return p.buildMatching(sheet, rows)
	case model.QuestionReading:
		return p.buildReading(sheet, rows)
	}
	return nil, fmt.Errorf("unsupported question type %s", qtype)
}

func rowError(sheet string, row int, col, value, msg string) error {
	return errors.ValidationError{
		Field:   fmt.Sprintf("%s!%s%d", sheet, col, row),
		Value:   value,
		Message: msg,
	}
}

func splitChoices(raw string) []string {
	var out []string
	for _, c := range strings.Split(raw, choiceSeparator) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

func (p *Parser) buildMCQ(sheet string, rows []sheetRow) ([]model.Question, error) {
	out := make([]model.Question, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.Question{
			Type:          model.QuestionMCQ,
			Difficulty:    model.Difficulty(strings.ToLower(r.get("difficulty"))),
			Text:          r.get("question"),
			Choices:       splitChoices(r.get("choices")),
			CorrectAnswer: r.get("correct_answer"),
		})
	}
	return out, nil
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1", "yes", "صح":
		return true, true
	case "false", "0", "no", "خطأ":
		return false, true
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b, true
	}
	return false, false
}

func (p *Parser) buildTrueFalse(sheet string, rows []sheetRow) ([]model.Question, error) {
	out := make([]model.Question, 0, len(rows))
	for _, r := range rows {
		isTrue, ok := parseBool(r.get("answer"))
		if !ok {
			return nil, rowError(sheet, r.num, "answer", r.get("answer"), "must be true or false")
		}
		out = append(out, model.Question{
			Type:       model.QuestionTrueFalse,
			Difficulty: model.Difficulty(strings.ToLower(r.get("difficulty"))),
			Text:       r.get("question"),
			IsTrue:     isTrue,
		})
	}
	return out, nil
}

// groupRows keeps the first-seen order of groups.
func groupRows(sheet string, rows []sheetRow) ([]string, map[string][]sheetRow, error) {
	var order []string
	groups := make(map[string][]sheetRow)
	for _, r := range rows {
		g := r.get("group")
		if g == "" {
			return nil, nil, rowError(sheet, r.num, "group", "", "is required")
		}
		if _, seen := groups[g]; !seen {
			order = append(order, g)
		}
		groups[g] = append(groups[g], r)
	}
	return order, groups, nil
}

func (p *Parser) buildMatching(sheet string, rows []sheetRow) ([]model.Question, error) {
	order, groups, err := groupRows(sheet, rows)
	if err != nil {
		return nil, err
	}

	out := make([]model.Question, 0, len(order))
	for _, g := range order {
		first := groups[g][0]
		q := model.Question{
			Type:       model.QuestionMatching,
			Difficulty: model.Difficulty(strings.ToLower(first.get("difficulty"))),
			Text:       first.get("question"),
		}
		for i, r := range groups[g] {
			q.Pairs = append(q.Pairs, model.MatchingPair{
				MatchKey:  strconv.Itoa(i + 1),
				LeftItem:  r.get("left_item"),
				RightItem: r.get("right_item"),
			})
		}
		out = append(out, q)
	}
	return out, nil
}

func (p *Parser) buildReading(sheet string, rows []sheetRow) ([]model.Question, error) {
	order, groups, err := groupRows(sheet, rows)
	if err != nil {
		return nil, err
	}

	out := make([]model.Question, 0, len(order))
	for _, g := range order {
		first := groups[g][0]
		q := model.Question{
			Type:       model.QuestionReading,
			Difficulty: model.Difficulty(strings.ToLower(first.get("difficulty"))),
			Text:       first.get("question"),
			Passage:    first.get("passage"),
		}
		for _, r := range groups[g] {
			q.SubQuestions = append(q.SubQuestions, model.ReadingSubQuestion{
				Question:      r.get("sub_question"),
				CorrectAnswer: r.get("correct_answer"),
				Choices:       splitChoices(r.get("choices")),
			})
		}
		out = append(out, q)
	}
	return out, nil
}
