package model

import "time"

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

type QuestionType string

const (
	QuestionMCQ       QuestionType = "mcq"
	QuestionMatching  QuestionType = "matching"
	QuestionTrueFalse QuestionType = "truefalse"
	QuestionReading   QuestionType = "reading"
)

var QuestionTypes = []QuestionType{QuestionMCQ, QuestionMatching, QuestionTrueFalse, QuestionReading}

type Book struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Price       int64     `json:"price" db:"price"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type MatchingPair struct {
	MatchKey  string `json:"match_key"`
	LeftItem  string `json:"left_item"`
	RightItem string `json:"right_item"`
}

type ReadingSubQuestion struct {
	Question      string   `json:"question"`
	CorrectAnswer string   `json:"correct_answer"`
	Choices       []string `json:"choices,omitempty"`
}

// Question is a bank entry of any type. Only the payload fields of its
// Type are meaningful.
type Question struct {
	ID         int64        `json:"id"`
	BookID     int64        `json:"book_id"`
	Type       QuestionType `json:"type"`
	Difficulty Difficulty   `json:"difficulty"`
	Text       string       `json:"text"`

	Choices       []string             `json:"choices,omitempty"`
	CorrectAnswer string               `json:"correct_answer,omitempty"`
	IsTrue        bool                 `json:"is_true,omitempty"`
	Pairs         []MatchingPair       `json:"pairs,omitempty"`
	SubQuestions  []ReadingSubQuestion `json:"sub_questions,omitempty"`
	Passage       string               `json:"passage,omitempty"`
}
