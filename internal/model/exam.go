package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type Exam struct {
	ID              int64           `json:"id"`
	StudentID       int64           `json:"student_id"`
	BookID          int64           `json:"book_id"`
	Difficulty      Difficulty      `json:"difficulty"`
	DurationMinutes int             `json:"duration_minutes"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         *time.Time      `json:"end_time,omitempty"`
	IsFinished      bool            `json:"is_finished"`
	Score           decimal.Decimal `json:"score"`
	Questions       []ExamQuestion  `json:"questions,omitempty"`
}

// ExamQuestion is a frozen copy of a bank question. CorrectAnswer holds the
// canonical JSON payload of the question type.
type ExamQuestion struct {
	ID            int64           `json:"-"`
	PublicID      string          `json:"id"`
	ExamID        int64           `json:"-"`
	QuestionType  QuestionType    `json:"question_type"`
	QuestionID    int64           `json:"original_question_id"`
	QuestionText  string          `json:"question_text"`
	Choices       []string        `json:"choices,omitempty"`
	CorrectAnswer json.RawMessage `json:"-"`
	StudentAnswer json.RawMessage `json:"-"`
	IsCorrect     *bool           `json:"-"`
	Points        decimal.Decimal `json:"points"`
}

type ExamResult struct {
	ID          int64           `json:"id"`
	ExamID      int64           `json:"exam_id"`
	StudentID   int64           `json:"student_id"`
	BookID      int64           `json:"book_id"`
	BookTitle   string          `json:"book_title,omitempty"`
	Score       decimal.Decimal `json:"score"`
	Percentage  decimal.Decimal `json:"percentage"`
	LetterGrade string          `json:"letter_grade"`
	CreatedAt   time.Time       `json:"created_at"`
}

// GradedQuestion is the persisted outcome of grading a single ExamQuestion.
type GradedQuestion struct {
	ExamQuestionID int64
	StudentAnswer  json.RawMessage
	IsCorrect      bool
}

// ExamSubmission carries everything written when an exam is finished.
type ExamSubmission struct {
	ExamID     int64
	StudentID  int64
	BookID     int64
	Score      decimal.Decimal
	Percentage decimal.Decimal
	Grade      string
	FinishedAt time.Time
	Answers    []GradedQuestion
}
