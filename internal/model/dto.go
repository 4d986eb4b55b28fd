package model

import (
	"encoding/json"
	"time"
)

type ImportJob struct {
	JobID  string `json:"job_id"`
	S3Path string `json:"s3_path"`
	BookID int64  `json:"book_id"`
	// Uploaded marks workbooks stored by the API itself; they are removed
	// once imported.
	Uploaded bool `json:"uploaded,omitempty"`
}

type UnlockJob struct {
	GatewayID string `json:"gateway_id"`
	Attempt   int    `json:"attempt"`
}

type ImportRequest struct {
	S3Path string `json:"s3_path" binding:"required"`
	BookID int64  `json:"book_id" binding:"required"`
}

type ImportResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type GenerateExamRequest struct {
	BookID     int64      `json:"book" binding:"required"`
	Difficulty Difficulty `json:"difficulty" binding:"required"`
	// "legacy" selects the fixed per-type quota
	Mode string `json:"mode"`
}

type SubmittedAnswer struct {
	QuestionID string          `json:"question_id"`
	Answer     json.RawMessage `json:"answer"`
}

type SubmitExamRequest struct {
	ExamID  int64             `json:"exam_id" binding:"required"`
	Answers []SubmittedAnswer `json:"answers"`
}

type QuestionResult struct {
	QuestionID         string          `json:"question_id"`
	OriginalQuestionID int64           `json:"original_question_id"`
	QuestionType       QuestionType    `json:"question_type"`
	QuestionText       string          `json:"question_text"`
	StudentAnswer      json.RawMessage `json:"student_answer"`
	CorrectAnswer      json.RawMessage `json:"correct_answer"`
	IsCorrect          bool            `json:"is_correct"`
	PointsEarned       float64         `json:"points_earned"`
	PointsPossible     float64         `json:"points_possible"`
	PartialCredit      bool            `json:"partial_credit,omitempty"`
	SubQuestionsCount  int             `json:"sub_questions_count,omitempty"`
	Unanswered         bool            `json:"unanswered,omitempty"`
}

type GradingSummary struct {
	MCQ       int `json:"mcq_questions"`
	TrueFalse int `json:"truefalse_questions"`
	Matching  int `json:"matching_questions"`
	Reading   int `json:"reading_questions"`
}

type SubmitExamResponse struct {
	Success         bool             `json:"success"`
	ExamID          int64            `json:"exam_id"`
	TotalScore      float64          `json:"total_score"`
	TotalPossible   float64          `json:"total_possible"`
	Percentage      float64          `json:"percentage"`
	LetterGrade     string           `json:"letter_grade"`
	QuestionsCount  int              `json:"questions_count"`
	DetailedResults []QuestionResult `json:"detailed_results"`
	GradingSummary  GradingSummary   `json:"grading_summary"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh" binding:"required"`
}

type LogoutRequest struct {
	Refresh string `json:"refresh"`
}

type TokenPair struct {
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LoginResponse struct {
	TokenPair
	User *User `json:"user"`
}

// ClientInfo is the request metadata recorded with a session.
type ClientInfo struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	IP             string
}

type CreatePaymentRequest struct {
	BookID int64 `json:"book_id" binding:"required"`
	// Source is passed through to the gateway (card token, apple pay, ...)
	Source map[string]interface{} `json:"source"`
}

type CreatePaymentResponse struct {
	PaymentID      int64         `json:"payment_id"`
	GatewayID      string        `json:"gateway_id"`
	Status         PaymentStatus `json:"status"`
	InvoiceNumber  string        `json:"invoice_number"`
	TransactionURL string        `json:"transaction_url,omitempty"`
	Amount         int64         `json:"amount"`
	Currency       string        `json:"currency"`
}

type WebhookEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt string          `json:"created_at"`
	Data      json.RawMessage `json:"data"`
}

type SubQuestionView struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices,omitempty"`
}

// ExamQuestionView is what a student sees of a frozen question.
type ExamQuestionView struct {
	QuestionID   string            `json:"question_id"`
	QuestionType QuestionType      `json:"question_type"`
	QuestionText string            `json:"question_text"`
	Points       float64           `json:"points"`
	Choices      []string          `json:"choices,omitempty"`
	LeftItems    []string          `json:"left_items,omitempty"`
	RightItems   []string          `json:"right_items,omitempty"`
	SubQuestions []SubQuestionView `json:"sub_questions,omitempty"`
}

type ExamView struct {
	ExamID          int64              `json:"exam_id"`
	BookID          int64              `json:"book_id"`
	Difficulty      Difficulty         `json:"difficulty"`
	DurationMinutes int                `json:"duration_minutes"`
	StartTime       time.Time          `json:"start_time"`
	Questions       []ExamQuestionView `json:"questions"`
}
