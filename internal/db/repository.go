package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/SalahElkadim/alc/internal/model"
)

type QuestionRepository interface {
	GetBook(ctx context.Context, bookID int64) (*model.Book, error)
	ListQuestions(ctx context.Context, bookID int64, difficulty model.Difficulty, qtype model.QuestionType) ([]model.Question, error)
	InsertQuestions(ctx context.Context, bookID int64, questions []model.Question) (int, error)
}

type ExamRepository interface {
	CreateExam(ctx context.Context, exam *model.Exam) error
	GetExamForStudent(ctx context.Context, examID, studentID int64) (*model.Exam, error)
	GetExamQuestions(ctx context.Context, examID int64) ([]model.ExamQuestion, error)
	FinishExam(ctx context.Context, sub model.ExamSubmission) error
	ListResults(ctx context.Context, studentID int64) ([]model.ExamResult, error)
}

type UserRepository interface {
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	RecordLoginFailure(ctx context.Context, userID int64, maxAttempts int, lockFor time.Duration) (*time.Time, error)
	RecordLoginSuccess(ctx context.Context, userID int64, at time.Time) error
}

type PaymentRepository interface {
	CreatePayment(ctx context.Context, payment *model.Payment, invoice *model.Invoice) error
	GetPaymentByGatewayID(ctx context.Context, gatewayID string) (*model.Payment, error)
	GetInvoiceByPaymentID(ctx context.Context, paymentID int64) (*model.Invoice, error)
	EnsureInvoice(ctx context.Context, gatewayID string, invoice *model.Invoice) error
	ReconcilePayment(ctx context.Context, update model.PaymentUpdate, merge PaymentMerger) (*ReconcileResult, error)
	ListStalePayments(ctx context.Context, olderThan time.Time, limit int) ([]model.Payment, error)
	ListUngrantedPaid(ctx context.Context, limit int) ([]model.Payment, error)
	ListUserBooks(ctx context.Context, userID int64) ([]model.UserBook, error)
}

// Repository is the full persistence surface backed by MySQL.
type Repository interface {
	QuestionRepository
	ExamRepository
	UserRepository
	SessionRepository
	PaymentRepository
}

type repository struct {
	db  *sql.DB
	now func() time.Time
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db, now: time.Now}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func intPtr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
