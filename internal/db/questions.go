package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

// questionPayload is the JSON column holding the type specific part of a question.
type questionPayload struct {
	Choices       []string                   `json:"choices,omitempty"`
	CorrectAnswer string                     `json:"correct_answer,omitempty"`
	IsTrue        bool                       `json:"is_true,omitempty"`
	Pairs         []model.MatchingPair       `json:"pairs,omitempty"`
	Passage       string                     `json:"passage,omitempty"`
	SubQuestions  []model.ReadingSubQuestion `json:"sub_questions,omitempty"`
}

func (r *repository) GetBook(ctx context.Context, bookID int64) (*model.Book, error) {
	query := `SELECT id, title, COALESCE(description, ''), price, created_at FROM books WHERE id = ?`

	var book model.Book
	err := r.db.QueryRowContext(ctx, query, bookID).Scan(
		&book.ID, &book.Title, &book.Description, &book.Price, &book.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Book not found")
	}
	if err != nil {
		return nil, err
	}

	return &book, nil
}

func (r *repository) ListQuestions(ctx context.Context, bookID int64, difficulty model.Difficulty, qtype model.QuestionType) ([]model.Question, error) {
	query := `SELECT id, book_id, question_type, difficulty, text, payload
			  FROM questions WHERE book_id = ? AND difficulty = ? AND question_type = ?`

	rows, err := r.db.QueryContext(ctx, query, bookID, difficulty, qtype)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var (
			q   model.Question
			raw []byte
		)
		if err := rows.Scan(&q.ID, &q.BookID, &q.Type, &q.Difficulty, &q.Text, &raw); err != nil {
			return nil, err
		}

		var payload questionPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("question %d has malformed payload: %w", q.ID, err)
		}
		q.Choices = payload.Choices
		q.CorrectAnswer = payload.CorrectAnswer
		q.IsTrue = payload.IsTrue
		q.Pairs = payload.Pairs
		q.Passage = payload.Passage
		q.SubQuestions = payload.SubQuestions

		questions = append(questions, q)
	}

	return questions, rows.Err()
}

func (r *repository) InsertQuestions(ctx context.Context, bookID int64, questions []model.Question) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `INSERT INTO questions (book_id, question_type, difficulty, text, payload) VALUES (?, ?, ?, ?, ?)`

	for _, q := range questions {
		payload, err := json.Marshal(questionPayload{
			Choices:       q.Choices,
			CorrectAnswer: q.CorrectAnswer,
			IsTrue:        q.IsTrue,
			Pairs:         q.Pairs,
			Passage:       q.Passage,
			SubQuestions:  q.SubQuestions,
		})
		if err != nil {
			return 0, err
		}

		if _, err := tx.ExecContext(ctx, query, bookID, q.Type, q.Difficulty, q.Text, payload); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return len(questions), nil
}
