package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

func jsonArg(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

// CreateExam stores the exam and its frozen questions in one transaction and
// sets exam.ID on success.
func (r *repository) CreateExam(ctx context.Context, exam *model.Exam) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO exams (student_id, book_id, difficulty, duration_minutes, start_time, is_finished, score)
		 VALUES (?, ?, ?, ?, ?, 0, 0)`,
		exam.StudentID, exam.BookID, exam.Difficulty, exam.DurationMinutes, exam.StartTime)
	if err != nil {
		return err
	}

	examID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	query := `INSERT INTO exam_questions
			  (public_id, exam_id, question_type, question_id, question_text, choices, correct_answer, points)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	for i := range exam.Questions {
		q := &exam.Questions[i]

		var choices interface{}
		if len(q.Choices) > 0 {
			b, err := json.Marshal(q.Choices)
			if err != nil {
				return err
			}
			choices = string(b)
		}

		res, err := tx.ExecContext(ctx, query, q.PublicID, examID, q.QuestionType, q.QuestionID,
			q.QuestionText, choices, jsonArg(q.CorrectAnswer), q.Points)
		if err != nil {
			return err
		}
		if q.ID, err = res.LastInsertId(); err != nil {
			return err
		}
		q.ExamID = examID
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	exam.ID = examID
	return nil
}

func (r *repository) GetExamForStudent(ctx context.Context, examID, studentID int64) (*model.Exam, error) {
	query := `SELECT id, student_id, book_id, difficulty, duration_minutes, start_time, end_time, is_finished, score
			  FROM exams WHERE id = ? AND student_id = ?`

	var (
		exam    model.Exam
		endTime sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, examID, studentID).Scan(
		&exam.ID, &exam.StudentID, &exam.BookID, &exam.Difficulty, &exam.DurationMinutes,
		&exam.StartTime, &endTime, &exam.IsFinished, &exam.Score,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Exam not found")
	}
	if err != nil {
		return nil, err
	}
	exam.EndTime = timePtr(endTime)

	return &exam, nil
}

func (r *repository) GetExamQuestions(ctx context.Context, examID int64) ([]model.ExamQuestion, error) {
	query := `SELECT id, public_id, exam_id, question_type, question_id, question_text, choices,
			  correct_answer, student_answer, is_correct, points
			  FROM exam_questions WHERE exam_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.ExamQuestion
	for rows.Next() {
		var (
			q         model.ExamQuestion
			choices   []byte
			correct   []byte
			student   []byte
			isCorrect sql.NullBool
		)
		err := rows.Scan(&q.ID, &q.PublicID, &q.ExamID, &q.QuestionType, &q.QuestionID, &q.QuestionText,
			&choices, &correct, &student, &isCorrect, &q.Points)
		if err != nil {
			return nil, err
		}

		if len(choices) > 0 {
			if err := json.Unmarshal(choices, &q.Choices); err != nil {
				return nil, err
			}
		}
		q.CorrectAnswer = json.RawMessage(correct)
		if len(student) > 0 {
			q.StudentAnswer = json.RawMessage(student)
		}
		if isCorrect.Valid {
			v := isCorrect.Bool
			q.IsCorrect = &v
		}

		questions = append(questions, q)
	}

	return questions, rows.Err()
}

// FinishExam persists answers, the final score and the result row. The exam
// row is only updated while still open, so a concurrent second submission
// fails with ErrAlreadySubmitted and writes nothing.
func (r *repository) FinishExam(ctx context.Context, sub model.ExamSubmission) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE exams SET is_finished = 1, score = ?, end_time = ? WHERE id = ? AND student_id = ? AND is_finished = 0`,
		sub.Score, sub.FinishedAt, sub.ExamID, sub.StudentID)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apperrors.Conflict(apperrors.ErrAlreadySubmitted)
	}

	for _, answer := range sub.Answers {
		_, err := tx.ExecContext(ctx,
			`UPDATE exam_questions SET student_answer = ?, is_correct = ? WHERE id = ?`,
			jsonArg(answer.StudentAnswer), answer.IsCorrect, answer.ExamQuestionID)
		if err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO exam_results (exam_id, student_id, book_id, score, percentage, letter_grade, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ExamID, sub.StudentID, sub.BookID, sub.Score, sub.Percentage, sub.Grade, sub.FinishedAt)
	if err != nil {
		if IsDuplicateKey(err) {
			return apperrors.Conflict(apperrors.ErrAlreadySubmitted)
		}
		return err
	}

	return tx.Commit()
}

func (r *repository) ListResults(ctx context.Context, studentID int64) ([]model.ExamResult, error) {
	query := `SELECT er.id, er.exam_id, er.student_id, er.book_id, COALESCE(b.title, ''),
			  er.score, er.percentage, er.letter_grade, er.created_at
			  FROM exam_results er LEFT JOIN books b ON b.id = er.book_id
			  WHERE er.student_id = ? ORDER BY er.created_at DESC, er.id DESC`

	rows, err := r.db.QueryContext(ctx, query, studentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.ExamResult{}
	for rows.Next() {
		var res model.ExamResult
		err := rows.Scan(&res.ID, &res.ExamID, &res.StudentID, &res.BookID, &res.BookTitle,
			&res.Score, &res.Percentage, &res.LetterGrade, &res.CreatedAt)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}

	return results, rows.Err()
}
