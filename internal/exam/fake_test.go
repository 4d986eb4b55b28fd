package exam

import (
	"context"
	"fmt"
	"sync"

	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

type poolKey struct {
	bookID     int64
	difficulty model.Difficulty
	qtype      model.QuestionType
}

type fakeRepo struct {
	mu        sync.Mutex
	books     map[int64]*model.Book
	pools     map[poolKey][]model.Question
	exams     map[int64]*model.Exam
	results   []model.ExamResult
	finished  []model.ExamSubmission
	nextID    int64
	seq       int64
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		books: map[int64]*model.Book{1: {ID: 1, Title: "Grammar"}},
		pools: map[poolKey][]model.Question{},
		exams: map[int64]*model.Exam{},
	}
}

func (f *fakeRepo) add(bookID int64, difficulty model.Difficulty, qtype model.QuestionType, n int, build func(i int) model.Question) {
	key := poolKey{bookID, difficulty, qtype}
	for i := 0; i < n; i++ {
		q := build(i)
		f.seq++
		q.ID = f.seq
		q.BookID = bookID
		q.Difficulty = difficulty
		q.Type = qtype
		f.pools[key] = append(f.pools[key], q)
	}
}

func (f *fakeRepo) ListQuestions(_ context.Context, bookID int64, difficulty model.Difficulty, qtype model.QuestionType) ([]model.Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	src := f.pools[poolKey{bookID, difficulty, qtype}]
	out := make([]model.Question, len(src))
	copy(out, src)
	return out, nil
}

func (f *fakeRepo) GetBook(_ context.Context, bookID int64) (*model.Book, error) {
	if b, ok := f.books[bookID]; ok {
		return b, nil
	}
	return nil, apperrors.NotFound("Book not found")
}

func (f *fakeRepo) CreateExam(_ context.Context, exam *model.Exam) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	exam.ID = f.nextID
	for i := range exam.Questions {
		exam.Questions[i].ID = int64(i + 1)
		exam.Questions[i].ExamID = exam.ID
	}
	stored := *exam
	f.exams[exam.ID] = &stored
	return nil
}

func (f *fakeRepo) GetExamForStudent(_ context.Context, examID, studentID int64) (*model.Exam, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[examID]
	if !ok || e.StudentID != studentID {
		return nil, apperrors.NotFound("Exam not found")
	}
	copied := *e
	return &copied, nil
}

func (f *fakeRepo) GetExamQuestions(_ context.Context, examID int64) ([]model.ExamQuestion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.exams[examID]
	if !ok {
		return nil, fmt.Errorf("exam %d missing", examID)
	}
	return append([]model.ExamQuestion(nil), e.Questions...), nil
}

func (f *fakeRepo) FinishExam(_ context.Context, sub model.ExamSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.exams[sub.ExamID]
	if e.IsFinished {
		return apperrors.Conflict(apperrors.ErrAlreadySubmitted)
	}
	e.IsFinished = true
	e.Score = sub.Score
	at := sub.FinishedAt
	e.EndTime = &at
	f.finished = append(f.finished, sub)
	f.results = append(f.results, model.ExamResult{
		ExamID: sub.ExamID, StudentID: sub.StudentID, BookID: sub.BookID,
		Score: sub.Score, Percentage: sub.Percentage, LetterGrade: sub.Grade,
	})
	return nil
}

func (f *fakeRepo) ListResults(_ context.Context, studentID int64) ([]model.ExamResult, error) {
	var out []model.ExamResult
	for i := len(f.results) - 1; i >= 0; i-- {
		if f.results[i].StudentID == studentID {
			out = append(out, f.results[i])
		}
	}
	return out, nil
}

func mcq(i int) model.Question {
	return model.Question{Text: fmt.Sprintf("mcq %d", i), Choices: []string{"a", "b", "c"}, CorrectAnswer: "b"}
}

func trueFalse(i int) model.Question {
	return model.Question{Text: fmt.Sprintf("tf %d", i), IsTrue: i%2 == 0}
}

func matching(i int) model.Question {
	pairs := make([]model.MatchingPair, 4)
	for j := range pairs {
		pairs[j] = model.MatchingPair{
			MatchKey:  fmt.Sprintf("k%d", j),
			LeftItem:  fmt.Sprintf("left %d", j),
			RightItem: fmt.Sprintf("right %d", j),
		}
	}
	return model.Question{Text: fmt.Sprintf("match %d", i), Pairs: pairs}
}

func reading(i int) model.Question {
	return model.Question{
		Text:         fmt.Sprintf("read %d", i),
		SubQuestions: []model.ReadingSubQuestion{{Question: "who?", CorrectAnswer: "Omar"}},
	}
}

func seedBook(f *fakeRepo, difficulty model.Difficulty, n int) {
	f.add(1, difficulty, model.QuestionMCQ, n, mcq)
	f.add(1, difficulty, model.QuestionTrueFalse, n, trueFalse)
	f.add(1, difficulty, model.QuestionMatching, n, matching)
	f.add(1, difficulty, model.QuestionReading, n, reading)
}
