package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

type Repository interface {
	QuestionSource
	GetBook(ctx context.Context, bookID int64) (*model.Book, error)
	CreateExam(ctx context.Context, exam *model.Exam) error
	GetExamForStudent(ctx context.Context, examID, studentID int64) (*model.Exam, error)
	GetExamQuestions(ctx context.Context, examID int64) ([]model.ExamQuestion, error)
	FinishExam(ctx context.Context, sub model.ExamSubmission) error
	ListResults(ctx context.Context, studentID int64) ([]model.ExamResult, error)
}

type Service struct {
	repo     Repository
	composer *Composer
	duration int
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(cfg *config.Config, repo Repository) *Service {
	return &Service{
		repo:     repo,
		composer: NewComposer(repo, cfg.Exam.Size, cfg.Exam.LegacyQuota),
		duration: cfg.Exam.DurationMinutes,
		now:      time.Now,
		log:      logger.Get(),
	}
}

// Generate composes a new open exam for the student. On any failure no exam
// is stored.
func (s *Service) Generate(ctx context.Context, studentID int64, req model.GenerateExamRequest) (*model.ExamView, error) {
	if !req.Difficulty.Valid() {
		return nil, apperrors.ValidationError{Field: "difficulty", Value: req.Difficulty, Message: "must be easy, medium or hard"}
	}
	if req.Mode != "" && req.Mode != ModeLegacy {
		return nil, apperrors.ValidationError{Field: "mode", Value: req.Mode, Message: "unknown exam mode"}
	}

	if _, err := s.repo.GetBook(ctx, req.BookID); err != nil {
		return nil, err
	}

	questions, err := s.composer.Compose(ctx, req.BookID, req.Difficulty, req.Mode)
	if err != nil {
		return nil, err
	}

	exam := &model.Exam{
		StudentID:       studentID,
		BookID:          req.BookID,
		Difficulty:      req.Difficulty,
		DurationMinutes: s.duration,
		StartTime:       s.now(),
		Score:           decimal.Zero,
		Questions:       questions,
	}
	if err := s.repo.CreateExam(ctx, exam); err != nil {
		return nil, fmt.Errorf("failed to store exam: %w", err)
	}

	s.log.Info().Int64("exam_id", exam.ID).Int64("student_id", studentID).Int64("book_id", req.BookID).
		Int("questions", len(questions)).Msg("Exam generated")

	return s.view(exam)
}

func (s *Service) view(exam *model.Exam) (*model.ExamView, error) {
	out := &model.ExamView{
		ExamID:          exam.ID,
		BookID:          exam.BookID,
		Difficulty:      exam.Difficulty,
		DurationMinutes: exam.DurationMinutes,
		StartTime:       exam.StartTime,
		Questions:       make([]model.ExamQuestionView, 0, len(exam.Questions)),
	}

	for _, q := range exam.Questions {
		points, _ := q.Points.Float64()
		v := model.ExamQuestionView{
			QuestionID:   q.PublicID,
			QuestionType: q.QuestionType,
			QuestionText: q.QuestionText,
			Points:       points,
			Choices:      q.Choices,
		}

		switch q.QuestionType {
		case model.QuestionMatching:
			var pairs []model.MatchingPair
			if err := json.Unmarshal(q.CorrectAnswer, &pairs); err != nil {
				return nil, err
			}
			for _, p := range pairs {
				v.LeftItems = append(v.LeftItems, p.LeftItem)
				v.RightItems = append(v.RightItems, p.RightItem)
			}
			sort.Strings(v.RightItems)
		case model.QuestionReading:
			var subs []model.ReadingSubQuestion
			if err := json.Unmarshal(q.CorrectAnswer, &subs); err != nil {
				return nil, err
			}
			for _, sq := range subs {
				v.SubQuestions = append(v.SubQuestions, model.SubQuestionView{Question: sq.Question, Choices: sq.Choices})
			}
		}

		out.Questions = append(out.Questions, v)
	}

	return out, nil
}

// Submit grades every question of an open exam and finishes it. Questions
// without a submission score zero but still count toward the total.
func (s *Service) Submit(ctx context.Context, studentID int64, req model.SubmitExamRequest) (*model.SubmitExamResponse, error) {
	exam, err := s.repo.GetExamForStudent(ctx, req.ExamID, studentID)
	if err != nil {
		return nil, err
	}
	if exam.IsFinished {
		return nil, apperrors.Conflict(apperrors.ErrAlreadySubmitted)
	}

	submitted := make(map[string]json.RawMessage, len(req.Answers))
	for i, a := range req.Answers {
		if a.QuestionID == "" {
			return nil, apperrors.ValidationError{Field: fmt.Sprintf("answers[%d].question_id", i), Value: "", Message: "is required"}
		}
		submitted[a.QuestionID] = a.Answer
	}

	questions, err := s.repo.GetExamQuestions(ctx, exam.ID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, apperrors.ValidationError{Field: "exam_id", Value: req.ExamID, Message: "exam has no questions"}
	}

	var (
		totalScore    = decimal.Zero
		totalPossible = decimal.Zero
		summary       model.GradingSummary
		results       = make([]model.QuestionResult, 0, len(questions))
		graded        = make([]model.GradedQuestion, 0, len(questions))
	)

	for _, q := range questions {
		raw, answered := submitted[q.PublicID]

		answer, err := ParseAnswer(q.QuestionType, raw)
		if err != nil {
			if ve, ok := err.(apperrors.ValidationError); ok {
				ve.Field = fmt.Sprintf("answers[%s].answer", q.PublicID)
				return nil, ve
			}
			return nil, err
		}
		if answer.Kind == AnswerNone {
			answered = false
		}

		result := model.QuestionResult{
			QuestionID:         q.PublicID,
			OriginalQuestionID: q.QuestionID,
			QuestionType:       q.QuestionType,
			QuestionText:       q.QuestionText,
			CorrectAnswer:      q.CorrectAnswer,
		}

		var outcome Outcome
		if answered {
			outcome, err = Grade(q, answer)
			if err != nil {
				return nil, err
			}
			result.StudentAnswer = raw
			result.PartialCredit = outcome.Partial()
		} else {
			outcome = Outcome{Score: decimal.Zero, Possible: PossiblePoints(q)}
			result.Unanswered = true
		}

		if q.QuestionType == model.QuestionReading {
			result.SubQuestionsCount = int(outcome.Possible.IntPart())
		}

		totalScore = totalScore.Add(outcome.Score)
		totalPossible = totalPossible.Add(outcome.Possible)

		result.IsCorrect = outcome.IsCorrect
		result.PointsEarned, _ = outcome.Score.Float64()
		result.PointsPossible, _ = outcome.Possible.Float64()
		results = append(results, result)

		graded = append(graded, model.GradedQuestion{
			ExamQuestionID: q.ID,
			StudentAnswer:  result.StudentAnswer,
			IsCorrect:      outcome.IsCorrect,
		})

		switch q.QuestionType {
		case model.QuestionMCQ:
			summary.MCQ++
		case model.QuestionTrueFalse:
			summary.TrueFalse++
		case model.QuestionMatching:
			summary.Matching++
		case model.QuestionReading:
			summary.Reading++
		}
	}

	percentage := Percentage(totalScore, totalPossible)
	grade := LetterGrade(percentage)
	rounded := percentage.Round(2)

	err = s.repo.FinishExam(ctx, model.ExamSubmission{
		ExamID:     exam.ID,
		StudentID:  studentID,
		BookID:     exam.BookID,
		Score:      totalScore,
		Percentage: rounded,
		Grade:      grade,
		FinishedAt: s.now(),
		Answers:    graded,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().Int64("exam_id", exam.ID).Int64("student_id", studentID).
		Str("score", totalScore.String()).Str("percentage", rounded.String()).Str("grade", grade).
		Msg("Exam submitted")

	resp := &model.SubmitExamResponse{
		Success:         true,
		ExamID:          exam.ID,
		LetterGrade:     grade,
		QuestionsCount:  len(questions),
		DetailedResults: results,
		GradingSummary:  summary,
	}
	resp.TotalScore, _ = totalScore.Float64()
	resp.TotalPossible, _ = totalPossible.Float64()
	resp.Percentage, _ = rounded.Float64()

	return resp, nil
}

// Results lists the student's finished exams, newest first.
func (s *Service) Results(ctx context.Context, studentID int64) ([]model.ExamResult, error) {
	return s.repo.ListResults(ctx, studentID)
}
