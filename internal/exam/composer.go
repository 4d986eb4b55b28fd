package exam

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

const ModeLegacy = "legacy"

type QuestionSource interface {
	ListQuestions(ctx context.Context, bookID int64, difficulty model.Difficulty, qtype model.QuestionType) ([]model.Question, error)
}

// topUpOrder lists the tiers borrowed from, nearest first, when the
// requested tier cannot fill an exam.
var topUpOrder = map[model.Difficulty][]model.Difficulty{
	model.DifficultyEasy:   {model.DifficultyMedium, model.DifficultyHard},
	model.DifficultyMedium: {model.DifficultyEasy, model.DifficultyHard},
	model.DifficultyHard:   {model.DifficultyMedium, model.DifficultyEasy},
}

type Composer struct {
	source      QuestionSource
	size        int
	legacyQuota int
	shuffle     func(n int, swap func(i, j int))
	newID       func() string
	log         zerolog.Logger
}

func NewComposer(source QuestionSource, size, legacyQuota int) *Composer {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Composer{
		source:      source,
		size:        size,
		legacyQuota: legacyQuota,
		shuffle:     rng.Shuffle,
		newID:       uuid.NewString,
		log:         logger.Get(),
	}
}

// Compose selects and snapshots the questions for a new exam. Nothing is
// persisted here.
func (c *Composer) Compose(ctx context.Context, bookID int64, difficulty model.Difficulty, mode string) ([]model.ExamQuestion, error) {
	var (
		selected []model.Question
		err      error
	)
	if mode == ModeLegacy {
		selected, err = c.selectPerType(ctx, bookID, difficulty)
	} else {
		selected, err = c.selectFlat(ctx, bookID, difficulty)
	}
	if err != nil {
		return nil, err
	}

	snapshots := make([]model.ExamQuestion, 0, len(selected))
	for _, q := range selected {
		snap, err := c.Snapshot(q)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return snapshots, nil
}

func (c *Composer) tier(ctx context.Context, bookID int64, difficulty model.Difficulty) ([]model.Question, error) {
	var all []model.Question
	for _, qtype := range model.QuestionTypes {
		pool, err := c.source.ListQuestions(ctx, bookID, difficulty, qtype)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s questions: %w", qtype, err)
		}
		c.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		all = append(all, pool...)
	}
	return all, nil
}

func (c *Composer) selectFlat(ctx context.Context, bookID int64, difficulty model.Difficulty) ([]model.Question, error) {
	candidates, err := c.tier(ctx, bookID, difficulty)
	if err != nil {
		return nil, err
	}

	for _, other := range topUpOrder[difficulty] {
		if len(candidates) >= c.size {
			break
		}

		extra, err := c.tier(ctx, bookID, other)
		if err != nil {
			return nil, err
		}
		c.shuffle(len(extra), func(i, j int) { extra[i], extra[j] = extra[j], extra[i] })

		need := c.size - len(candidates)
		if len(extra) > need {
			extra = extra[:need]
		}
		c.log.Debug().Int64("book_id", bookID).Str("tier", string(other)).Int("borrowed", len(extra)).Msg("Topping up exam from another tier")
		candidates = append(candidates, extra...)
	}

	if len(candidates) < c.size {
		return nil, apperrors.InsufficientQuestions(len(candidates), c.size)
	}

	c.shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	return candidates[:c.size], nil
}

func (c *Composer) selectPerType(ctx context.Context, bookID int64, difficulty model.Difficulty) ([]model.Question, error) {
	available := make(map[string]interface{}, len(model.QuestionTypes))
	pools := make(map[model.QuestionType][]model.Question, len(model.QuestionTypes))
	short := false

	for _, qtype := range model.QuestionTypes {
		pool, err := c.source.ListQuestions(ctx, bookID, difficulty, qtype)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s questions: %w", qtype, err)
		}
		available[string(qtype)] = len(pool)
		pools[qtype] = pool
		if len(pool) < c.legacyQuota {
			short = true
		}
	}

	if short {
		total := 0
		for _, pool := range pools {
			total += len(pool)
		}
		appErr := apperrors.InsufficientQuestions(total, c.legacyQuota*len(model.QuestionTypes))
		appErr.Details = map[string]interface{}{"available": available, "required": c.legacyQuota}
		return nil, appErr
	}

	var selected []model.Question
	for _, qtype := range model.QuestionTypes {
		pool := pools[qtype]
		c.shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
		selected = append(selected, pool[:c.legacyQuota]...)
	}
	return selected, nil
}

// Snapshot freezes a bank question into an exam question with its canonical
// correct answer and points.
func (c *Composer) Snapshot(q model.Question) (model.ExamQuestion, error) {
	snap := model.ExamQuestion{
		PublicID:     c.newID(),
		QuestionType: q.Type,
		QuestionID:   q.ID,
		QuestionText: q.Text,
		Points:       decimal.NewFromInt(1),
	}

	var payload interface{}
	switch q.Type {
	case model.QuestionMCQ:
		payload = q.CorrectAnswer
		snap.Choices = q.Choices
	case model.QuestionTrueFalse:
		payload = q.IsTrue
	case model.QuestionMatching:
		pairs := q.Pairs
		if pairs == nil {
			pairs = []model.MatchingPair{}
		}
		payload = pairs
		if len(pairs) > 0 {
			snap.Points = decimal.NewFromInt(int64(len(pairs)))
		}
	case model.QuestionReading:
		subs := q.SubQuestions
		if subs == nil {
			subs = []model.ReadingSubQuestion{}
		}
		payload = subs
		if len(subs) > 0 {
			snap.Points = decimal.NewFromInt(int64(len(subs)))
		}
		if q.Passage != "" {
			snap.QuestionText = q.Passage + "\n\n" + q.Text
		}
	default:
		return snap, fmt.Errorf("question %d has unknown type %q", q.ID, q.Type)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return snap, err
	}
	snap.CorrectAnswer = raw

	return snap, nil
}
