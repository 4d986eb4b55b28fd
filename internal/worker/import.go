package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/excel"
	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/internal/model"
	"github.com/SalahElkadim/alc/internal/queue"
	"github.com/SalahElkadim/alc/internal/storage"
)

type QuestionStore interface {
	GetBook(ctx context.Context, bookID int64) (*model.Book, error)
	InsertQuestions(ctx context.Context, bookID int64, questions []model.Question) (int, error)
}

type ImportDeadLetter interface {
	DeadLetterImportJob(ctx context.Context, job model.ImportJob) error
}

// ImportWorker loads question-bank workbooks from object storage into a book.
type ImportWorker struct {
	cfg        *config.Config
	repo       QuestionStore
	storage    storage.Storage
	reader     excel.QuestionBankReader
	redis      *queue.RedisClient
	consumer   *queue.Consumer
	deadLetter ImportDeadLetter
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewImportWorker(
	cfg *config.Config,
	repo QuestionStore,
	storage storage.Storage,
	redisClient *queue.RedisClient,
	deadLetter ImportDeadLetter,
) *ImportWorker {
	return &ImportWorker{
		cfg:        cfg,
		repo:       repo,
		storage:    storage,
		reader:     excel.NewQuestionBankReader(),
		redis:      redisClient,
		consumer:   queue.NewConsumer(redisClient, cfg),
		deadLetter: deadLetter,
		workerPool: NewWorkerPool("import", cfg.Workers.Import.Count),
		log:        logger.Get(),
	}
}

func (w *ImportWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting import worker")

	if backlog, err := w.redis.Backlog(ctx, w.cfg.Redis.ImportQueue); err == nil {
		w.log.Info().Int64("pending", backlog.Pending).Int64("dead", backlog.Dead).Msg("Import queue backlog")
	}

	w.workerPool.Start(ctx)

	return w.consumer.ConsumeImportQueue(ctx, w.handleMessage)
}

func (w *ImportWorker) Stop() {
	w.log.Info().Msg("Stopping import worker")
	w.workerPool.Stop()
}

func (w *ImportWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		w.log.Error().Err(err).Msg("Failed to unmarshal import job")
		return err
	}

	w.log.Info().Str("job_id", job.JobID).Str("s3_path", job.S3Path).Int64("book_id", job.BookID).Msg("Processing import job")

	if !w.workerPool.Submit(func(ctx context.Context) error {
		return w.run(ctx, job)
	}) {
		return fmt.Errorf("import job %s: %w", job.JobID, queue.ErrBackpressure)
	}

	return nil
}

func (w *ImportWorker) run(ctx context.Context, job model.ImportJob) error {
	count, err := w.processWorkbook(ctx, job)
	if err != nil {
		if dlqErr := w.deadLetter.DeadLetterImportJob(ctx, job); dlqErr != nil {
			w.log.Error().Err(dlqErr).Str("job_id", job.JobID).Msg("Failed to dead-letter import job")
		}
		return err
	}

	w.log.Info().Str("job_id", job.JobID).Int("question_count", count).Msg("Workbook imported successfully")

	if job.Uploaded {
		if err := w.storage.Delete(ctx, job.S3Path); err != nil {
			w.log.Warn().Err(err).Str("s3_path", job.S3Path).Msg("Failed to remove imported workbook")
		}
	}
	return nil
}

// processWorkbook downloads, parses and validates a workbook, then stores all
// of its questions in one transaction. Nothing is stored on any failure.
func (w *ImportWorker) processWorkbook(ctx context.Context, job model.ImportJob) (int, error) {
	log := w.log.With().Str("job_id", job.JobID).Int64("book_id", job.BookID).Logger()

	if _, err := w.repo.GetBook(ctx, job.BookID); err != nil {
		log.Error().Err(err).Msg("Book lookup failed")
		return 0, err
	}

	log.Debug().Msg("Downloading workbook from S3")
	body, err := w.storage.Download(ctx, job.S3Path)
	if err != nil {
		log.Error().Err(err).Msg("Failed to download workbook")
		return 0, err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read workbook data")
		return 0, err
	}

	log.Debug().Int("bytes", len(data)).Msg("Reading workbook")
	questions, err := w.reader.Read(ctx, data)
	if err != nil {
		log.Error().Err(err).Msg("Workbook rejected")
		return 0, err
	}

	for bucket, n := range excel.Tally(questions) {
		log.Debug().Str("bucket", bucket).Int("count", n).Msg("Parsed questions")
	}

	count, err := w.repo.InsertQuestions(ctx, job.BookID, questions)
	if err != nil {
		log.Error().Err(err).Msg("Failed to insert questions")
		return 0, err
	}

	return count, nil
}
