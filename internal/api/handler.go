package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/SalahElkadim/alc/internal/auth"
	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

type ExamService interface {
	Generate(ctx context.Context, studentID int64, req model.GenerateExamRequest) (*model.ExamView, error)
	Submit(ctx context.Context, studentID int64, req model.SubmitExamRequest) (*model.SubmitExamResponse, error)
	Results(ctx context.Context, studentID int64) ([]model.ExamResult, error)
}

type AuthService interface {
	Login(ctx context.Context, email, password string, client model.ClientInfo) (*model.LoginResponse, error)
	Refresh(ctx context.Context, refreshToken string, client model.ClientInfo) (*model.TokenPair, error)
	Logout(ctx context.Context, access *auth.Claims, refreshToken string) error
	Sessions(ctx context.Context, userID int64) ([]model.UserSession, error)
}

type PaymentService interface {
	Create(ctx context.Context, userID int64, req model.CreatePaymentRequest) (*model.CreatePaymentResponse, error)
	Callback(ctx context.Context, gatewayID, reportedStatus string) (*model.Payment, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) error
	Refund(ctx context.Context, gatewayID string, amount int64) (*model.Payment, error)
	MyBooks(ctx context.Context, userID int64) ([]model.UserBook, error)
	Invoice(ctx context.Context, gatewayID string, userID int64, ownerCheck bool) (*model.Invoice, error)
}

type ImportQueue interface {
	EnqueueImportJob(ctx context.Context, job model.ImportJob) error
}

// HealthCheck is a named dependency probe reported by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Handler struct {
	exams    ExamService
	users    AuthService
	payments PaymentService
	imports  ImportQueue
	books    BookLookup
	files    WorkbookStore
	checks   []HealthCheck
	cfg      *config.Config
	log      zerolog.Logger
}

type BookLookup interface {
	GetBook(ctx context.Context, bookID int64) (*model.Book, error)
}

// WorkbookStore is the part of object storage the import endpoint touches.
type WorkbookStore interface {
	Upload(ctx context.Context, key string, data io.Reader) error
	Exists(ctx context.Context, key string) (bool, error)
}

func NewHandler(
	cfg *config.Config,
	exams ExamService,
	users AuthService,
	payments PaymentService,
	imports ImportQueue,
	books BookLookup,
	files WorkbookStore,
	checks ...HealthCheck,
) *Handler {
	return &Handler{
		exams:    exams,
		users:    users,
		payments: payments,
		imports:  imports,
		books:    books,
		files:    files,
		checks:   checks,
		cfg:      cfg,
		log:      logger.Get(),
	}
}

// respondError maps service errors onto the JSON error envelope.
func (h *Handler) respondError(c *gin.Context, err error) {
	var valErr apperrors.ValidationError
	if errors.As(err, &valErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   valErr.Message,
			"details": gin.H{"field": valErr.Field},
		})
		return
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus()
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		}
		body := gin.H{"error": appErr.Message}
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
		c.JSON(status, body)
		return
	}

	h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func (h *Handler) bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
}

func mustClaims(c *gin.Context) *auth.Claims {
	claims, _ := auth.ClaimsFrom(c)
	return claims
}

func (h *Handler) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	deps := gin.H{}
	for _, check := range h.checks {
		if err := check.Check(c.Request.Context()); err != nil {
			h.log.Warn().Err(err).Str("dependency", check.Name).Msg("Health check failed")
			deps[check.Name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[check.Name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "degraded"
	}

	c.JSON(status, gin.H{
		"status":       state,
		"service":      h.cfg.App.Name,
		"version":      h.cfg.App.Version,
		"dependencies": deps,
	})
}
