package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/db"
	"github.com/SalahElkadim/alc/internal/gateway"
	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

const (
	EventPaymentPaid     = "payment_paid"
	EventPaymentFailed   = "payment_failed"
	EventPaymentRefunded = "payment_refunded"
)

type Gateway interface {
	CreatePayment(ctx context.Context, req gateway.CreateRequest) (*gateway.Transaction, error)
	FetchPayment(ctx context.Context, id string) (*gateway.Transaction, error)
	RefundPayment(ctx context.Context, id string, amount int64) (*gateway.Transaction, error)
}

type Store interface {
	GetBook(ctx context.Context, bookID int64) (*model.Book, error)
	GetUserByID(ctx context.Context, userID int64) (*model.User, error)
	db.PaymentRepository
}

type UnlockQueue interface {
	EnqueueUnlockJob(ctx context.Context, job model.UnlockJob) error
}

type Service struct {
	cfg     config.GatewayConfig
	store   Store
	gateway Gateway
	queue   UnlockQueue
	now     func() time.Time
	log     zerolog.Logger
}

func NewService(cfg *config.Config, store Store, gw Gateway, queue UnlockQueue) *Service {
	return &Service{
		cfg:     cfg.Gateway,
		store:   store,
		gateway: gw,
		queue:   queue,
		now:     time.Now,
		log:     logger.Get(),
	}
}

func InvoiceNumber(at time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", at.Format("20060102"), suffix)
}

func upstream(err error) error {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) {
		return apperrors.Upstream(err, apiErr.StatusCode)
	}
	return apperrors.Upstream(err, 0)
}

// Create starts a payment for a book. The gateway call happens before any
// local write, so a rejected payment leaves no local state.
func (s *Service) Create(ctx context.Context, userID int64, req model.CreatePaymentRequest) (*model.CreatePaymentResponse, error) {
	book, err := s.store.GetBook(ctx, req.BookID)
	if err != nil {
		return nil, err
	}
	if book.Price <= 0 {
		return nil, apperrors.ValidationError{Field: "book_id", Value: req.BookID, Message: "book is not for sale"}
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Unlock book: %s", book.Title)
	tx, err := s.gateway.CreatePayment(ctx, gateway.CreateRequest{
		GivenID:     uuid.NewString(),
		Amount:      book.Price,
		Currency:    s.cfg.Currency,
		Description: description,
		Metadata: map[string]string{
			"user_id": strconv.FormatInt(userID, 10),
			"book_id": strconv.FormatInt(book.ID, 10),
			"user":    user.Email,
		},
		Source: req.Source,
	})
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Int64("book_id", book.ID).Msg("Gateway rejected payment")
		return nil, upstream(err)
	}

	now := s.now()
	update := tx.ToUpdate()
	if update.UserID == nil {
		update.UserID = &userID
	}
	if update.BookID == nil {
		update.BookID = &book.ID
	}
	p, _ := Merge(nil, update, now)
	p.CreatedAt, p.UpdatedAt = now, now
	if p.Description == "" {
		p.Description = description
	}

	invoice := &model.Invoice{
		InvoiceNumber: InvoiceNumber(now),
		Amount:        decimal.New(p.Amount, -2),
		TaxAmount:     decimal.Zero,
		Currency:      p.Currency,
		Description:   p.Description,
		CustomerName:  user.FullName,
		CustomerEmail: user.Email,
		CustomerPhone: user.Phone,
		Status:        model.InvoicePending,
		CreatedAt:     now,
	}

	// Persist without the paid transition so a payment that is already
	// settled at creation goes through the regular unlock path below.
	paidNow := p.Status == model.PaymentPaid
	if paidNow {
		p.Status = model.PaymentPending
		p.PaidAt = nil
	}
	status := update.Status
	err = s.store.CreatePayment(ctx, &p, invoice)
	switch {
	case err == nil:
		if paidNow {
			if result, err := s.Reconcile(ctx, update); err != nil {
				s.log.Error().Err(err).Str("gateway_id", p.GatewayID).Msg("Failed to reconcile settled payment")
			} else {
				status = result.Payment.Status
			}
		}

	case apperrors.KindOf(err) == apperrors.KindConflict:
		// A webhook recorded the payment first, possibly without its
		// metadata. Hand over the user and book and add the missing invoice.
		s.log.Info().Str("gateway_id", p.GatewayID).Msg("Payment already recorded by webhook")
		owner := update
		if !paidNow {
			owner.Status = ""
		}
		result, err := s.Reconcile(ctx, owner)
		if err != nil {
			return nil, err
		}
		if err := s.store.EnsureInvoice(ctx, p.GatewayID, invoice); err != nil {
			return nil, err
		}
		p.ID, status = result.Payment.ID, result.Payment.Status

	default:
		return nil, err
	}

	s.log.Info().Str("gateway_id", p.GatewayID).Int64("user_id", userID).Int64("book_id", book.ID).
		Str("status", string(status)).Msg("Payment created")

	return &model.CreatePaymentResponse{
		PaymentID:      p.ID,
		GatewayID:      p.GatewayID,
		Status:         status,
		InvoiceNumber:  invoice.InvoiceNumber,
		TransactionURL: tx.Source.TransactionURL,
		Amount:         p.Amount,
		Currency:       p.Currency,
	}, nil
}

// Reconcile merges an update into the local payment and unlocks the book on
// a transition into paid. A paid payment that cannot be attributed to a user
// and book is queued for a later unlock attempt.
func (s *Service) Reconcile(ctx context.Context, update model.PaymentUpdate) (*db.ReconcileResult, error) {
	if update.GatewayID == "" {
		return nil, apperrors.ValidationError{Field: "id", Value: "", Message: "gateway id is required"}
	}

	result, err := s.store.ReconcilePayment(ctx, update, Merge)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile payment %s: %w", update.GatewayID, err)
	}

	log := s.log.With().Str("gateway_id", update.GatewayID).Str("status", string(result.Payment.Status)).Logger()

	if result.Previous == nil || result.Previous.Status != result.Payment.Status {
		log.Info().Bool("created", result.Created).Msg("Payment status changed")
	}
	if result.Granted {
		log.Info().Interface("user_id", result.Payment.UserID).Interface("book_id", result.Payment.BookID).Msg("Book unlocked")
	}
	if result.UnlockPending {
		log.Warn().Msg("Paid payment has no user or book, unlock deferred")
		if s.queue != nil {
			if err := s.queue.EnqueueUnlockJob(ctx, model.UnlockJob{GatewayID: update.GatewayID}); err != nil {
				log.Error().Err(err).Msg("Failed to enqueue unlock job")
			}
		}
	}

	return result, nil
}

// Callback handles the browser redirect after checkout. The gateway is asked
// for the authoritative state; the query status is informational only.
func (s *Service) Callback(ctx context.Context, gatewayID, reportedStatus string) (*model.Payment, error) {
	if gatewayID == "" {
		return nil, apperrors.ValidationError{Field: "id", Value: "", Message: "is required"}
	}

	tx, err := s.gateway.FetchPayment(ctx, gatewayID)
	if err != nil {
		s.log.Error().Err(err).Str("gateway_id", gatewayID).Str("reported_status", reportedStatus).Msg("Failed to fetch payment on callback")
		return nil, upstream(err)
	}

	result, err := s.Reconcile(ctx, tx.ToUpdate())
	if err != nil {
		return nil, err
	}
	return &result.Payment, nil
}

// HandleWebhook processes one gateway event. Duplicate deliveries are
// ignored; the event id is only kept once the payment change commits.
// Unsigned payloads are confirmed against the gateway before use.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) error {
	verified := false
	if s.cfg.WebhookSecret != "" {
		verified = VerifySignature(s.cfg.WebhookSecret, body, signature)
		if !verified {
			s.log.Warn().Msg("Invalid webhook signature")
			if s.cfg.EnforceSignature {
				return apperrors.ErrInvalidSignature
			}
		}
	}

	var event model.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to decode webhook: %w", err)
	}

	var tx gateway.Transaction
	if err := json.Unmarshal(event.Data, &tx); err != nil {
		return fmt.Errorf("failed to decode webhook data: %w", err)
	}

	log := s.log.With().Str("event_type", event.Type).Str("gateway_id", tx.ID).Logger()
	log.Info().Msg("Received webhook")

	switch event.Type {
	case EventPaymentPaid, EventPaymentFailed, EventPaymentRefunded:
	default:
		log.Debug().Msg("Ignoring webhook event")
		return nil
	}

	if tx.ID == "" {
		return apperrors.ValidationError{Field: "data.id", Value: "", Message: "is required"}
	}

	eventID := event.ID
	if eventID == "" {
		eventID = event.Type + ":" + tx.ID
	}

	update := tx.ToUpdate()
	if !verified {
		confirmed, err := s.gateway.FetchPayment(ctx, tx.ID)
		if err != nil {
			return upstream(err)
		}
		update = confirmed.ToUpdate()
	} else if update.Status == model.PaymentPending {
		update.Status = eventStatus(event.Type)
	}
	update.EventID, update.EventType = eventID, event.Type

	_, err := s.Reconcile(ctx, update)
	if errors.Is(err, apperrors.ErrDuplicateEvent) {
		log.Info().Str("event_id", eventID).Msg("Duplicate webhook ignored")
		return apperrors.ErrDuplicateEvent
	}
	return err
}

func eventStatus(eventType string) model.PaymentStatus {
	switch eventType {
	case EventPaymentPaid:
		return model.PaymentPaid
	case EventPaymentFailed:
		return model.PaymentFailed
	case EventPaymentRefunded:
		return model.PaymentRefunded
	}
	return model.PaymentPending
}

// Refund refunds a paid payment through the gateway, fully when amount is zero.
func (s *Service) Refund(ctx context.Context, gatewayID string, amount int64) (*model.Payment, error) {
	existing, err := s.store.GetPaymentByGatewayID(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	if existing.Status != model.PaymentPaid {
		return nil, apperrors.Conflict(fmt.Errorf("payment is %s, only paid payments can be refunded", existing.Status))
	}

	tx, err := s.gateway.RefundPayment(ctx, gatewayID, amount)
	if err != nil {
		return nil, upstream(err)
	}

	result, err := s.Reconcile(ctx, tx.ToUpdate())
	if err != nil {
		return nil, err
	}
	return &result.Payment, nil
}

// RetryUnlock re-reads a payment from the gateway and reconciles it again.
// It fails with a retryable error while the unlock is still pending.
func (s *Service) RetryUnlock(ctx context.Context, gatewayID string) error {
	tx, err := s.gateway.FetchPayment(ctx, gatewayID)
	if err != nil {
		return err
	}

	update := tx.ToUpdate()
	result, err := s.store.ReconcilePayment(ctx, update, Merge)
	if err != nil {
		return err
	}
	if result.Granted {
		s.log.Info().Str("gateway_id", gatewayID).Msg("Deferred unlock granted")
	}
	if result.UnlockPending {
		return apperrors.NewRetryableError(errors.New("user or book still unresolved"), "unlock pending")
	}
	return nil
}

// Sweep reconciles payments that were left in a non-terminal state or paid
// without an unlock. It returns how many payments were refreshed.
func (s *Service) Sweep(ctx context.Context, staleAfter time.Duration, limit int) (int, error) {
	stale, err := s.store.ListStalePayments(ctx, s.now().Add(-staleAfter), limit)
	if err != nil {
		return 0, err
	}
	ungranted, err := s.store.ListUngrantedPaid(ctx, limit)
	if err != nil {
		return 0, err
	}

	refreshed := 0
	for _, p := range append(stale, ungranted...) {
		if ctx.Err() != nil {
			return refreshed, ctx.Err()
		}

		tx, err := s.gateway.FetchPayment(ctx, p.GatewayID)
		if err != nil {
			s.log.Warn().Err(err).Str("gateway_id", p.GatewayID).Msg("Failed to fetch payment during sweep")
			continue
		}
		if _, err := s.store.ReconcilePayment(ctx, tx.ToUpdate(), Merge); err != nil {
			s.log.Error().Err(err).Str("gateway_id", p.GatewayID).Msg("Failed to reconcile payment during sweep")
			continue
		}
		refreshed++
	}

	return refreshed, nil
}

func (s *Service) MyBooks(ctx context.Context, userID int64) ([]model.UserBook, error) {
	return s.store.ListUserBooks(ctx, userID)
}

// Invoice returns the invoice of a payment owned by userID. Admins pass ownerCheck=false.
func (s *Service) Invoice(ctx context.Context, gatewayID string, userID int64, ownerCheck bool) (*model.Invoice, error) {
	p, err := s.store.GetPaymentByGatewayID(ctx, gatewayID)
	if err != nil {
		return nil, err
	}
	if ownerCheck && (p.UserID == nil || *p.UserID != userID) {
		return nil, apperrors.NotFound("Payment not found")
	}
	return s.store.GetInvoiceByPaymentID(ctx, p.ID)
}
