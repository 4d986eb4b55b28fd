package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/SalahElkadim/alc/internal/model"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

// PaymentEffects are the side effects a merge asks the store to apply
// together with the payment row.
type PaymentEffects struct {
	Grant         bool
	InvoiceStatus model.InvoiceStatus
}

// PaymentMerger computes the next payment state from the stored row (nil when
// the gateway id is unknown) and an incoming update. It runs inside the row lock.
type PaymentMerger func(existing *model.Payment, update model.PaymentUpdate, now time.Time) (model.Payment, PaymentEffects)

type ReconcileResult struct {
	Payment       model.Payment
	Previous      *model.Payment
	Created       bool
	Granted       bool
	UnlockPending bool
}

const paymentColumns = `id, gateway_id, user_id, book_id, amount, currency, status, COALESCE(description, ''),
	source_type, gateway_fee, paid_at, granted_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPayment(row rowScanner) (*model.Payment, error) {
	var (
		p         model.Payment
		userID    sql.NullInt64
		bookID    sql.NullInt64
		paidAt    sql.NullTime
		grantedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.GatewayID, &userID, &bookID, &p.Amount, &p.Currency, &p.Status,
		&p.Description, &p.SourceType, &p.GatewayFee, &paidAt, &grantedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.UserID = intPtr(userID)
	p.BookID = intPtr(bookID)
	p.PaidAt = timePtr(paidAt)
	p.GrantedAt = timePtr(grantedAt)
	return &p, nil
}

// CreatePayment inserts a payment and its pending invoice atomically.
func (r *repository) CreatePayment(ctx context.Context, payment *model.Payment, invoice *model.Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO payments (gateway_id, user_id, book_id, amount, currency, status, description, source_type, gateway_fee, paid_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.GatewayID, nullInt(payment.UserID), nullInt(payment.BookID), payment.Amount, payment.Currency,
		payment.Status, payment.Description, payment.SourceType, payment.GatewayFee, nullTime(payment.PaidAt),
		payment.CreatedAt, payment.UpdatedAt)
	if err != nil {
		if IsDuplicateKey(err) {
			return apperrors.Conflict(errors.New("payment already recorded"))
		}
		return err
	}
	if payment.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	invoice.PaymentID = payment.ID
	res, err = tx.ExecContext(ctx,
		`INSERT INTO invoices (payment_id, invoice_number, amount, tax_amount, currency, description,
		 customer_name, customer_email, customer_phone, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.PaymentID, invoice.InvoiceNumber, invoice.Amount, invoice.TaxAmount, invoice.Currency,
		invoice.Description, invoice.CustomerName, invoice.CustomerEmail, invoice.CustomerPhone,
		invoice.Status, invoice.CreatedAt)
	if err != nil {
		return err
	}
	if invoice.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *repository) GetPaymentByGatewayID(ctx context.Context, gatewayID string) (*model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway_id = ?`, gatewayID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Payment not found")
	}
	return p, err
}

func (r *repository) GetInvoiceByPaymentID(ctx context.Context, paymentID int64) (*model.Invoice, error) {
	var (
		inv    model.Invoice
		paidAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, payment_id, invoice_number, amount, tax_amount, currency, COALESCE(description, ''),
		 customer_name, customer_email, customer_phone, status, paid_at, created_at
		 FROM invoices WHERE payment_id = ?`, paymentID).Scan(
		&inv.ID, &inv.PaymentID, &inv.InvoiceNumber, &inv.Amount, &inv.TaxAmount, &inv.Currency,
		&inv.Description, &inv.CustomerName, &inv.CustomerEmail, &inv.CustomerPhone, &inv.Status,
		&paidAt, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("Invoice not found")
	}
	if err != nil {
		return nil, err
	}
	inv.PaidAt = timePtr(paidAt)
	return &inv, nil
}

// EnsureInvoice stores invoice for the payment with gatewayID unless the
// payment already has one, in which case invoice is filled from the stored row.
// A new invoice takes its status from the payment.
func (r *repository) EnsureInvoice(ctx context.Context, gatewayID string, invoice *model.Invoice) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	p, err := scanPayment(tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_id = ? FOR UPDATE`, gatewayID))
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound("Payment not found")
	}
	if err != nil {
		return err
	}

	err = tx.QueryRowContext(ctx,
		`SELECT id, invoice_number, status FROM invoices WHERE payment_id = ?`, p.ID).
		Scan(&invoice.ID, &invoice.InvoiceNumber, &invoice.Status)
	if err == nil {
		invoice.PaymentID = p.ID
		return tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	invoice.PaymentID = p.ID
	invoice.Status, invoice.PaidAt = invoiceState(p)
	res, err := tx.ExecContext(ctx,
		`INSERT INTO invoices (payment_id, invoice_number, amount, tax_amount, currency, description,
		 customer_name, customer_email, customer_phone, status, paid_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.PaymentID, invoice.InvoiceNumber, invoice.Amount, invoice.TaxAmount, invoice.Currency,
		invoice.Description, invoice.CustomerName, invoice.CustomerEmail, invoice.CustomerPhone,
		invoice.Status, nullTime(invoice.PaidAt), invoice.CreatedAt)
	if err != nil {
		return err
	}
	if invoice.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	return tx.Commit()
}

// invoiceState mirrors a payment onto an invoice created after the fact.
// An invoice is paid once the book was granted.
func invoiceState(p *model.Payment) (model.InvoiceStatus, *time.Time) {
	switch p.Status {
	case model.PaymentPaid:
		if p.GrantedAt != nil {
			return model.InvoicePaid, p.GrantedAt
		}
	case model.PaymentRefunded:
		return model.InvoiceRefunded, nil
	case model.PaymentFailed, model.PaymentCanceled:
		return model.InvoiceCanceled, nil
	}
	return model.InvoicePending, nil
}

const reconcileAttempts = 3

// ReconcilePayment applies update under a row lock on the gateway id.
// Transactions that lose a lock race to a concurrent first write are retried.
func (r *repository) ReconcilePayment(ctx context.Context, update model.PaymentUpdate, merge PaymentMerger) (*ReconcileResult, error) {
	var (
		result *ReconcileResult
		err    error
	)
	for attempt := 0; attempt < reconcileAttempts; attempt++ {
		result, err = r.reconcileOnce(ctx, update, merge)
		if err == nil || !(IsDuplicateKey(err) || IsDeadlock(err)) || ctx.Err() != nil {
			break
		}
	}
	return result, err
}

func (r *repository) reconcileOnce(ctx context.Context, update model.PaymentUpdate, merge PaymentMerger) (*ReconcileResult, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	now := r.now()

	// The event id commits or rolls back with the payment change, so a
	// delivery that fails can be redelivered.
	if update.EventID != "" {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO webhook_events (event_id, event_type, gateway_id, received_at) VALUES (?, ?, ?, ?)`,
			update.EventID, update.EventType, update.GatewayID, now)
		if IsDuplicateKey(err) {
			return nil, apperrors.ErrDuplicateEvent
		}
		if err != nil {
			return nil, err
		}
	}

	// Insert a placeholder before locking. A locking read of a missing row
	// only takes a gap lock, which two first writers can both hold.
	res, err := tx.ExecContext(ctx,
		`INSERT INTO payments (gateway_id, amount, status, created_at, updated_at) VALUES (?, 0, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE id = id`,
		update.GatewayID, model.PaymentInitiated, now, now)
	if err != nil {
		return nil, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	locked, err := scanPayment(tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE gateway_id = ? FOR UPDATE`, update.GatewayID))
	if err != nil {
		return nil, err
	}

	existing := locked
	if inserted == 1 {
		existing = nil
	}

	next, effects := merge(existing, update, now)
	next.ID, next.CreatedAt = locked.ID, locked.CreatedAt
	result := &ReconcileResult{Previous: existing, Created: existing == nil}

	_, err = tx.ExecContext(ctx,
		`UPDATE payments SET user_id = ?, book_id = ?, amount = ?, currency = ?, status = ?, description = ?,
		 source_type = ?, gateway_fee = ?, paid_at = ?, updated_at = ? WHERE id = ?`,
		nullInt(next.UserID), nullInt(next.BookID), next.Amount, next.Currency, next.Status, next.Description,
		next.SourceType, next.GatewayFee, nullTime(next.PaidAt), now, next.ID)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = now

	if effects.Grant && next.UserID != nil && next.BookID != nil {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO user_books (user_id, book_id, status, payment_id, unlocked_at) VALUES (?, ?, 'unlocked', ?, ?)
			 ON DUPLICATE KEY UPDATE status = 'unlocked', payment_id = VALUES(payment_id)`,
			*next.UserID, *next.BookID, next.ID, now)
		if err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE invoices SET status = 'paid', paid_at = ? WHERE payment_id = ? AND paid_at IS NULL`, now, next.ID)
		if err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `UPDATE payments SET granted_at = ? WHERE id = ?`, now, next.ID); err != nil {
			return nil, err
		}
		next.GrantedAt = &now
		result.Granted = true
	}

	var invoiceErr error
	switch effects.InvoiceStatus {
	case model.InvoiceRefunded:
		_, invoiceErr = tx.ExecContext(ctx, `UPDATE invoices SET status = 'refunded' WHERE payment_id = ?`, next.ID)
	case model.InvoiceCanceled:
		_, invoiceErr = tx.ExecContext(ctx, `UPDATE invoices SET status = 'canceled' WHERE payment_id = ? AND status = 'pending'`, next.ID)
	}
	if invoiceErr != nil {
		return nil, invoiceErr
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	result.Payment = next
	result.UnlockPending = next.Status == model.PaymentPaid && next.GrantedAt == nil
	return result, nil
}

// ListStalePayments returns non-terminal payments not updated since olderThan.
func (r *repository) ListStalePayments(ctx context.Context, olderThan time.Time, limit int) ([]model.Payment, error) {
	return r.listPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status IN ('pending_form', 'initiated', 'pending') AND updated_at < ?
		 ORDER BY updated_at LIMIT ?`, olderThan, limit)
}

func (r *repository) ListUngrantedPaid(ctx context.Context, limit int) ([]model.Payment, error) {
	return r.listPayments(ctx,
		`SELECT `+paymentColumns+` FROM payments
		 WHERE status = 'paid' AND granted_at IS NULL
		 ORDER BY updated_at LIMIT ?`, limit)
}

func (r *repository) listPayments(ctx context.Context, query string, args ...interface{}) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []model.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}

	return payments, rows.Err()
}

func (r *repository) ListUserBooks(ctx context.Context, userID int64) ([]model.UserBook, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT ub.user_id, ub.book_id, COALESCE(b.title, ''), ub.status, ub.payment_id, ub.unlocked_at
		 FROM user_books ub LEFT JOIN books b ON b.id = ub.book_id
		 WHERE ub.user_id = ? ORDER BY ub.unlocked_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := []model.UserBook{}
	for rows.Next() {
		var (
			ub        model.UserBook
			paymentID sql.NullInt64
		)
		if err := rows.Scan(&ub.UserID, &ub.BookID, &ub.BookTitle, &ub.Status, &paymentID, &ub.UnlockedAt); err != nil {
			return nil, err
		}
		ub.PaymentID = intPtr(paymentID)
		books = append(books, ub)
	}

	return books, rows.Err()
}
