package payment

import (
	"time"

	"github.com/SalahElkadim/alc/internal/db"
	"github.com/SalahElkadim/alc/internal/model"
)

// canTransition reports whether a stored status may be replaced. A paid
// payment only moves on to refunded and a refund is final.
func canTransition(from, to model.PaymentStatus) bool {
	switch from {
	case model.PaymentPaid:
		return to == model.PaymentRefunded
	case model.PaymentRefunded:
		return false
	}
	return true
}

// Merge folds a gateway update into the stored payment. It is order
// independent for the callback and webhook paths: user and book are only
// ever filled in, never cleared, and the unlock is requested whenever a paid
// payment is resolvable and not yet granted.
func Merge(existing *model.Payment, update model.PaymentUpdate, now time.Time) (model.Payment, db.PaymentEffects) {
	var next model.Payment
	if existing != nil {
		next = *existing
	} else {
		next = model.Payment{
			GatewayID: update.GatewayID,
			Status:    model.PaymentInitiated,
			Currency:  "SAR",
		}
	}
	previous := next.Status

	if next.UserID == nil && update.UserID != nil {
		next.UserID = update.UserID
	}
	if next.BookID == nil && update.BookID != nil {
		next.BookID = update.BookID
	}
	if update.Amount > 0 {
		next.Amount = update.Amount
	}
	if update.Currency != "" {
		next.Currency = update.Currency
	}
	if update.Description != "" {
		next.Description = update.Description
	}
	if update.SourceType != "" {
		next.SourceType = update.SourceType
	}
	if update.GatewayFee > 0 {
		next.GatewayFee = update.GatewayFee
	}

	if update.Status.Valid() && (existing == nil || canTransition(previous, update.Status)) {
		next.Status = update.Status
	}

	if next.Status == model.PaymentPaid && next.PaidAt == nil {
		if update.PaidAt != nil {
			next.PaidAt = update.PaidAt
		} else {
			paidAt := now
			next.PaidAt = &paidAt
		}
	}

	var effects db.PaymentEffects
	if next.Status == model.PaymentPaid && next.GrantedAt == nil && next.UserID != nil && next.BookID != nil {
		effects.Grant = true
	}

	if next.Status != previous || existing == nil {
		switch next.Status {
		case model.PaymentRefunded:
			effects.InvoiceStatus = model.InvoiceRefunded
		case model.PaymentFailed, model.PaymentCanceled:
			effects.InvoiceStatus = model.InvoiceCanceled
		}
	}

	return next, effects
}
