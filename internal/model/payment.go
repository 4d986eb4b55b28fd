package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPendingForm PaymentStatus = "pending_form"
	PaymentInitiated   PaymentStatus = "initiated"
	PaymentPending     PaymentStatus = "pending"
	PaymentPaid        PaymentStatus = "paid"
	PaymentFailed      PaymentStatus = "failed"
	PaymentRefunded    PaymentStatus = "refunded"
	PaymentCanceled    PaymentStatus = "canceled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPendingForm, PaymentInitiated, PaymentPending, PaymentPaid,
		PaymentFailed, PaymentRefunded, PaymentCanceled:
		return true
	}
	return false
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed || s == PaymentRefunded || s == PaymentCanceled
}

type Payment struct {
	ID          int64         `json:"id"`
	GatewayID   string        `json:"gateway_id"`
	UserID      *int64        `json:"user_id,omitempty"`
	BookID      *int64        `json:"book_id,omitempty"`
	Amount      int64         `json:"amount"`
	Currency    string        `json:"currency"`
	Status      PaymentStatus `json:"status"`
	Description string        `json:"description"`
	SourceType  string        `json:"source_type,omitempty"`
	GatewayFee  int64         `json:"gateway_fee"`
	PaidAt      *time.Time    `json:"paid_at,omitempty"`
	GrantedAt   *time.Time    `json:"granted_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type InvoiceStatus string

const (
	InvoicePending  InvoiceStatus = "pending"
	InvoicePaid     InvoiceStatus = "paid"
	InvoiceCanceled InvoiceStatus = "canceled"
	InvoiceRefunded InvoiceStatus = "refunded"
)

type Invoice struct {
	ID            int64           `json:"id"`
	PaymentID     int64           `json:"payment_id"`
	InvoiceNumber string          `json:"invoice_number"`
	Amount        decimal.Decimal `json:"amount"`
	TaxAmount     decimal.Decimal `json:"tax_amount"`
	Currency      string          `json:"currency"`
	Description   string          `json:"description"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	CustomerPhone string          `json:"customer_phone,omitempty"`
	Status        InvoiceStatus   `json:"status"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

type UserBook struct {
	UserID     int64     `json:"user_id"`
	BookID     int64     `json:"book_id"`
	BookTitle  string    `json:"book_title,omitempty"`
	Status     string    `json:"status"`
	PaymentID  *int64    `json:"payment_id,omitempty"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// PaymentUpdate is a normalized view of a gateway transaction, produced
// from a callback fetch, a webhook body or a sweep.
type PaymentUpdate struct {
	GatewayID   string
	Status      PaymentStatus
	Amount      int64
	Currency    string
	Description string
	SourceType  string
	GatewayFee  int64
	UserID      *int64
	BookID      *int64
	PaidAt      *time.Time

	// EventID is set for webhook deliveries and recorded with the update.
	EventID   string
	EventType string
}
