package gateway

import (
	"fmt"
	"strconv"
	"time"

	"github.com/SalahElkadim/alc/internal/model"
)

// Status maps a gateway status onto the local payment lifecycle.
func Status(gatewayStatus string) model.PaymentStatus {
	switch gatewayStatus {
	case "initiated":
		return model.PaymentInitiated
	case "paid", "captured":
		return model.PaymentPaid
	case "authorized":
		return model.PaymentPending
	case "failed":
		return model.PaymentFailed
	case "refunded":
		return model.PaymentRefunded
	case "voided", "canceled":
		return model.PaymentCanceled
	}
	return model.PaymentPending
}

func metadataID(meta map[string]interface{}, key string) *int64 {
	v, ok := meta[key]
	if !ok || v == nil {
		return nil
	}

	var id int64
	switch t := v.(type) {
	case float64:
		id = int64(t)
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return nil
		}
		id = n
	default:
		n, err := strconv.ParseInt(fmt.Sprint(t), 10, 64)
		if err != nil {
			return nil
		}
		id = n
	}
	if id <= 0 {
		return nil
	}
	return &id
}

// ToUpdate normalizes a transaction. User and book are taken from the
// user_id and book_id metadata and stay nil when absent.
func (t *Transaction) ToUpdate() model.PaymentUpdate {
	upd := model.PaymentUpdate{
		GatewayID:   t.ID,
		Status:      Status(t.Status),
		Amount:      t.Amount,
		Currency:    t.Currency,
		Description: t.Description,
		SourceType:  t.Source.Type,
		GatewayFee:  t.Fee,
		UserID:      metadataID(t.Metadata, "user_id"),
		BookID:      metadataID(t.Metadata, "book_id"),
	}

	if upd.Status == model.PaymentPaid {
		if at, err := time.Parse(time.RFC3339, t.UpdatedAt); err == nil {
			upd.PaidAt = &at
		}
	}

	return upd
}
