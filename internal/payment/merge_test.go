package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/SalahElkadim/alc/internal/model"
)

func i64(v int64) *int64 { return &v }

func TestMergeNewPayment(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	p, eff := Merge(nil, model.PaymentUpdate{
		GatewayID: "pay_1",
		Status:    model.PaymentInitiated,
		Amount:    5000,
		UserID:    i64(7),
		BookID:    i64(3),
	}, now)

	assert.Equal(t, "pay_1", p.GatewayID)
	assert.Equal(t, model.PaymentInitiated, p.Status)
	assert.Equal(t, int64(5000), p.Amount)
	assert.Equal(t, "SAR", p.Currency)
	assert.False(t, eff.Grant)
	assert.Empty(t, eff.InvoiceStatus)
}

func TestMergeNeverClearsOwnership(t *testing.T) {
	now := time.Now()
	existing := &model.Payment{GatewayID: "pay_1", Status: model.PaymentPending, UserID: i64(7), BookID: i64(3)}

	p, eff := Merge(existing, model.PaymentUpdate{GatewayID: "pay_1", Status: model.PaymentPaid}, now)

	assert.Equal(t, int64(7), *p.UserID)
	assert.Equal(t, int64(3), *p.BookID)
	assert.Equal(t, model.PaymentPaid, p.Status)
	assert.NotNil(t, p.PaidAt)
	assert.True(t, eff.Grant)
}

func TestMergeDoesNotOverwriteOwnership(t *testing.T) {
	existing := &model.Payment{GatewayID: "pay_1", Status: model.PaymentPending, UserID: i64(7), BookID: i64(3)}

	p, _ := Merge(existing, model.PaymentUpdate{GatewayID: "pay_1", Status: model.PaymentPending, UserID: i64(99), BookID: i64(98)}, time.Now())

	assert.Equal(t, int64(7), *p.UserID)
	assert.Equal(t, int64(3), *p.BookID)
}

func TestMergePaidDoesNotRegress(t *testing.T) {
	paidAt := time.Now().Add(-time.Hour)
	existing := &model.Payment{
		GatewayID: "pay_1", Status: model.PaymentPaid, PaidAt: &paidAt, GrantedAt: &paidAt,
		UserID: i64(7), BookID: i64(3),
	}

	for _, status := range []model.PaymentStatus{model.PaymentPending, model.PaymentFailed, model.PaymentInitiated, model.PaymentCanceled} {
		p, eff := Merge(existing, model.PaymentUpdate{GatewayID: "pay_1", Status: status}, time.Now())
		assert.Equal(t, model.PaymentPaid, p.Status, status)
		assert.Equal(t, paidAt, *p.PaidAt)
		assert.False(t, eff.Grant)
		assert.Empty(t, eff.InvoiceStatus)
	}
}

func TestMergeGrantsOnce(t *testing.T) {
	now := time.Now()
	existing := &model.Payment{GatewayID: "pay_1", Status: model.PaymentPending, UserID: i64(7), BookID: i64(3)}

	p, eff := Merge(existing, model.PaymentUpdate{GatewayID: "pay_1", Status: model.PaymentPaid}, now)
	assert.True(t, eff.Grant)

	p.GrantedAt = &now
	_, eff = Merge(&p, model.PaymentUpdate{GatewayID: "pay_1", Status: model.PaymentPaid}, now)
	assert.False(t, eff.Grant)
}

func TestMergePaidWithoutOwnerDefersGrant(t *testing.T) {
	p, eff := Merge(nil, model.PaymentUpdate{GatewayID: "pay_1", Status: model.PaymentPaid}, time.Now())

	assert.Equal(t, model.PaymentPaid, p.Status)
	assert.False(t, eff.Grant)

	p, eff = Merge(&p, model.PaymentUpdate{GatewayID: "pay_1", Status: model.PaymentPaid, UserID: i64(7), BookID: i64(3)}, time.Now())
	assert.True(t, eff.Grant)
	assert.Equal(t, int64(7), *p.UserID)
}

func TestMergeOrderIndependent(t *testing.T) {
	now := time.Now()
	created := model.Payment{GatewayID: "pay_1", Status: model.PaymentInitiated, UserID: i64(7), BookID: i64(3), Amount: 5000}

	// webhook bodies may lack metadata; the callback fetch carries it
	webhook := model.PaymentUpdate{GatewayID: "pay_1", Status: model.PaymentPaid}
	callback := model.PaymentUpdate{GatewayID: "pay_1", Status: model.PaymentPaid, UserID: i64(7), BookID: i64(3), Amount: 5000}

	apply := func(updates ...model.PaymentUpdate) (model.Payment, int) {
		p := created
		grants := 0
		for _, u := range updates {
			next, effects := Merge(&p, u, now)
			if effects.Grant {
				grants++
				next.GrantedAt = &now
			}
			p = next
		}
		return p, grants
	}

	a, grantsA := apply(webhook, callback)
	b, grantsB := apply(callback, webhook)

	assert.Equal(t, a.Status, b.Status)
	assert.Equal(t, *a.UserID, *b.UserID)
	assert.Equal(t, *a.BookID, *b.BookID)
	assert.Equal(t, 1, grantsA)
	assert.Equal(t, 1, grantsB)
}

func TestMergeRefund(t *testing.T) {
	paidAt := time.Now()
	existing := &model.Payment{GatewayID: "pay_1", Status: model.PaymentPaid, PaidAt: &paidAt, GrantedAt: &paidAt}

	p, eff := Merge(existing, model.PaymentUpdate{GatewayID: "pay_1", Status: model.PaymentRefunded}, time.Now())
	assert.Equal(t, model.PaymentRefunded, p.Status)
	assert.Equal(t, model.InvoiceRefunded, eff.InvoiceStatus)

	p, _ = Merge(&p, model.PaymentUpdate{GatewayID: "pay_1", Status: model.PaymentPaid}, time.Now())
	assert.Equal(t, model.PaymentRefunded, p.Status)
}

func TestMergeFailedCancelsInvoice(t *testing.T) {
	existing := &model.Payment{GatewayID: "pay_1", Status: model.PaymentInitiated}

	p, eff := Merge(existing, model.PaymentUpdate{GatewayID: "pay_1", Status: model.PaymentFailed}, time.Now())
	assert.Equal(t, model.PaymentFailed, p.Status)
	assert.Equal(t, model.InvoiceCanceled, eff.InvoiceStatus)
}
