package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/model"
	"github.com/SalahElkadim/alc/pkg/errors"
)

func newTestClient(url string) *Client {
	return NewClient(&config.Config{Gateway: config.GatewayConfig{
		BaseURL:       url,
		SecretKey:     "sk_test",
		CallbackURL:   "https://example.com/callback",
		Currency:      "SAR",
		Timeout:       5 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}})
}

func TestCreatePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "sk_test", user)
		assert.Empty(t, pass)
		assert.Equal(t, "/payments", r.URL.Path)

		var req CreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(10000), req.Amount)
		assert.Equal(t, "https://example.com/callback", req.CallbackURL)
		assert.Equal(t, "SAR", req.Currency)
		assert.Equal(t, "7", req.Metadata["user_id"])

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Transaction{
			ID: "pay_1", Status: "initiated", Amount: req.Amount, Currency: "SAR",
			Metadata: map[string]interface{}{"user_id": "7", "book_id": "3"},
			Source:   TransactionSource{Type: "creditcard", TransactionURL: "https://3ds.example"},
		})
	}))
	defer srv.Close()

	tx, err := newTestClient(srv.URL).CreatePayment(context.Background(), CreateRequest{
		GivenID:  "given",
		Amount:   10000,
		Metadata: map[string]string{"user_id": "7", "book_id": "3"},
		Source:   map[string]interface{}{"type": "token", "token": "tok"},
	})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", tx.ID)

	upd := tx.ToUpdate()
	assert.Equal(t, model.PaymentInitiated, upd.Status)
	require.NotNil(t, upd.UserID)
	require.NotNil(t, upd.BookID)
	assert.Equal(t, int64(7), *upd.UserID)
	assert.Equal(t, int64(3), *upd.BookID)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Transaction{ID: "pay_2", Status: "paid", UpdatedAt: "2024-05-01T10:00:00Z"})
	}))
	defer srv.Close()

	tx, err := newTestClient(srv.URL).FetchPayment(context.Background(), "pay_2")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	upd := tx.ToUpdate()
	assert.Equal(t, model.PaymentPaid, upd.Status)
	require.NotNil(t, upd.PaidAt)
	assert.Nil(t, upd.UserID)
}

func TestClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"type": "record_not_found", "message": "Object not found"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).FetchPayment(context.Background(), "missing")
	require.Error(t, err)
	assert.False(t, errors.IsRetryable(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "record_not_found", apiErr.Type)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, model.PaymentPaid, Status("captured"))
	assert.Equal(t, model.PaymentCanceled, Status("voided"))
	assert.Equal(t, model.PaymentPending, Status("authorized"))
	assert.Equal(t, model.PaymentPending, Status("something-new"))
}
