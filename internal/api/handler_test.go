package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SalahElkadim/alc/internal/auth"
	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/model"
	"github.com/SalahElkadim/alc/internal/storage"
	apperrors "github.com/SalahElkadim/alc/pkg/errors"
)

type stubExams struct {
	generateErr error
	submitErr   error
	studentID   int64
}

func (s *stubExams) Generate(_ context.Context, studentID int64, req model.GenerateExamRequest) (*model.ExamView, error) {
	s.studentID = studentID
	if s.generateErr != nil {
		return nil, s.generateErr
	}
	return &model.ExamView{ExamID: 1, BookID: req.BookID, Difficulty: req.Difficulty}, nil
}

func (s *stubExams) Submit(_ context.Context, studentID int64, req model.SubmitExamRequest) (*model.SubmitExamResponse, error) {
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &model.SubmitExamResponse{Success: true, ExamID: req.ExamID, LetterGrade: "A"}, nil
}

func (s *stubExams) Results(_ context.Context, studentID int64) ([]model.ExamResult, error) {
	return nil, nil
}

type stubUsers struct {
	loginErr error
	client   model.ClientInfo
}

func (s *stubUsers) Login(_ context.Context, email, _ string, client model.ClientInfo) (*model.LoginResponse, error) {
	s.client = client
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return &model.LoginResponse{
		TokenPair: model.TokenPair{Access: "a", Refresh: "r"},
		User:      &model.User{ID: 1, Email: email},
	}, nil
}

func (s *stubUsers) Refresh(_ context.Context, _ string, _ model.ClientInfo) (*model.TokenPair, error) {
	return &model.TokenPair{Access: "a2", Refresh: "r2"}, nil
}

func (s *stubUsers) Logout(_ context.Context, _ *auth.Claims, _ string) error { return nil }

func (s *stubUsers) Sessions(_ context.Context, _ int64) ([]model.UserSession, error) {
	return []model.UserSession{{ID: 1, UserID: 1, IsActive: true}}, nil
}

type stubPayments struct {
	webhookErr error
	webhooks   int
	signature  string
}

func (s *stubPayments) Create(_ context.Context, userID int64, req model.CreatePaymentRequest) (*model.CreatePaymentResponse, error) {
	return &model.CreatePaymentResponse{GatewayID: "pay_1", Status: model.PaymentInitiated}, nil
}

func (s *stubPayments) Callback(_ context.Context, gatewayID, _ string) (*model.Payment, error) {
	if gatewayID == "" {
		return nil, apperrors.ValidationError{Field: "id", Message: "is required"}
	}
	return &model.Payment{GatewayID: gatewayID, Status: model.PaymentPaid}, nil
}

func (s *stubPayments) HandleWebhook(_ context.Context, _ []byte, signature string) error {
	s.webhooks++
	s.signature = signature
	return s.webhookErr
}

func (s *stubPayments) Refund(_ context.Context, gatewayID string, _ int64) (*model.Payment, error) {
	return &model.Payment{GatewayID: gatewayID, Status: model.PaymentRefunded}, nil
}

func (s *stubPayments) MyBooks(_ context.Context, _ int64) ([]model.UserBook, error) {
	return nil, nil
}

func (s *stubPayments) Invoice(_ context.Context, _ string, _ int64, ownerCheck bool) (*model.Invoice, error) {
	if ownerCheck {
		return nil, apperrors.NotFound("Payment not found")
	}
	return &model.Invoice{InvoiceNumber: "INV-20240101-ABCDEF12"}, nil
}

type stubImports struct {
	jobs []model.ImportJob
}

func (s *stubImports) EnqueueImportJob(_ context.Context, job model.ImportJob) error {
	s.jobs = append(s.jobs, job)
	return nil
}

type stubFiles struct {
	objects map[string][]byte
}

func (s *stubFiles) Upload(_ context.Context, key string, data io.Reader) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.objects[key] = b
	return nil
}

func (s *stubFiles) Exists(_ context.Context, key string) (bool, error) {
	_, ok := s.objects[key]
	return ok, nil
}

type stubBooks struct{}

func (stubBooks) GetBook(_ context.Context, id int64) (*model.Book, error) {
	if id == 1 {
		return &model.Book{ID: 1}, nil
	}
	return nil, apperrors.NotFound("Book not found")
}

type fixture struct {
	router   *gin.Engine
	exams    *stubExams
	users    *stubUsers
	payments *stubPayments
	imports  *stubImports
	files    *stubFiles
}

// claimsFromHeader stands in for the token guard: X-Test-User selects the caller.
func claimsFromHeader(c *gin.Context) {
	switch c.GetHeader("X-Test-User") {
	case "student":
		auth.SetClaims(c, &auth.Claims{UserID: 7, UserType: model.UserTypeStudent})
	case "admin":
		auth.SetClaims(c, &auth.Claims{UserID: 1, UserType: model.UserTypeAdmin})
	}
	c.Next()
}

func newFixture(checks ...HealthCheck) *fixture {
	gin.SetMode(gin.TestMode)
	f := &fixture{
		exams:    &stubExams{},
		users:    &stubUsers{},
		payments: &stubPayments{},
		imports:  &stubImports{},
		files:    &stubFiles{objects: map[string][]byte{"uploads/q.xlsx": []byte("wb")}},
	}
	cfg := &config.Config{App: config.AppConfig{Name: "alc", Version: "test"}}
	h := NewHandler(cfg, f.exams, f.users, f.payments, f.imports, stubBooks{}, f.files, checks...)

	f.router = gin.New()
	f.router.Use(RecoveryMiddleware())
	SetupRoutes(f.router, h, claimsFromHeader)
	return f
}

func (f *fixture) do(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.([]byte); ok {
			buf.Write(raw)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestGenerateExam(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/v1/exams/generate", "student", gin.H{"book": 1, "difficulty": "easy"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int64(7), f.exams.studentID)
	assert.Equal(t, "easy", decode(t, w)["difficulty"])
}

func TestGenerateExamRequiresAuth(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/v1/exams/generate", "", gin.H{"book": 1, "difficulty": "easy"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestExamRoutesAreStudentOnly(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/v1/exams/generate", "admin", gin.H{"book": 1, "difficulty": "easy"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/v1/exams/submit", "admin", gin.H{"exam_id": 1, "answers": []gin.H{}})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Zero(t, f.exams.studentID)
}

func TestGenerateExamInsufficientQuestions(t *testing.T) {
	f := newFixture()
	f.exams.generateErr = apperrors.InsufficientQuestions(12, 20)

	w := f.do(http.MethodPost, "/api/v1/exams/generate", "student", gin.H{"book": 1, "difficulty": "hard"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	assert.Contains(t, body["error"], "Not enough questions")
	details := body["details"].(map[string]interface{})
	assert.Equal(t, float64(12), details["available"])
	assert.Equal(t, float64(20), details["required"])
}

func TestGenerateExamInvalidBody(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/v1/exams/generate", "student", []byte(`{"book":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitExamErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"already submitted", apperrors.Conflict(apperrors.ErrAlreadySubmitted), http.StatusConflict},
		{"not found", apperrors.NotFound("Exam not found"), http.StatusNotFound},
		{"bad answer", apperrors.ValidationError{Field: "answers[x].answer", Message: "must be a string"}, http.StatusBadRequest},
		{"unexpected", errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.exams.submitErr = tc.err

			w := f.do(http.MethodPost, "/api/v1/exams/submit", "student", gin.H{"exam_id": 1, "answers": []gin.H{}})
			assert.Equal(t, tc.status, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestExamResultsEmptyList(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/api/v1/exams/results", "student", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, decode(t, w)["results"])
}

func TestLoginPassesClientInfo(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login",
		bytes.NewBufferString(`{"email":"a@b.c","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test-agent", f.users.client.UserAgent)
	assert.Equal(t, "10.0.0.1", f.users.client.IP)
	assert.Equal(t, "a", decode(t, w)["access"])
}

func TestLoginLocked(t *testing.T) {
	f := newFixture()
	locked := apperrors.Wrap(apperrors.KindLocked, apperrors.ErrAccountLocked, "Account is temporarily locked")
	locked.Details = map[string]interface{}{"locked_until": time.Now().Add(time.Minute)}
	f.users.loginErr = locked

	w := f.do(http.MethodPost, "/api/v1/users/login", "", gin.H{"email": "a@b.c", "password": "x"})
	assert.Equal(t, http.StatusLocked, w.Code)
}

func TestSessionsAndLogout(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/api/v1/users/sessions", "student", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = f.do(http.MethodPost, "/api/v1/users/logout", "student", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(http.MethodPost, "/api/v1/users/logout", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	for _, err := range []error{nil, apperrors.ErrDuplicateEvent, apperrors.ErrInvalidSignature, errors.New("boom")} {
		f := newFixture()
		f.payments.webhookErr = err

		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewBufferString(`{"type":"payment_paid"}`))
		req.Header.Set(webhookSignatureHeader, "sig")
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, f.payments.webhooks)
		assert.Equal(t, "sig", f.payments.signature)
	}
}

func TestPaymentCallback(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/api/v1/payments/callback?id=pay_1&status=paid", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "paid", decode(t, w)["status"])

	w = f.do(http.MethodGet, "/api/v1/payments/callback", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInvoiceOwnership(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodGet, "/api/v1/payments/pay_1/invoice", "student", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodGet, "/api/v1/payments/pay_1/invoice", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "INV-20240101-ABCDEF12", decode(t, w)["invoice_number"])
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture()

	w := f.do(http.MethodPost, "/api/v1/admin/questions/import", "student", gin.H{"s3_path": "q.xlsx", "book_id": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(http.MethodPost, "/api/v1/admin/questions/import", "admin", gin.H{"s3_path": "uploads/q.csv", "book_id": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/admin/questions/import", "admin", gin.H{"s3_path": "uploads/q.xlsx", "book_id": 2})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/v1/admin/questions/import", "admin", gin.H{"s3_path": "uploads/other.xlsx", "book_id": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/v1/admin/questions/import", "admin", gin.H{"s3_path": "uploads/q.xlsx", "book_id": 1})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.imports.jobs, 1)
	assert.Equal(t, "uploads/q.xlsx", f.imports.jobs[0].S3Path)
	assert.False(t, f.imports.jobs[0].Uploaded)

	w = f.do(http.MethodPost, "/api/v1/admin/payments/pay_1/refund?amount=-1", "admin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/admin/payments/pay_1/refund", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "refunded", decode(t, w)["status"])
}

func (f *fixture) upload(t *testing.T, user, bookID, filename string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("book_id", bookID))
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("workbook"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/questions/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Test-User", user)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestImportUpload(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusBadRequest, f.upload(t, "admin", "1", "bank.csv").Code)
	assert.Equal(t, http.StatusBadRequest, f.upload(t, "admin", "x", "bank.xlsx").Code)
	assert.Equal(t, http.StatusNotFound, f.upload(t, "admin", "2", "bank.xlsx").Code)

	w := f.upload(t, "admin", "1", "bank.xlsx")
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, f.imports.jobs, 1)

	job := f.imports.jobs[0]
	assert.True(t, job.Uploaded)
	assert.Equal(t, storage.WorkbookKey(1, job.JobID), job.S3Path)
	assert.Equal(t, "workbook", string(f.files.objects[job.S3Path]))
	assert.Equal(t, job.JobID, decode(t, w)["job_id"])
}

func TestHealthCheck(t *testing.T) {
	f := newFixture(
		HealthCheck{Name: "mysql", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("down") }},
	)

	w := f.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]interface{})
	assert.Equal(t, "ok", deps["mysql"])
	assert.Equal(t, "unavailable", deps["redis"])
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORSMiddleware([]string{"https://app.example"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
