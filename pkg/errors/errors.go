package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrAlreadySubmitted     = errors.New("exam already submitted")
	ErrSessionExpired       = errors.New("Session expired. Please login again.")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountLocked        = errors.New("account temporarily locked")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrTokenRevoked         = errors.New("token has been revoked")
	ErrInvalidFileFormat    = errors.New("invalid file format")
	ErrSchemaValidation     = errors.New("schema validation failed")
	ErrGatewayTimeout       = errors.New("payment gateway timeout")
	ErrGatewayError         = errors.New("payment gateway error")
	ErrInvalidSignature     = errors.New("invalid webhook signature")
	ErrDuplicateEvent       = errors.New("webhook event already processed")
	ErrInsufficientQuestion = errors.New("not enough questions available")
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindInsufficientResource
	KindUnauthorized
	KindSessionExpired
	KindLocked
	KindUpstream
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInsufficientResource:
		return "insufficient_resource"
	case KindUnauthorized:
		return "unauthorized"
	case KindSessionExpired:
		return "session_expired"
	case KindLocked:
		return "locked"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// AppError carries a client-facing message and a Kind that decides the HTTP status.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
	Details map[string]interface{}
	// Status overrides the Kind mapping, used for upstream failures
	// that echo the gateway status.
	Status int
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation, KindInsufficientResource:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized, KindSessionExpired:
		return http.StatusUnauthorized
	case KindLocked:
		return http.StatusLocked
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

func Wrap(kind Kind, err error, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func NotFound(message string) *AppError {
	return &AppError{Kind: KindNotFound, Message: message, Err: ErrNotFound}
}

func Conflict(err error) *AppError {
	return &AppError{Kind: KindConflict, Message: err.Error(), Err: err}
}

func InsufficientQuestions(available, required int) *AppError {
	return &AppError{
		Kind:    KindInsufficientResource,
		Message: fmt.Sprintf("Not enough questions available. Found %d, need %d", available, required),
		Err:     ErrInsufficientQuestion,
		Details: map[string]interface{}{"available": available, "required": required},
	}
}

func SessionExpired() *AppError {
	return &AppError{Kind: KindSessionExpired, Message: ErrSessionExpired.Error(), Err: ErrSessionExpired}
}

func Upstream(err error, status int) *AppError {
	return &AppError{Kind: KindUpstream, Message: "payment gateway request failed", Err: err, Status: status}
}

// KindOf reports the Kind of err. Validation errors map to KindValidation,
// anything unclassified is internal.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	var valErr ValidationError
	if errors.As(err, &valErr) {
		return KindValidation
	}
	return KindInternal
}

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

type RetryableError struct {
	Err     error
	Message string
}

func (e RetryableError) Error() string {
	return fmt.Sprintf("retryable error: %s - %s", e.Message, e.Err.Error())
}

func (e RetryableError) Unwrap() error {
	return e.Err
}

func NewRetryableError(err error, message string) error {
	return RetryableError{
		Err:     err,
		Message: message,
	}
}

func IsRetryable(err error) bool {
	var r RetryableError
	return errors.As(err, &r)
}
