package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-ledger-sync/transform"
)

const (
	ErrorCodeBadInput              = "LEDGER_BAD_INPUT"
	ErrorCodeMissingRefreshToken   = "MISSING_REFRESH_TOKEN"
	ErrorCodeAuthenticationExpired = "AUTHENTICATION_EXPIRED"
	ErrorCodeVersionConflict       = "VERSION_CONFLICT"
	ErrorCodeExternalService       = "EXTERNAL_SERVICE_ERROR"
	ErrorCodeValidationFailure     = "VALIDATION_FAILURE"
	ErrorCodeNotFoundLocal         = "NOT_FOUND_LOCAL"
	ErrorCodeMappingExists         = "MAPPING_EXISTS"
	ErrorCodeOAuthStateInvalid     = "OAUTH_STATE_INVALID"
	ErrorCodeLockUnavailable       = "LOCK_UNAVAILABLE"
	ErrorCodeNotConnected          = "INTEGRATION_NOT_CONNECTED"
	ErrorCodeInternal              = "LEDGER_INTERNAL_ERROR"
)

var (
	ErrMissingRefreshToken   = errors.New("core: credential has no refresh token")
	ErrAuthenticationExpired = errors.New("core: authentication expired, reconnect required")
	ErrNotFoundLocal         = errors.New("core: local record not found")
	ErrMappingExists         = errors.New("core: entity mapping already exists")
	ErrOAuthStateInvalid     = errors.New("core: oauth state is invalid or expired")
	ErrLockUnavailable       = errors.New("core: lock already held")
	ErrNotConnected          = errors.New("core: no connected integration")
	ErrInvalidRequest        = errors.New("core: invalid request")
)

// VersionConflictError reports an update rejected because the supplied
// SyncToken is no longer current.
type VersionConflictError struct {
	EntityKind string
	ExternalID string
	SyncToken  string
	Cause      error
}

func (e *VersionConflictError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("core: version conflict updating %s %s", e.EntityKind, e.ExternalID)
	if e.SyncToken != "" {
		msg += " at sync token " + e.SyncToken
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *VersionConflictError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ExternalServiceError wraps a provider or network failure with the operation
// that was attempted.
type ExternalServiceError struct {
	Operation  string
	EntityKind string
	ExternalID string
	StatusCode int
	Cause      error
}

func (e *ExternalServiceError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("core: external ")
	b.WriteString(e.Operation)
	if e.EntityKind != "" {
		b.WriteString(" ")
		b.WriteString(e.EntityKind)
	}
	if e.ExternalID != "" {
		b.WriteString(" ")
		b.WriteString(e.ExternalID)
	}
	b.WriteString(" failed")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ExternalServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

type ValidationIssue = transform.Issue

// ValidationFailure carries the structured issues of a rejected payload.
type ValidationFailure struct {
	Errors []ValidationIssue
}

func NewValidationFailure(issues []ValidationIssue) *ValidationFailure {
	return &ValidationFailure{Errors: append([]ValidationIssue(nil), issues...)}
}

func (e *ValidationFailure) Error() string {
	if e == nil {
		return ""
	}
	if len(e.Errors) == 0 {
		return "core: validation failed"
	}
	return "core: validation failed: " + transform.Summary(e.Errors)
}

func IsVersionConflict(err error) bool {
	var conflict *VersionConflictError
	return errors.As(err, &conflict)
}

func IsAuthenticationExpired(err error) bool {
	return errors.Is(err, ErrAuthenticationExpired) || errors.Is(err, ErrMissingRefreshToken)
}

// IsValidationFailure also matches source documents missing whole sections.
func IsValidationFailure(err error) bool {
	var failure *ValidationFailure
	var missing *transform.MissingFieldsError
	return errors.As(err, &failure) || errors.As(err, &missing)
}

// MapError converts any error into the goerrors envelope used by callers that
// expose results over a transport.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	var validation *ValidationFailure
	if errors.As(err, &validation) {
		fields := make([]goerrors.FieldError, 0, len(validation.Errors))
		for _, issue := range validation.Errors {
			fields = append(fields, goerrors.FieldError{Field: issue.Field, Message: issue.Message})
		}
		return ensureErrorEnvelope(
			goerrors.NewValidation(validation.Error(), fields...).
				WithTextCode(ErrorCodeValidationFailure),
		)
	}

	var missing *transform.MissingFieldsError
	if errors.As(err, &missing) {
		fields := make([]goerrors.FieldError, 0, len(missing.Fields))
		for _, issue := range missing.Issues() {
			fields = append(fields, goerrors.FieldError{Field: issue.Field, Message: issue.Message})
		}
		return ensureErrorEnvelope(
			goerrors.NewValidation(err.Error(), fields...).
				WithTextCode(ErrorCodeValidationFailure),
		)
	}

	var conflict *VersionConflictError
	if errors.As(err, &conflict) {
		return ensureErrorEnvelope(newLedgerError(err.Error(), goerrors.CategoryConflict, ErrorCodeVersionConflict).
			WithMetadata(map[string]any{
				"entity_kind": conflict.EntityKind,
				"external_id": conflict.ExternalID,
			}))
	}

	switch {
	case errors.Is(err, ErrMissingRefreshToken):
		return newLedgerError(err.Error(), goerrors.CategoryAuth, ErrorCodeMissingRefreshToken)
	case errors.Is(err, ErrAuthenticationExpired):
		return newLedgerError(err.Error(), goerrors.CategoryAuth, ErrorCodeAuthenticationExpired)
	case errors.Is(err, ErrNotFoundLocal):
		return newLedgerError(err.Error(), goerrors.CategoryNotFound, ErrorCodeNotFoundLocal)
	case errors.Is(err, ErrMappingExists):
		return newLedgerError(err.Error(), goerrors.CategoryConflict, ErrorCodeMappingExists)
	case errors.Is(err, ErrOAuthStateInvalid):
		return newLedgerError(err.Error(), goerrors.CategoryAuth, ErrorCodeOAuthStateInvalid)
	case errors.Is(err, ErrLockUnavailable):
		return newLedgerError(err.Error(), goerrors.CategoryConflict, ErrorCodeLockUnavailable)
	case errors.Is(err, ErrNotConnected):
		return newLedgerError(err.Error(), goerrors.CategoryOperation, ErrorCodeNotConnected)
	case errors.Is(err, ErrInvalidRequest):
		return newLedgerError(err.Error(), goerrors.CategoryBadInput, ErrorCodeBadInput)
	}

	var external *ExternalServiceError
	if errors.As(err, &external) {
		return ensureErrorEnvelope(newLedgerError(err.Error(), goerrors.CategoryExternal, ErrorCodeExternalService).
			WithMetadata(map[string]any{
				"operation":   external.Operation,
				"entity_kind": external.EntityKind,
				"status_code": external.StatusCode,
			}))
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	if strings.Contains(msg, "required") || strings.Contains(msg, "invalid") {
		return newLedgerError(err.Error(), goerrors.CategoryBadInput, ErrorCodeBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newLedgerError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return ErrorCodeBadInput
	case goerrors.CategoryValidation:
		return ErrorCodeValidationFailure
	case goerrors.CategoryNotFound:
		return ErrorCodeNotFoundLocal
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ErrorCodeAuthenticationExpired
	case goerrors.CategoryConflict:
		return ErrorCodeVersionConflict
	case goerrors.CategoryExternal:
		return ErrorCodeExternalService
	default:
		return ErrorCodeInternal
	}
}

func httpStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
