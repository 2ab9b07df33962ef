package query

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ledger-sync/core"
)

func queryDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorCodeInternal)
}

// invalid returns a validation error for the given fields, or nil when none
// are given.
func invalid(fields ...goerrors.FieldError) error {
	if len(fields) == 0 {
		return nil
	}
	return goerrors.NewValidation("query: validation failed", fields...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorCodeBadInput).
		WithSeverity(goerrors.SeverityError)
}

func missing(fields map[string]string) []goerrors.FieldError {
	var out []goerrors.FieldError
	for _, name := range []string{"tenant_id", "integration_id"} {
		value, ok := fields[name]
		if ok && strings.TrimSpace(value) == "" {
			out = append(out, goerrors.FieldError{Field: name, Message: strings.ReplaceAll(name, "_", " ") + " is required"})
		}
	}
	return out
}

func wrapInvalid(err error, message string) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, message).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorCodeBadInput)
}
