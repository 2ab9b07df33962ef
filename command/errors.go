package command

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-ledger-sync/core"
)

func commandDependencyError(message string) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ErrorCodeInternal)
}

// fieldErrors collects every invalid field of a message so one validation
// error reports all of them.
type fieldErrors []goerrors.FieldError

func (f fieldErrors) require(field, value string) fieldErrors {
	if strings.TrimSpace(value) != "" {
		return f
	}
	return f.add(field, strings.ReplaceAll(field, "_", " ")+" is required")
}

func (f fieldErrors) add(field, message string) fieldErrors {
	return append(f, goerrors.FieldError{Field: field, Message: message})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return goerrors.NewValidation("command: validation failed", f...).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ErrorCodeBadInput).
		WithSeverity(goerrors.SeverityError)
}
