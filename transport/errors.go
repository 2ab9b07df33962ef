package transport

import (
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-ledger-sync/core"
)

// textCodes maps error categories onto the codes callers switch on.
var textCodes = map[goerrors.Category]string{
	goerrors.CategoryBadInput:   core.ErrorCodeBadInput,
	goerrors.CategoryValidation: core.ErrorCodeBadInput,
	goerrors.CategoryExternal:   core.ErrorCodeExternalService,
	goerrors.CategoryRateLimit:  core.ErrorCodeExternalService,
}

func transportError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	return decorate(goerrors.New(message, category), category, code, metadata)
}

func transportWrapError(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	return decorate(goerrors.Wrap(source, category, message), category, code, metadata)
}

func decorate(err *goerrors.Error, category goerrors.Category, code int, metadata map[string]any) *goerrors.Error {
	textCode, ok := textCodes[category]
	if !ok {
		textCode = core.ErrorCodeInternal
	}
	err = err.WithCode(code).WithTextCode(textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}
