package transform

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const (
	invoiceSchemaFile = "schemas/invoice.schema.json"
	receiptSchemaFile = "schemas/receipt.schema.json"
)

// Issue is one structured schema violation.
type Issue struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Result reports the outcome of a schema validation.
type Result struct {
	Valid  bool
	Issues []Issue
}

// Validator checks provider payloads against the embedded JSON schemas.
type Validator struct {
	invoice *jsonschema.Schema
	receipt *jsonschema.Schema
	printer *message.Printer
}

var (
	defaultValidatorOnce sync.Once
	defaultValidator     *Validator
	defaultValidatorErr  error
)

// DefaultValidator returns a process-wide validator compiled once.
func DefaultValidator() (*Validator, error) {
	defaultValidatorOnce.Do(func() {
		defaultValidator, defaultValidatorErr = NewValidator()
	})
	return defaultValidator, defaultValidatorErr
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	for _, name := range []string{invoiceSchemaFile, receiptSchemaFile} {
		raw, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("transform: read schema %s: %w", name, err)
		}
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("transform: parse schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, doc); err != nil {
			return nil, fmt.Errorf("transform: add schema %s: %w", name, err)
		}
	}
	invoice, err := compiler.Compile(invoiceSchemaFile)
	if err != nil {
		return nil, fmt.Errorf("transform: compile invoice schema: %w", err)
	}
	receipt, err := compiler.Compile(receiptSchemaFile)
	if err != nil {
		return nil, fmt.Errorf("transform: compile receipt schema: %w", err)
	}
	return &Validator{
		invoice: invoice,
		receipt: receipt,
		printer: message.NewPrinter(language.English),
	}, nil
}

// ValidateInvoice accepts an Invoice or any JSON-encodable value.
func (v *Validator) ValidateInvoice(payload any) Result {
	return v.validate(v.invoice, payload)
}

// ValidateReceipt accepts a Purchase or any JSON-encodable value.
func (v *Validator) ValidateReceipt(payload any) Result {
	return v.validate(v.receipt, payload)
}

func (v *Validator) validate(schema *jsonschema.Schema, payload any) Result {
	if v == nil || schema == nil {
		return Result{Issues: []Issue{{Code: "schema_unavailable", Message: "validator is not configured"}}}
	}
	instance, err := toInstance(payload)
	if err != nil {
		return Result{Issues: []Issue{{Code: "invalid_json", Message: err.Error()}}}
	}
	if err := schema.Validate(instance); err != nil {
		var validationErr *jsonschema.ValidationError
		if !errors.As(err, &validationErr) {
			return Result{Issues: []Issue{{Code: "validation_error", Message: err.Error()}}}
		}
		issues := v.collect(validationErr, nil)
		sortIssues(issues)
		return Result{Issues: issues}
	}
	return Result{Valid: true}
}

func (v *Validator) collect(err *jsonschema.ValidationError, out []Issue) []Issue {
	if err == nil {
		return out
	}
	if len(err.Causes) > 0 {
		for _, cause := range err.Causes {
			out = v.collect(cause, out)
		}
		return out
	}
	field := instancePath(err.InstanceLocation)
	if err.ErrorKind == nil {
		return append(out, Issue{Field: field, Code: "invalid", Message: err.Error()})
	}
	code := ""
	if path := err.ErrorKind.KeywordPath(); len(path) > 0 {
		code = path[len(path)-1]
	}
	if required, ok := err.ErrorKind.(*kind.Required); ok {
		for _, missing := range required.Missing {
			out = append(out, Issue{
				Field:   joinPointer(field, missing),
				Code:    "required",
				Message: fmt.Sprintf("missing property %q", missing),
			})
		}
		return out
	}
	return append(out, Issue{
		Field:   field,
		Code:    code,
		Message: err.ErrorKind.LocalizedString(v.printer),
	})
}

func toInstance(payload any) (any, error) {
	var raw []byte
	switch typed := payload.(type) {
	case []byte:
		raw = typed
	case json.RawMessage:
		raw = typed
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("transform: encode payload: %w", err)
		}
		raw = encoded
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("transform: decode payload: %w", err)
	}
	return instance, nil
}

func instancePath(location []string) string {
	if len(location) == 0 {
		return "/"
	}
	return "/" + strings.Join(location, "/")
}

func joinPointer(base, segment string) string {
	if base == "/" {
		return "/" + segment
	}
	return base + "/" + segment
}

func sortIssues(issues []Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].Field == issues[j].Field {
			return issues[i].Code < issues[j].Code
		}
		return issues[i].Field < issues[j].Field
	})
}

// Fields lists the field paths of issues.
func Fields(issues []Issue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.Field)
	}
	return out
}

// Summary renders issues as a single human-readable line.
func Summary(issues []Issue) string {
	parts := make([]string, 0, len(issues))
	for _, issue := range issues {
		parts = append(parts, issue.Field+": "+issue.Message)
	}
	return strings.Join(parts, "; ")
}
