package transform

import (
	"fmt"
	"strings"
)

// MissingFieldsError reports a source document that lacks the sections a
// transform needs. It is user-data shaped and never a programming error.
type MissingFieldsError struct {
	Document string
	Fields   []string
}

func (e *MissingFieldsError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("transform: %s is missing %s", e.Document, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Issues() []Issue {
	if e == nil {
		return nil
	}
	out := make([]Issue, 0, len(e.Fields))
	for _, field := range e.Fields {
		out = append(out, Issue{
			Field:   "/" + field,
			Code:    "required",
			Message: fmt.Sprintf("source %s requires %s", e.Document, field),
		})
	}
	return out
}
