package sqlstore

import (
	"fmt"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// idHandlers builds repository handlers for records keyed by a string uuid
// column named id.
func idHandlers[T any](id func(*T) *string) repository.ModelHandlers[*T] {
	return repository.ModelHandlers[*T]{
		NewRecord: func() *T {
			return new(T)
		},
		GetID: func(record *T) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(*id(record))
		},
		SetID: func(record *T, value uuid.UUID) {
			if record == nil {
				return
			}
			*id(record) = value.String()
		},
		GetIdentifier: func() string {
			return "id"
		},
		GetIdentifierValue: func(record *T) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(*id(record))
		},
	}
}

func integrationHandlers() repository.ModelHandlers[*integrationRecord] {
	return idHandlers(func(r *integrationRecord) *string { return &r.ID })
}

func customerHandlers() repository.ModelHandlers[*customerRecord] {
	return idHandlers(func(r *customerRecord) *string { return &r.ID })
}

func vendorHandlers() repository.ModelHandlers[*vendorRecord] {
	return idHandlers(func(r *vendorRecord) *string { return &r.ID })
}

func documentHandlers() repository.ModelHandlers[*documentRecord] {
	return idHandlers(func(r *documentRecord) *string { return &r.ID })
}

func mappingHandlers() repository.ModelHandlers[*entityMappingRecord] {
	return idHandlers(func(r *entityMappingRecord) *string { return &r.ID })
}

func syncRunHandlers() repository.ModelHandlers[*syncRunRecord] {
	return idHandlers(func(r *syncRunRecord) *string { return &r.ID })
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func newRepository[T any](db *bun.DB, handlers repository.ModelHandlers[*T], name string) (repository.Repository[*T], error) {
	repo := repository.NewRepository[*T](db, handlers)
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid %s repository wiring: %w", name, err)
		}
	}
	return repo, nil
}
