package transform

import (
	"encoding/json"
	"fmt"
)

const (
	sourceInvoiceSchemaFile = "schemas/source_invoice.schema.json"
	sourceReceiptSchemaFile = "schemas/source_receipt.schema.json"
)

// SourceInvoiceSchema is the target shape handed to the extraction service
// for invoice documents.
func SourceInvoiceSchema() (json.RawMessage, error) {
	return readSchema(sourceInvoiceSchemaFile)
}

// SourceReceiptSchema is the extraction target for receipt documents.
func SourceReceiptSchema() (json.RawMessage, error) {
	return readSchema(sourceReceiptSchemaFile)
}

func readSchema(name string) (json.RawMessage, error) {
	raw, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("transform: read schema %s: %w", name, err)
	}
	return json.RawMessage(raw), nil
}
