package core

import "testing"

func TestNormalizeDocumentStatus(t *testing.T) {
	cases := map[string]DocumentStatus{
		"processed":        DocumentProcessed,
		" MissingData ":    DocumentMissingData,
		"missing_data":     DocumentMissingData,
		"error":            DocumentProcessingError,
		"PROCESSING_ERROR": DocumentProcessingError,
		"Inbox":            DocumentInbox,
		"Archived":         DocumentStatus("Archived"),
	}
	for input, want := range cases {
		if got := NormalizeDocumentStatus(input); got != want {
			t.Fatalf("NormalizeDocumentStatus(%q) = %q, want %q", input, got, want)
		}
	}
	if !DocumentMissingData.Failure() || !DocumentProcessingError.Failure() || DocumentProcessed.Failure() {
		t.Fatalf("unexpected failure classification")
	}
}

func TestParseEntityType(t *testing.T) {
	kind, err := ParseEntityType(" customer ")
	if err != nil || kind != EntityTypeCustomer {
		t.Fatalf("expected Customer, got %q (%v)", kind, err)
	}
	if _, err := ParseEntityType("Bill"); err == nil {
		t.Fatalf("expected unknown entity type to fail")
	}
}

func TestMappingLookupValidate(t *testing.T) {
	base := MappingLookup{TenantID: "t1", IntegrationID: "i1", EntityType: EntityTypeInvoice}

	byExternal := base
	byExternal.ExternalID = "130"
	if err := byExternal.Validate(); err != nil {
		t.Fatalf("expected external lookup to be valid: %v", err)
	}

	both := byExternal
	both.LocalID = "local-1"
	if err := both.Validate(); err == nil {
		t.Fatalf("expected lookup with both ids to fail")
	}
	if err := base.Validate(); err == nil {
		t.Fatalf("expected lookup without ids to fail")
	}

	badKind := byExternal
	badKind.EntityType = "Bill"
	if err := badKind.Validate(); err == nil {
		t.Fatalf("expected invalid entity type to fail")
	}
}

func TestSyncReportCountsPerKind(t *testing.T) {
	report := NewSyncReport("run-1")
	report.ensure(EntityTypeVendor)
	report.record(EntityTypeCustomer, true)
	report.record(EntityTypeCustomer, false)
	report.record(EntityTypeCustomer, true)

	customers := report.Kinds[EntityTypeCustomer]
	if customers.Processed != 3 || customers.Created != 2 || customers.Updated != 1 {
		t.Fatalf("unexpected customer counts: %+v", customers)
	}
	if _, ok := report.Kinds[EntityTypeVendor]; !ok {
		t.Fatalf("expected ensured vendor entry")
	}
}
