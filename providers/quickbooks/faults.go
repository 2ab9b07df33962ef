package quickbooks

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-ledger-sync/core"
)

const staleObjectCode = "5010"

type faultEnvelope struct {
	Fault *fault `json:"Fault"`
}

type fault struct {
	Type   string        `json:"type"`
	Errors []faultDetail `json:"Error"`
}

type faultDetail struct {
	Message string `json:"Message"`
	Detail  string `json:"Detail"`
	Code    string `json:"code"`
	Element string `json:"element"`
}

// ProviderFault is the decoded fault body of a failed provider call.
type ProviderFault struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
	Detail     string
}

func (f *ProviderFault) Error() string {
	if f == nil {
		return ""
	}
	parts := []string{}
	if f.Code != "" {
		parts = append(parts, "code "+f.Code)
	}
	if f.Message != "" {
		parts = append(parts, f.Message)
	}
	if f.Detail != "" && f.Detail != f.Message {
		parts = append(parts, f.Detail)
	}
	if len(parts) == 0 {
		return fmt.Sprintf("quickbooks: status %d", f.StatusCode)
	}
	return "quickbooks: " + strings.Join(parts, ": ")
}

func decodeFault(status int, body []byte) *ProviderFault {
	out := &ProviderFault{StatusCode: status}
	envelope := faultEnvelope{}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Fault == nil {
		out.Message = strings.TrimSpace(truncate(string(body), 256))
		return out
	}
	out.Type = envelope.Fault.Type
	if len(envelope.Fault.Errors) > 0 {
		first := envelope.Fault.Errors[0]
		out.Code = strings.TrimSpace(first.Code)
		out.Message = strings.TrimSpace(first.Message)
		out.Detail = strings.TrimSpace(first.Detail)
	}
	return out
}

// bodyFault reports a fault carried in a 200 response, which the provider
// does for some query errors.
func bodyFault(status int, body []byte) *ProviderFault {
	envelope := faultEnvelope{}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Fault == nil {
		return nil
	}
	return decodeFault(status, body)
}

func (f *ProviderFault) stale() bool {
	if f == nil {
		return false
	}
	if f.Code == staleObjectCode {
		return true
	}
	text := strings.ToLower(f.Message + " " + f.Detail)
	return strings.Contains(text, "stale object")
}

func (f *ProviderFault) authentication() bool {
	if f == nil {
		return false
	}
	return f.StatusCode == http.StatusUnauthorized || strings.EqualFold(f.Type, "AUTHENTICATION")
}

// classify maps a fault onto the core error taxonomy.
func classify(f *ProviderFault, operation string, kind string, externalID string, syncToken string) error {
	switch {
	case f.authentication():
		return fmt.Errorf("%w: %s", core.ErrAuthenticationExpired, f.Error())
	case f.stale():
		return &core.VersionConflictError{
			EntityKind: kind,
			ExternalID: externalID,
			SyncToken:  syncToken,
			Cause:      f,
		}
	default:
		return &core.ExternalServiceError{
			Operation:  operation,
			EntityKind: kind,
			ExternalID: externalID,
			StatusCode: f.StatusCode,
			Cause:      f,
		}
	}
}

func truncate(value string, max int) string {
	if len(value) <= max {
		return value
	}
	return value[:max]
}
