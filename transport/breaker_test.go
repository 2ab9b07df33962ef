package transport

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/sony/gobreaker"

	"github.com/goliatone/go-ledger-sync/core"
)

type scriptedAdapter struct {
	calls     int
	responses []core.TransportResponse
	errs      []error
}

func (a *scriptedAdapter) Kind() string { return KindREST }

func (a *scriptedAdapter) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	index := a.calls
	a.calls++
	if index < len(a.errs) && a.errs[index] != nil {
		return core.TransportResponse{}, a.errs[index]
	}
	if index < len(a.responses) {
		return a.responses[index], nil
	}
	return core.TransportResponse{StatusCode: http.StatusOK}, nil
}

func TestBreakerAdapterOpensAfterConsecutiveServerErrors(t *testing.T) {
	next := &scriptedAdapter{responses: []core.TransportResponse{
		{StatusCode: http.StatusInternalServerError},
		{StatusCode: http.StatusBadGateway},
	}}
	adapter := NewBreakerAdapter("qbo", next, core.BreakerConfig{ConsecutiveFailures: 2, Timeout: time.Minute}, nil)

	for i := 0; i < 2; i++ {
		res, err := adapter.Do(context.Background(), core.TransportRequest{URL: "http://example.test"})
		if err != nil {
			t.Fatalf("expected server error response to be returned, got %v", err)
		}
		if res.StatusCode < 500 {
			t.Fatalf("unexpected status %d", res.StatusCode)
		}
	}
	if adapter.State() != gobreaker.StateOpen {
		t.Fatalf("expected breaker to open, got %s", adapter.State())
	}

	_, err := adapter.Do(context.Background(), core.TransportRequest{URL: "http://example.test"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected open breaker rejection, got %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("expected open breaker to skip the delegate, calls=%d", next.calls)
	}
}

func TestBreakerAdapterIgnoresClientErrors(t *testing.T) {
	next := &scriptedAdapter{responses: []core.TransportResponse{
		{StatusCode: http.StatusBadRequest},
		{StatusCode: http.StatusUnauthorized},
		{StatusCode: http.StatusBadRequest},
	}}
	adapter := NewBreakerAdapter("qbo", next, core.BreakerConfig{ConsecutiveFailures: 2}, nil)
	for i := 0; i < 3; i++ {
		if _, err := adapter.Do(context.Background(), core.TransportRequest{URL: "http://example.test"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if adapter.State() != gobreaker.StateClosed {
		t.Fatalf("expected breaker to stay closed, got %s", adapter.State())
	}
}

func TestBreakerAdapterPassesTransportErrors(t *testing.T) {
	failure := errors.New("dial tcp: refused")
	adapter := NewBreakerAdapter("qbo", &scriptedAdapter{errs: []error{failure}}, core.BreakerConfig{}, nil)
	if _, err := adapter.Do(context.Background(), core.TransportRequest{URL: "http://example.test"}); !errors.Is(err, failure) {
		t.Fatalf("expected delegate error, got %v", err)
	}
}
