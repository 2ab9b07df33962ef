package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-ledger-sync/core"
)

type countingAdapter struct {
	calls  int
	status int
}

func (a *countingAdapter) Kind() string { return "rest" }

func (a *countingAdapter) Do(context.Context, core.TransportRequest) (core.TransportResponse, error) {
	a.calls++
	return core.TransportResponse{StatusCode: a.status, Headers: map[string]string{"Retry-After": "5"}}, nil
}

func TestThrottleAdapter_FailsFastAfter429(t *testing.T) {
	next := &countingAdapter{status: http.StatusTooManyRequests}
	policy := NewAdaptivePolicy(NewMemoryStateStore())
	now := time.Unix(1_700_000_000, 0).UTC()
	policy.Now = func() time.Time { return now }
	adapter := NewThrottleAdapter(next, policy, nil)
	req := core.TransportRequest{Method: http.MethodGet, URL: "https://quickbooks.api.intuit.com/v3/company/9130/query"}
	ctx := context.Background()

	res, err := adapter.Do(ctx, req)
	if err != nil || res.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 to pass through, res=%#v err=%v", res, err)
	}

	_, err = adapter.Do(ctx, req)
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error, got %v", err)
	}
	if next.calls != 1 {
		t.Fatalf("expected throttled call to skip the delegate, got %d calls", next.calls)
	}

	next.status = http.StatusOK
	now = now.Add(6 * time.Second)
	if _, err := adapter.Do(ctx, req); err != nil {
		t.Fatalf("expected call after retry-after, got %v", err)
	}
	if next.calls != 2 {
		t.Fatalf("expected delegate to be called again, got %d calls", next.calls)
	}
	if adapter.Kind() != "rest" {
		t.Fatalf("expected delegate kind, got %q", adapter.Kind())
	}
}
