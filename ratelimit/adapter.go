package ratelimit

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-ledger-sync/core"
)

// ThrottleAdapter consults an AdaptivePolicy around every call made through
// next. A throttled realm fails fast with ThrottledError.
type ThrottleAdapter struct {
	next   core.TransportAdapter
	policy *AdaptivePolicy
	logger glog.Logger
}

func NewThrottleAdapter(next core.TransportAdapter, policy *AdaptivePolicy, logger glog.Logger) *ThrottleAdapter {
	if policy == nil {
		policy = NewAdaptivePolicy(NewMemoryStateStore())
	}
	return &ThrottleAdapter{next: next, policy: policy, logger: glog.Ensure(logger)}
}

func (a *ThrottleAdapter) Kind() string {
	if a == nil || a.next == nil {
		return ""
	}
	return a.next.Kind()
}

func (a *ThrottleAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	key := KeyForURL(req.URL)
	if err := a.policy.BeforeCall(ctx, key); err != nil {
		return core.TransportResponse{}, err
	}
	res, err := a.next.Do(ctx, req)
	if err != nil {
		return res, err
	}
	if recordErr := a.policy.AfterCall(ctx, key, res); recordErr != nil {
		a.logger.Warn("failed to record rate limit state", "realm_id", key.Realm, "error", recordErr)
	}
	return res, nil
}

var _ core.TransportAdapter = (*ThrottleAdapter)(nil)
