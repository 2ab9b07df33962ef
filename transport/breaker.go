package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/sony/gobreaker"

	"github.com/goliatone/go-ledger-sync/core"
)

// errServerStatus marks a 5xx response as a breaker failure while the
// response itself is still handed back to the caller.
var errServerStatus = errors.New("transport: server error status")

// BreakerAdapter guards another adapter with a circuit breaker. Transport
// failures and 5xx responses count against the breaker; 4xx responses do not.
type BreakerAdapter struct {
	next    core.TransportAdapter
	breaker *gobreaker.CircuitBreaker
	name    string
}

func NewBreakerAdapter(name string, next core.TransportAdapter, cfg core.BreakerConfig, logger glog.Logger) *BreakerAdapter {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "ledgersync-transport"
	}
	logger = glog.Ensure(logger)
	failures := cfg.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(breakerName string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", breakerName, "from", from.String(), "to", to.String())
		},
	}
	return &BreakerAdapter{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker(settings),
		name:    name,
	}
}

func (a *BreakerAdapter) Kind() string {
	if a == nil || a.next == nil {
		return KindREST
	}
	return a.next.Kind()
}

func (a *BreakerAdapter) State() gobreaker.State {
	return a.breaker.State()
}

func (a *BreakerAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.next == nil {
		return core.TransportResponse{}, transportError(
			"transport: breaker adapter requires a delegate",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			map[string]any{"adapter": "breaker"},
		)
	}
	result, err := a.breaker.Execute(func() (interface{}, error) {
		res, err := a.next.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if res.StatusCode >= http.StatusInternalServerError {
			return res, fmt.Errorf("%w: %d", errServerStatus, res.StatusCode)
		}
		return res, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return core.TransportResponse{}, transportWrapError(
			err,
			goerrors.CategoryExternal,
			"transport: circuit breaker rejected request",
			http.StatusServiceUnavailable,
			map[string]any{"breaker": a.name, "state": a.breaker.State().String()},
		)
	}
	if errors.Is(err, errServerStatus) {
		res, _ := result.(core.TransportResponse)
		return res, nil
	}
	if err != nil {
		return core.TransportResponse{}, err
	}
	res, _ := result.(core.TransportResponse)
	return res, nil
}

var _ core.TransportAdapter = (*BreakerAdapter)(nil)
