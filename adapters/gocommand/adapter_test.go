package gocommand

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

type pingMessage struct {
	ID string
}

func (pingMessage) Type() string { return "ledgersync.test.ping" }

type echoMessage struct {
	Value string
}

func (echoMessage) Type() string { return "ledgersync.test.echo" }

type resultMessage struct{}

func (resultMessage) Type() string { return "ledgersync.test.result" }

func TestRegisterDispatchesToCommand(t *testing.T) {
	bus := NewBus(command.NewRegistry())
	var got []string
	sub, err := Register(bus, command.CommandFunc[pingMessage](func(_ context.Context, msg pingMessage) error {
		got = append(got, msg.ID)
		return nil
	}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer sub.Unsubscribe()
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if err := Dispatch(context.Background(), pingMessage{ID: "m1"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(got) != 1 || got[0] != "m1" {
		t.Fatalf("expected one execution with m1, got %v", got)
	}
}

func TestRegisterQueryReturnsResult(t *testing.T) {
	bus := NewBus(nil)
	sub, err := RegisterQuery(bus, command.QueryFunc[echoMessage, string](func(_ context.Context, msg echoMessage) (string, error) {
		return "echo:" + msg.Value, nil
	}))
	if err != nil {
		t.Fatalf("register query: %v", err)
	}
	defer sub.Unsubscribe()

	out, err := Query[echoMessage, string](context.Background(), echoMessage{Value: "hi"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if out != "echo:hi" {
		t.Fatalf("unexpected query result %q", out)
	}
}

func TestDispatchWithResultKeepsPartialResultOnError(t *testing.T) {
	bus := NewBus(nil)
	boom := errors.New("boom")
	sub, err := Register(bus, command.CommandFunc[resultMessage](func(ctx context.Context, _ resultMessage) error {
		if collector := command.ResultFromContext[string](ctx); collector != nil {
			collector.Store("partial")
		}
		return boom
	}))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer sub.Unsubscribe()

	out, err := DispatchWithResult[resultMessage, string](context.Background(), resultMessage{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if out != "partial" {
		t.Fatalf("expected partial result, got %q", out)
	}
}

func TestMirrorToQueue(t *testing.T) {
	bus := NewBus(command.NewRegistry())
	queueRegistry := jobqueuecommand.NewRegistry()
	if err := bus.MirrorToQueue(queueRegistry); err != nil {
		t.Fatalf("mirror to queue: %v", err)
	}
	sub, err := Register(bus, command.CommandFunc[pingMessage](func(context.Context, pingMessage) error { return nil }))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	defer sub.Unsubscribe()
	if err := bus.Initialize(); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if _, ok := queueRegistry.Get("ledgersync.test.ping"); !ok {
		t.Fatalf("expected command to be mirrored into queue registry")
	}
}

func TestNilBusFails(t *testing.T) {
	var bus *Bus
	if _, err := Register(bus, command.CommandFunc[pingMessage](func(context.Context, pingMessage) error { return nil })); err == nil {
		t.Fatalf("expected nil bus to fail")
	}
	if bus.Registry() != nil {
		t.Fatalf("expected nil registry from nil bus")
	}
	if err := NewBus(nil).MirrorToQueue(nil); err == nil {
		t.Fatalf("expected nil queue registry to fail")
	}
}
