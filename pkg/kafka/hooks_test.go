package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	applogger "DeltaStream/pkg/logger"

	"github.com/segmentio/kafka-go"
)

func hookTestLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	lgr, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return lgr
}

func TestHookChainThreadsContextInOrder(t *testing.T) {
	var order []string

	first := HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			order = append(order, "first")
			return WithTraceID(ctx, "abc"), km, data, nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) {
			order = append(order, "after-first")
		},
	}
	second := HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			order = append(order, "second")
			if id, _ := ctx.Value(CtxTraceID).(string); id != "abc" {
				t.Fatalf("trace id not threaded through chain, got %q", id)
			}
			return ctx, km, data, nil
		},
		After: func(context.Context, string, kafka.Message, []byte, error) {
			order = append(order, "after-second")
		},
	}

	chain := NewHookChain(first, nil, second)
	ctx, _, _, err := chain.BeforeHandle(context.Background(), "market.underlying", kafka.Message{}, nil)
	if err != nil {
		t.Fatalf("before: %v", err)
	}
	chain.AfterHandle(ctx, "market.underlying", kafka.Message{}, nil, nil)

	want := []string{"first", "second", "after-second", "after-first"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestHookChainBeforeErrorNotifiesAllHooks(t *testing.T) {
	boom := errors.New("reject")
	var notified int

	rejecting := HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			return ctx, km, data, boom
		},
		Err: func(context.Context, string, kafka.Message, []byte, error) { notified++ },
	}
	observer := HookFuncs{
		Before: func(ctx context.Context, topic string, km kafka.Message, data []byte) (context.Context, kafka.Message, []byte, error) {
			t.Fatal("hook after a failed BeforeHandle must not run")
			return ctx, km, data, nil
		},
		Err: func(context.Context, string, kafka.Message, []byte, error) { notified++ },
	}

	chain := NewHookChain(rejecting, observer)
	_, _, _, err := chain.BeforeHandle(context.Background(), "market.option_chain", kafka.Message{}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected rejection error, got %v", err)
	}
	if notified != 2 {
		t.Fatalf("expected OnError on both hooks, got %d", notified)
	}
}

func TestHookChainRecoversPanickingHook(t *testing.T) {
	panicking := HookFuncs{
		Before: func(context.Context, string, kafka.Message, []byte) (context.Context, kafka.Message, []byte, error) {
			panic("bad hook")
		},
	}

	chain := NewHookChain(panicking)
	_, _, _, err := chain.BeforeHandle(context.Background(), "market.underlying", kafka.Message{}, nil)

	var hookErr *HookError
	if !errors.As(err, &hookErr) || hookErr.Code != "ERR_PANIC" {
		t.Fatalf("expected ERR_PANIC hook error, got %v", err)
	}

	// AfterHandle and OnError must also swallow panics.
	chain.AfterHandle(context.Background(), "t", kafka.Message{}, nil, nil)
	chain.OnError(context.Background(), "t", kafka.Message{}, nil, err)
}

func TestTraceLogHookStampsContext(t *testing.T) {
	hook := NewTraceLogHook(hookTestLogger(t), time.Second)

	msg := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("req-7")}}}
	ctx, _, _, err := hook.BeforeHandle(context.Background(), "market.option_quote", msg, []byte("{}"))
	if err != nil {
		t.Fatalf("before: %v", err)
	}

	if _, ok := ctx.Value(CtxStartTime).(time.Time); !ok {
		t.Fatal("start time not stamped on context")
	}
	if id, _ := ctx.Value(CtxTraceID).(string); id != "req-7" {
		t.Fatalf("expected trace id req-7, got %q", id)
	}

	// Fast handling and errors must not panic with a stamped context.
	hook.AfterHandle(ctx, "market.option_quote", msg, nil, nil)
	hook.OnError(ctx, "market.option_quote", msg, nil, errors.New("decode"))
}

func TestExtractTraceIDMissingHeader(t *testing.T) {
	if got := ExtractTraceID(kafka.Message{}); got != "" {
		t.Fatalf("expected empty trace id, got %q", got)
	}
}
