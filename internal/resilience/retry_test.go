package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("webhook unavailable"), 503)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return errors.New("unique constraint violated")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call (no retry for non-transient), got %d", calls)
	}
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxAttempts: 5, InitialBackoff: 50 * time.Millisecond, MaxBackoff: 100 * time.Millisecond}

	var calls int
	err := Do(ctx, cfg, func(_ context.Context) error {
		calls++
		if calls == 2 {
			cancel()
		}
		return NewTransientError(errors.New("fail"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 2 {
		t.Errorf("expected 2 calls before cancel stopped retries, got %d", calls)
	}
}

func TestDo_CustomShouldRetryAndOnRetry(t *testing.T) {
	var calls int
	var retried []int
	cfg := fastRetry(4)
	cfg.ShouldRetry = func(error) bool { return true }
	cfg.OnRetry = func(attempt int, _ error) { retried = append(retried, attempt) }

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return errors.New("anything")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	if len(retried) != 3 || retried[0] != 1 || retried[2] != 3 {
		t.Errorf("unexpected retry callbacks: %v", retried)
	}
}

func TestDoVal_ReturnsValue(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, NewTransientError(errors.New("retry"), 429)
		}
		return 42, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}
}

func TestDoVal_ReturnsZeroOnFailure(t *testing.T) {
	val, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (string, error) {
		return "partial", errors.New("permanent")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if val != "" {
		t.Errorf("expected zero value, got %q", val)
	}
}

func TestComputeBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for attempt, w := range want {
		if got := computeBackoff(attempt, cfg); got != w {
			t.Errorf("attempt %d: expected %s, got %s", attempt, w, got)
		}
	}

	cfg.JitterFraction = 0.5
	for i := 0; i < 50; i++ {
		got := computeBackoff(0, cfg)
		if got < 50*time.Millisecond || got > 150*time.Millisecond {
			t.Fatalf("jittered delay %s outside ±50%%", got)
		}
	}
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(5, 250)
	if cfg.MaxAttempts != 5 || cfg.InitialBackoff != 250*time.Millisecond {
		t.Errorf("unexpected config: %+v", cfg)
	}

	def := FromRetryConfig(0, 0)
	if def.MaxAttempts != 3 || def.InitialBackoff != 100*time.Millisecond {
		t.Errorf("expected defaults, got %+v", def)
	}
}

func TestRetryLogger(t *testing.T) {
	fn := RetryLogger("ledger", "append")
	fn(1, errors.New("database is locked"))
}
