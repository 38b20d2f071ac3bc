package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

func TestExecuteMakesSingleAttempt(t *testing.T) {
	exec := NewExecutor(Config{BreakerEnabled: false})

	attempts := 0
	err := exec.Execute(context.Background(), "ollama_embed", func(context.Context) error {
		attempts++
		return errors.New("model offline")
	}, func(error) ErrorClassification {
		return Transient
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly one attempt, got %d", attempts)
	}
}

func TestExecuteSkipsCanceledContext(t *testing.T) {
	exec := NewExecutor(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := exec.Execute(ctx, "rerank", func(context.Context) error {
		t.Fatalf("operation must not run after cancellation")
		return nil
	}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Config{
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      time.Minute,
		BreakerHalfOpenMaxCalls: 1,
	})

	for i := 0; i < 2; i++ {
		_ = exec.Execute(context.Background(), "qdrant_search:primary_sources", func(context.Context) error {
			return errors.New("shard down")
		}, nil)
	}

	err := exec.Execute(context.Background(), "qdrant_search:primary_sources", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}

	if err := exec.Execute(context.Background(), "qdrant_search:datasets", func(context.Context) error {
		return nil
	}, nil); err != nil {
		t.Fatalf("breakers are per operation, got %v", err)
	}
}

func TestIgnoredFailuresDoNotTripBreaker(t *testing.T) {
	exec := NewExecutor(Config{
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 0.1,
		BreakerOpenTimeout:  time.Minute,
	})

	errBadRequest := errors.New("bad request")
	for i := 0; i < 3; i++ {
		err := exec.Execute(context.Background(), "rerank", func(context.Context) error {
			return errBadRequest
		}, func(error) ErrorClassification { return Ignored })
		if !errors.Is(err, errBadRequest) {
			t.Fatalf("attempt %d: expected the caller's error, got %v", i, err)
		}
	}
}

func TestExecuteAppliesCallTimeout(t *testing.T) {
	exec := NewExecutor(Config{CallTimeout: 20 * time.Millisecond, BreakerEnabled: false})

	err := exec.Execute(context.Background(), "qdrant_search:primary_sources", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if !errors.Is(err, context.DeadlineExceeded) || !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("expected call timeout wrapping deadline exceeded, got %v", err)
	}
}

func TestExecuteLeavesCallerDeadlineUnmarked(t *testing.T) {
	exec := NewExecutor(Config{CallTimeout: time.Second, BreakerEnabled: false})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := exec.Execute(ctx, "ollama_draft", func(callCtx context.Context) error {
		<-callCtx.Done()
		return callCtx.Err()
	}, nil)
	if errors.Is(err, ErrCallTimeout) {
		t.Fatalf("caller deadline must not be reported as a call timeout: %v", err)
	}
}

func TestCallReturnsValue(t *testing.T) {
	exec := NewExecutor(DefaultConfig())

	got, err := Call(context.Background(), exec, "ollama_embed", func(context.Context) ([]float32, error) {
		return []float32{0.5}, nil
	}, nil)
	if err != nil || len(got) != 1 || got[0] != 0.5 {
		t.Fatalf("unexpected result %v, %v", got, err)
	}

	got, err = Call(context.Background(), exec, "ollama_embed", func(context.Context) ([]float32, error) {
		return []float32{0.1}, errors.New("partial")
	}, nil)
	if err == nil || got != nil {
		t.Fatalf("expected zero value on error, got %v, %v", got, err)
	}
}

func TestBreakerStateChangesAreReported(t *testing.T) {
	var transitions []string
	exec := NewExecutor(Config{
		BreakerEnabled:      true,
		BreakerMinRequests:  1,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  time.Minute,
		OnStateChange: func(operation, from, to string) {
			transitions = append(transitions, operation+":"+from+"->"+to)
		},
	})

	_ = exec.Execute(context.Background(), "rerank", func(context.Context) error {
		return errors.New("down")
	}, nil)
	if len(transitions) != 1 || transitions[0] != "rerank:closed->open" {
		t.Fatalf("unexpected transitions %v", transitions)
	}
}

func TestNormalizeFillsBreakerDefaults(t *testing.T) {
	cfg := Config{CallTimeout: -time.Second, BreakerFailureRatio: 2}.normalize()
	def := DefaultConfig()
	if cfg.CallTimeout != 0 || cfg.BreakerFailureRatio != def.BreakerFailureRatio || cfg.BreakerMinRequests != def.BreakerMinRequests {
		t.Fatalf("unexpected normalized config %+v", cfg)
	}
	if got := def.WithTimeout(3 * time.Second); got.CallTimeout != 3*time.Second || !got.BreakerEnabled {
		t.Fatalf("WithTimeout must keep breaker settings, got %+v", got)
	}
}
