package control

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.CompletionTimeout != 60*time.Second {
		t.Fatalf("unexpected timeout %s", p.CompletionTimeout)
	}
	if p.MaxRetries != 2 {
		t.Fatalf("unexpected max retries %d", p.MaxRetries)
	}
}

func TestWithCompletionTimeout(t *testing.T) {
	ctx, cancel := WithCompletionTimeout(context.Background(), Policy{CompletionTimeout: time.Second})
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("expected deadline")
	}

	ctx2, cancel2 := WithCompletionTimeout(context.Background(), Policy{})
	defer cancel2()
	if _, ok := ctx2.Deadline(); ok {
		t.Fatal("did not expect deadline for zero timeout")
	}
}

func TestCheckTimeout(t *testing.T) {
	p := Policy{CompletionTimeout: 2 * time.Second}
	start := time.Unix(100, 0)

	if err := CheckTimeout(p, start, start.Add(time.Second), nil); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	other := errors.New("boom")
	if err := CheckTimeout(p, start, start.Add(time.Second), other); err != other {
		t.Fatalf("expected passthrough, got %v", err)
	}

	err := CheckTimeout(p, start, start.Add(3*time.Second), fmt.Errorf("openai: %w", context.DeadlineExceeded))
	var limitErr *LimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LimitError, got %v", err)
	}
	if limitErr.Type != LimitCompletionTimeout || limitErr.Value != 3 || limitErr.Threshold != 2 {
		t.Fatalf("unexpected limit error: %+v", limitErr)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatal("expected deadline cause to be preserved")
	}
}

func TestRetryBackoffSeconds(t *testing.T) {
	cases := []struct {
		attempt int
		want    int
	}{
		{0, 0},
		{1, 1},
		{2, 2},
		{3, 4},
		{6, 32},
		{7, 60},
		{8, 60},
		{64, 60},
	}
	for _, c := range cases {
		got := RetryBackoffSeconds(c.attempt)
		if got != c.want {
			t.Fatalf("attempt=%d got=%d want=%d", c.attempt, got, c.want)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	p := Policy{MaxRetries: 2}
	if !ShouldRetry(p, 1) {
		t.Fatal("attempt 1 should retry")
	}
	if !ShouldRetry(p, 2) {
		t.Fatal("attempt 2 should retry")
	}
	if ShouldRetry(p, 3) {
		t.Fatal("attempt 3 should not retry")
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ClassUnknown},
		{context.DeadlineExceeded, ClassTimeout},
		{fmt.Errorf("wrapped: %w", context.Canceled), ClassCanceled},
		{errors.New("telegram sendMessage failed"), ClassCommandSource},
		{errors.New("openai chat completion failed: 500"), ClassProvider},
		{errors.New("anthropic messages failed"), ClassProvider},
		{errors.New("quote lookup ZZZZ: unknown ticker"), ClassQuote},
		{errors.New("sqlite: database is locked"), ClassDB},
		{errors.New("weird"), ClassUnknown},
	}
	for _, c := range cases {
		if got := ClassifyError(c.err); got != c.want {
			t.Fatalf("ClassifyError(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}
