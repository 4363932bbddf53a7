package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{
			name:   "returns empty when limit non-positive",
			input:  "hello world",
			limit:  0,
			expect: "",
		},
		{
			name:   "shorter than limit",
			input:  "hello",
			limit:  10,
			expect: "hello",
		},
		{
			name:   "counts runes not bytes",
			input:  "要員ご紹介の件",
			limit:  4,
			expect: "要員ご紹...",
		},
		{
			name:   "trims surrounding whitespace",
			input:  "  spaced  ",
			limit:  5,
			expect: "space...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}

func TestHeadAndTailRunes(t *testing.T) {
	t.Parallel()

	if got := HeadRunes("案件募集中です", 2); got != "案件" {
		t.Fatalf("unexpected head: %q", got)
	}
	if got := TailRunes("案件募集中です", 2); got != "です" {
		t.Fatalf("unexpected tail: %q", got)
	}
	if got := HeadRunes("abc", 10); got != "abc" {
		t.Fatalf("unexpected head for short input: %q", got)
	}
	if got := TailRunes("abc", 0); got != "" {
		t.Fatalf("expected empty tail, got %q", got)
	}
}

func TestWaitForHonoursContext(t *testing.T) {
	original := sleep
	release := make(chan struct{})
	sleep = func(time.Duration) { <-release }
	defer func() {
		close(release)
		sleep = original
	}()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("expected nil for zero duration, got %v", err)
	}
}
