package services_test

import (
	"errors"
	"strings"
	"testing"

	"paddock/internal/services"
)

func TestWrapPreservesSentinel(t *testing.T) {
	base := errors.New("connection reset")
	wrapped := services.Wrap(base, services.ErrTransient, "fetch clip status", "provider huggingface")

	if !errors.Is(wrapped, services.ErrTransient) {
		t.Fatalf("expected wrapped error to match ErrTransient: %v", wrapped)
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("expected wrapped error to match base: %v", wrapped)
	}
	if !strings.Contains(wrapped.Error(), "fetch clip status") {
		t.Fatalf("expected operation in message, got %q", wrapped.Error())
	}
}

func TestWrapNilError(t *testing.T) {
	if err := services.Wrap(nil, services.ErrTransient, "noop"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"transient", services.Wrap(errors.New("timeout"), services.ErrTransient, "poll"), true},
		{"validation", services.Wrap(errors.New("bad input"), services.ErrValidation, "parse"), false},
		{"configuration", services.Categorize(errors.New("missing key"), services.ErrConfiguration), false},
		{"not found", services.Categorize(errors.New("no row"), services.ErrNotFound), false},
		{"plain", errors.New("unknown"), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestCategorizeIdempotent(t *testing.T) {
	err := services.Categorize(errors.New("boom"), services.ErrTransient)
	again := services.Categorize(err, services.ErrTransient)
	if again != err {
		t.Fatalf("expected categorize to be a no-op for already tagged errors")
	}
}
