package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error categories. Stage handlers and stores wrap failures with
// one of these so the scheduler can decide between retry and terminal
// failure without parsing messages.
var (
	// ErrTransient marks failures worth retrying (network, rate limits,
	// provider hiccups).
	ErrTransient = errors.New("transient failure")

	// ErrValidation marks caller mistakes that retries cannot fix.
	ErrValidation = errors.New("validation failure")

	// ErrNotFound marks lookups for rows that do not exist.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration marks missing or invalid configuration.
	ErrConfiguration = errors.New("configuration failure")

	// ErrExternalService marks upstream generation or publish services
	// reporting a hard failure.
	ErrExternalService = errors.New("external service failure")
)

// Wrap annotates err with an operation name and a sentinel category.
func Wrap(err error, sentinel error, operation string, details ...string) error {
	if err == nil {
		return nil
	}
	detail := buildDetail(operation, details)
	if sentinel == nil {
		return fmt.Errorf("%s: %w", detail, err)
	}
	return fmt.Errorf("%s: %w: %w", detail, sentinel, err)
}

// Categorize returns err annotated with a sentinel without extra context.
func Categorize(err error, sentinel error) error {
	if err == nil || sentinel == nil {
		return err
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// IsRetryable reports whether err is safe to retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration) || errors.Is(err, ErrNotFound) {
		return false
	}
	return errors.Is(err, ErrTransient)
}

func buildDetail(operation string, details []string) string {
	parts := make([]string, 0, 1+len(details))
	if trimmed := strings.TrimSpace(operation); trimmed != "" {
		parts = append(parts, trimmed)
	}
	for _, detail := range details {
		if trimmed := strings.TrimSpace(detail); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return "operation failed"
	}
	return strings.Join(parts, " ")
}
