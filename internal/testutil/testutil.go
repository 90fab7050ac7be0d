// Package testutil provides testing utilities for connpool
package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// AssertBlocked fails the test if ch delivers a value within d. It is used
// to check that an Acquire running in another goroutine is still waiting.
func AssertBlocked[T any](t *testing.T, ch <-chan T, d time.Duration, msg string) {
	t.Helper()

	select {
	case v := <-ch:
		t.Fatalf("expected to stay blocked for %v, got %v: %s", d, v, msg)
	case <-time.After(d):
	}
}

// Receive waits up to timeout for a value from ch.
func Receive[T any](t *testing.T, ch <-chan T, timeout time.Duration, msg string) T {
	t.Helper()

	select {
	case v := <-ch:
		return v
	case <-time.After(timeout):
		t.Fatalf("nothing received within %v: %s", timeout, msg)
	}
	var zero T
	return zero
}

// IntegrationTest skips the test in short mode or when the environment
// variable naming the backend is unset, and returns its value.
func IntegrationTest(t *testing.T, envVar string) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	v := os.Getenv(envVar)
	if v == "" {
		t.Skipf("Skipping integration test: %s not set", envVar)
	}
	return v
}
