package gtest

import (
	"testing"
	"time"
)

// ScaledDuration is the base wait used by the *Soon helpers.
// It is a variable so that slow CI environments may raise it.
var ScaledDuration = 500 * time.Millisecond

// ReceiveSoon receives a value from ch,
// failing the test if no value arrives within ScaledDuration.
func ReceiveSoon[T any](t testing.TB, ch <-chan T) T {
	t.Helper()

	timer := time.NewTimer(ScaledDuration)
	defer timer.Stop()

	select {
	case v := <-ch:
		return v
	case <-timer.C:
		t.Fatalf("no value received within %s", ScaledDuration)
	}

	panic("unreachable")
}

// SendSoon sends v on ch,
// failing the test if the send does not complete within ScaledDuration.
func SendSoon[T any](t testing.TB, ch chan<- T, v T) {
	t.Helper()

	timer := time.NewTimer(ScaledDuration)
	defer timer.Stop()

	select {
	case ch <- v:
		// Okay.
	case <-timer.C:
		t.Fatalf("value not sent within %s", ScaledDuration)
	}
}

// NotSending asserts that ch has no value ready to be received
// after a short delay.
func NotSending[T any](t testing.TB, ch <-chan T) {
	t.Helper()

	timer := time.NewTimer(ScaledDuration / 20)
	defer timer.Stop()

	select {
	case v := <-ch:
		t.Fatalf("expected no value, got %v", v)
	case <-timer.C:
		// Okay.
	}
}
