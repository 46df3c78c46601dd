package middleware

import (
	"strings"
	"testing"
	"time"
)

func TestRedirectStateRoundTrip(t *testing.T) {
	SetJWTSecret("test-secret")

	state, err := SignRedirectState("/contracts/42", time.Minute)
	if err != nil {
		t.Fatalf("SignRedirectState: %v", err)
	}

	got, err := VerifyRedirectState(state)
	if err != nil {
		t.Fatalf("VerifyRedirectState: %v", err)
	}
	if got != "/contracts/42" {
		t.Errorf("redirect = %q, want /contracts/42", got)
	}
}

func TestRedirectStateDefaultsToDashboard(t *testing.T) {
	SetJWTSecret("test-secret")

	state, err := SignRedirectState("", time.Minute)
	if err != nil {
		t.Fatalf("SignRedirectState: %v", err)
	}
	got, err := VerifyRedirectState(state)
	if err != nil {
		t.Fatalf("VerifyRedirectState: %v", err)
	}
	if got != "/dashboard" {
		t.Errorf("redirect = %q, want /dashboard", got)
	}
}

func TestRedirectStateRejectsAbsolute(t *testing.T) {
	SetJWTSecret("test-secret")

	for _, redirect := range []string{"https://evil.example", "//evil.example", "evil"} {
		if _, err := SignRedirectState(redirect, time.Minute); err == nil {
			t.Errorf("SignRedirectState(%q) should be rejected", redirect)
		}
	}
}

func TestRedirectStateTamperDetected(t *testing.T) {
	SetJWTSecret("test-secret")

	state, err := SignRedirectState("/contracts/1", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	// Flip a character in the signature segment.
	parts := strings.Split(state, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	parts[2] = string(sig)

	if _, err := VerifyRedirectState(strings.Join(parts, ".")); err == nil {
		t.Fatal("tampered state should not verify")
	}
}

func TestRedirectStateExpires(t *testing.T) {
	SetJWTSecret("test-secret")

	state, err := SignRedirectState("/contracts/1", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyRedirectState(state); err == nil {
		t.Fatal("expired state should not verify")
	}
}
