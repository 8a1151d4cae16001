package model

import (
	"testing"
)

func TestCanTransitionTo(t *testing.T) {
	cases := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"pending to verified", PaymentStatusPending, PaymentStatusVerified, true},
		{"legacy pending to verified", PaymentStatusLegacyPending, PaymentStatusVerified, true},
		{"verified to submitted", PaymentStatusVerified, PaymentStatusSubmitted, true},
		{"re-verify allowed", PaymentStatusVerified, PaymentStatusVerified, true},
		{"pending cannot skip to submitted", PaymentStatusPending, PaymentStatusSubmitted, false},
		{"submitted is terminal", PaymentStatusSubmitted, PaymentStatusVerified, false},
		{"submitted cannot repeat", PaymentStatusSubmitted, PaymentStatusSubmitted, false},
		{"no backwards transition", PaymentStatusVerified, PaymentStatusPending, false},
		{"unknown status", "GARBAGE", PaymentStatusVerified, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanTransitionTo(tc.from, tc.to); got != tc.want {
				t.Fatalf("CanTransitionTo(%q, %q) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestEffectiveStatus(t *testing.T) {
	cases := []struct {
		status string
		want   string
	}{
		{"", PaymentStatusLegacyPending},
		{PaymentStatusLegacyPending, PaymentStatusLegacyPending},
		{PaymentStatusPending, PaymentStatusPending},
		{PaymentStatusVerified, PaymentStatusVerified},
		{PaymentStatusSubmitted, PaymentStatusSubmitted},
	}
	for _, tc := range cases {
		p := &Payment{Status: tc.status}
		if got := p.EffectiveStatus(); got != tc.want {
			t.Errorf("EffectiveStatus(%q) = %q, want %q", tc.status, got, tc.want)
		}
	}

	// 空状态的历史行要能走进审核转移
	legacy := &Payment{Status: ""}
	if !CanTransitionTo(legacy.EffectiveStatus(), PaymentStatusVerified) {
		t.Fatal("legacy empty-status row must be verifiable")
	}
}

func TestAccountRole(t *testing.T) {
	customer := &Account{IsStaff: false}
	if customer.Role() != RoleCustomer {
		t.Fatalf("expected customer role, got %s", customer.Role())
	}

	staff := &Account{IsStaff: true}
	if staff.Role() != RoleStaff {
		t.Fatalf("expected staff role, got %s", staff.Role())
	}
}
