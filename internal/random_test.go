package internal

import (
	"encoding/hex"
	"strconv"
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewOTPRange(t *testing.T) {
	for i := 0; i < 2000; i++ {
		otp, err := NewOTP()
		if err != nil {
			t.Fatalf("NewOTP: %v", err)
		}
		if len(otp) != 6 {
			t.Fatalf("otp %q has length %d", otp, len(otp))
		}
		n, err := strconv.Atoi(otp)
		if err != nil {
			t.Fatalf("otp %q not numeric", otp)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("otp %d out of range", n)
		}
	}
}

func TestNewResetTokenShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		tok, err := NewResetToken()
		if err != nil {
			t.Fatalf("NewResetToken: %v", err)
		}
		if len(tok) != ResetTokenLength {
			t.Fatalf("token length %d", len(tok))
		}
		if _, err := hex.DecodeString(tok); err != nil {
			t.Fatalf("token not hex: %v", err)
		}
		if seen[tok] {
			t.Fatal("duplicate reset token")
		}
		seen[tok] = true
	}
}

func TestNewUserIDIsULID(t *testing.T) {
	a, err := NewUserID()
	if err != nil {
		t.Fatalf("NewUserID: %v", err)
	}
	b, _ := NewUserID()
	if a == b {
		t.Fatal("user ids must differ")
	}
	if _, err := ulid.ParseStrict(a); err != nil {
		t.Fatalf("not a ulid: %v", err)
	}
}

func TestSessionIDRoundTrip(t *testing.T) {
	sid, err := NewSessionID()
	if err != nil {
		t.Fatalf("NewSessionID: %v", err)
	}
	parsed, err := ParseSessionID(sid.String())
	if err != nil {
		t.Fatalf("ParseSessionID: %v", err)
	}
	if parsed != sid {
		t.Fatal("round trip mismatch")
	}
	if _, err := ParseSessionID("short"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}
