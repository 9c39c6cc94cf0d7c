package bleperiph

import (
	"encoding/hex"
	"testing"

	"github.com/pkg/errors"
)

func TestParseAddr(t *testing.T) {
	a, err := ParseAddr("11:22:33:44:55:66")
	if err != nil {
		t.Fatalf("parse: %s", err)
	}
	if a != (Addr{0x66, 0x55, 0x44, 0x33, 0x22, 0x11}) {
		t.Fatalf("expected over-the-air byte order, got % x", a[:])
	}
	if a.String() != "11:22:33:44:55:66" {
		t.Fatalf("unexpected string %s", a)
	}

	if _, err := ParseAddr("11:22:33"); err == nil {
		t.Fatalf("expected error for a short address")
	}
	_, err = ParseAddr("11:22:33:44:55:ZZ")
	if _, ok := errors.Cause(err).(hex.InvalidByteError); !ok {
		t.Fatalf("expected the hex error as cause, got %v", err)
	}
}

func TestParseErrorsKeepCause(t *testing.T) {
	if _, err := ParseLongTermKey("zz"); err == nil {
		t.Fatalf("expected error for bad hex")
	} else if _, ok := errors.Cause(err).(hex.InvalidByteError); !ok {
		t.Fatalf("expected the hex error as cause, got %v", err)
	}

	if _, err := Parse("not-a-uuid-at-all"); err == nil {
		t.Fatalf("expected error for a bad uuid")
	}
	if _, err := ParseSecurityLevel("paranoid"); err == nil {
		t.Fatalf("expected error for an unknown level")
	}
}
