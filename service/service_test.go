package service

import (
	"testing"
)

func TestStatusRotation(t *testing.T) {
	exp := []Status{Happy, Hungry, Tired, Sick, Playing, Sleeping, Happy, Hungry}
	for i, s := range exp {
		if got := StatusAt(i); got != s {
			t.Fatalf("position %d: expected %s, got %s", i, s, got)
		}
		if s.Message() == "" {
			t.Fatalf("%s has no message", s)
		}
	}
	if Status(9).Message() != "" {
		t.Fatalf("unknown status must not have a message")
	}
}

func TestProfile(t *testing.T) {
	s := NewSet(nil)
	p := s.Profile()

	if len(p.Services) != 3 {
		t.Fatalf("expected 3 services, got %d", len(p.Services))
	}
	if c := p.Find(NotificationUUID, MessageUUID); c == nil || len(c.Value) != MessageLen {
		t.Fatalf("message characteristic missing or wrong size")
	}
	if c := p.Find(BatteryUUID, BatteryStatusUUID); c == nil || !c.Property.Writable() || c.WriteHandler() == nil {
		t.Fatalf("battery status must be writable")
	}
	if len(keyboardReportMap) != 67 {
		t.Fatalf("unexpected report map length %d", len(keyboardReportMap))
	}

	// every connection gets its own table
	if NewSet(nil).Notification.Message == s.Notification.Message {
		t.Fatalf("sets share characteristics")
	}
}
