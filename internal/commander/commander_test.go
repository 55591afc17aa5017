package commander

import "testing"

func TestMessage_SenderIDPrefersFrom(t *testing.T) {
	m := &Message{Chat: Chat{ID: -100}, From: &User{ID: 42}}
	if got := m.SenderID(); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}

func TestMessage_SenderIDFallsBackToChat(t *testing.T) {
	m := &Message{Chat: Chat{ID: 7}}
	if got := m.SenderID(); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
	m.From = &User{}
	if got := m.SenderID(); got != 7 {
		t.Fatalf("expected chat fallback for zero sender, got %d", got)
	}
}
