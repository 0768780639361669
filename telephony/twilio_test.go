package telephony

import (
	"strings"
	"testing"
)

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New("", "token", "+15550001111", "https://gw", "wss://gw"); err == nil {
		t.Fatal("expected error for missing account sid")
	}
	if _, err := New("AC123", "token", "+15550001111", "", "wss://gw"); err == nil {
		t.Fatal("expected error for missing base url")
	}
}

func TestTwiMLPointsStreamAtVoiceEndpoint(t *testing.T) {
	tw, err := New("AC123", "token", "+15550001111", "https://gw.example.com", "wss://gw.example.com")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	xml := tw.TwiML("conv 42")
	if !strings.Contains(xml, `url="wss://gw.example.com/api/voice/conv%2042"`) {
		t.Fatalf("twiml stream url wrong:\n%s", xml)
	}
	if !strings.Contains(xml, `bidirectional="true"`) {
		t.Fatalf("twiml missing bidirectional flag:\n%s", xml)
	}
}
