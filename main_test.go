package main

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mrsingh-rishi/voice-gateway/types"
)

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestStreamEventsFramesEvents(t *testing.T) {
	var buf bytes.Buffer
	sub := make(chan types.Event, 2)
	sub <- types.Thinking(true)
	sub <- types.ErrorEvent("boom")
	close(sub)

	streamEvents(bufio.NewWriter(&buf), sub, time.Hour)

	out := buf.String()
	if !strings.Contains(out, "event: ai_thinking\ndata: ") {
		t.Fatalf("missing thinking frame in output:\n%s", out)
	}
	if !strings.Contains(out, "event: error\ndata: ") || !strings.Contains(out, `"message":"boom"`) {
		t.Fatalf("missing error frame in output:\n%s", out)
	}
}

func TestStreamEventsReturnsOnIdleDisconnect(t *testing.T) {
	sub := make(chan types.Event) // never delivers
	done := make(chan struct{})
	go func() {
		defer close(done)
		streamEvents(bufio.NewWriter(brokenWriter{}), sub, 10*time.Millisecond)
	}()

	// The keep-alive write fails, so the stream ends with no event traffic.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after keep-alive write failed")
	}
}

func TestStreamEventsReturnsOnFailedEventWrite(t *testing.T) {
	sub := make(chan types.Event, 1)
	sub <- types.Thinking(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		streamEvents(bufio.NewWriter(brokenWriter{}), sub, time.Hour)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after event write failed")
	}
}
