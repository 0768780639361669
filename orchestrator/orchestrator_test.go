package orchestrator

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mrsingh-rishi/voice-gateway/history"
	"github.com/mrsingh-rishi/voice-gateway/queue"
	"github.com/mrsingh-rishi/voice-gateway/types"
)

type fakeLLM struct {
	response string
	err      error
	mu       sync.Mutex
	calls    [][]types.Message
}

func (f *fakeLLM) Generate(_ context.Context, h []types.Message) (string, error) {
	snapshot := make([]types.Message, len(h))
	copy(snapshot, h)
	f.mu.Lock()
	f.calls = append(f.calls, snapshot)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type fakeTTS struct {
	chunks [][]byte
	err    error
	mu     sync.Mutex
	texts  []string
}

func (f *fakeTTS) Synthesize(_ context.Context, text string) (<-chan []byte, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(chan []byte, len(f.chunks))
	for _, c := range f.chunks {
		out <- c
	}
	close(out)
	return out, nil
}

// mp3Frame builds one valid 417-byte MPEG1 Layer III frame.
func mp3Frame(fill byte) []byte {
	frame := make([]byte, 417)
	frame[0], frame[1], frame[2], frame[3] = 0xFF, 0xFB, 0x90, 0x00
	for i := 4; i < len(frame); i++ {
		frame[i] = fill
	}
	return frame
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// drainEvents collects every event currently queued for one conversation.
func drainEvents(t *testing.T, f *queue.Fanout, conversationID string) []types.Event {
	t.Helper()
	n := f.Len()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := f.Subscribe(ctx, conversationID)
	events := make([]types.Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-sub:
			events = append(events, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d events", i, n)
		}
	}
	return events
}

func countThinking(events []types.Event, active bool) int {
	n := 0
	for _, ev := range events {
		if ev.Type == types.EventThinking && ev.Active == active {
			n++
		}
	}
	return n
}

func TestRunTurnPublishesFramesAndHistory(t *testing.T) {
	frame := mp3Frame(0xAB)
	llm := &fakeLLM{response: "the answer"}
	tts := &fakeTTS{chunks: [][]byte{frame[:100], frame[100:]}}
	store := history.NewMemoryStore()
	fanout := queue.NewFanout()
	o := New(llm, tts, store, fanout, quietLogger(), nil)

	o.RunTurn(context.Background(), "c1", "the question")

	events := drainEvents(t, fanout, "c1")
	if countThinking(events, true) != 1 || countThinking(events, false) != 1 {
		t.Fatalf("thinking events: %+v", events)
	}
	if events[0].Type != types.EventThinking || !events[0].Active {
		t.Fatalf("first event should be thinking on, got %+v", events[0])
	}
	if last := events[len(events)-1]; last.Type != types.EventThinking || last.Active {
		t.Fatalf("last event should be thinking off, got %+v", last)
	}

	var audio []types.Event
	for _, ev := range events {
		if ev.Type == types.EventAudioChunk {
			audio = append(audio, ev)
		}
	}
	if len(audio) != 1 {
		t.Fatalf("got %d audio events, want 1 complete frame", len(audio))
	}
	if audio[0].Transcript != "the question" || audio[0].Response != "the answer" {
		t.Fatalf("audio event text: %+v", audio[0])
	}
	if len(audio[0].Audio) != len(frame) {
		t.Fatalf("audio frame: got %d bytes, want %d", len(audio[0].Audio), len(frame))
	}

	msgs, _ := store.Load(context.Background(), "c1")
	if len(msgs) != 2 || msgs[0].Role != types.RoleUser || msgs[1].Role != types.RoleAssistant {
		t.Fatalf("persisted history: %+v", msgs)
	}
	if tts.texts[0] != "the answer" {
		t.Fatalf("synthesized text: %q", tts.texts[0])
	}
}

func TestRunTurnWithoutLLMEmitsSingleError(t *testing.T) {
	fanout := queue.NewFanout()
	o := New(nil, &fakeTTS{}, history.NewMemoryStore(), fanout, quietLogger(), nil)

	o.RunTurn(context.Background(), "c1", "hello")

	events := drainEvents(t, fanout, "c1")
	if len(events) != 1 || events[0].Type != types.EventError {
		t.Fatalf("events: %+v, want exactly one error", events)
	}
}

func TestRunTurnLLMFailureDegradesToApology(t *testing.T) {
	llm := &fakeLLM{err: errors.New("upstream exploded")}
	tts := &fakeTTS{}
	store := history.NewMemoryStore()
	fanout := queue.NewFanout()
	o := New(llm, tts, store, fanout, quietLogger(), nil)

	o.RunTurn(context.Background(), "c1", "hello")

	events := drainEvents(t, fanout, "c1")
	if countThinking(events, false) != 1 {
		t.Fatalf("thinking off not published exactly once: %+v", events)
	}
	sawError := false
	for _, ev := range events {
		if ev.Type == types.EventError {
			sawError = true
		}
	}
	if !sawError {
		t.Fatal("expected an error event for the LLM failure")
	}
	// The apology is still spoken and persisted.
	if len(tts.texts) != 1 || tts.texts[0] != apologyText {
		t.Fatalf("synthesized: %v", tts.texts)
	}
	msgs, _ := store.Load(context.Background(), "c1")
	if len(msgs) != 2 || msgs[1].Content != apologyText {
		t.Fatalf("persisted history: %+v", msgs)
	}
}

func TestRunTurnSynthesisFailureStillClearsThinking(t *testing.T) {
	llm := &fakeLLM{response: "fine"}
	tts := &fakeTTS{err: errors.New("voice service down")}
	fanout := queue.NewFanout()
	o := New(llm, tts, history.NewMemoryStore(), fanout, quietLogger(), nil)

	o.RunTurn(context.Background(), "c1", "hello")

	events := drainEvents(t, fanout, "c1")
	if countThinking(events, false) != 1 {
		t.Fatalf("thinking off not published exactly once: %+v", events)
	}
	if last := events[len(events)-1]; last.Type != types.EventThinking || last.Active {
		t.Fatalf("busy indicator left stuck: %+v", last)
	}
}

func TestSerializedTurnsAccumulateHistoryInOrder(t *testing.T) {
	llm := &fakeLLM{response: "reply"}
	tts := &fakeTTS{}
	store := history.NewMemoryStore()
	o := New(llm, tts, store, queue.NewFanout(), quietLogger(), nil)

	o.RunTurn(context.Background(), "c1", "first")
	o.RunTurn(context.Background(), "c1", "second")

	msgs, _ := store.Load(context.Background(), "c1")
	if len(msgs) != 4 {
		t.Fatalf("got %d messages, want 4", len(msgs))
	}
	wantRoles := []string{types.RoleUser, types.RoleAssistant, types.RoleUser, types.RoleAssistant}
	wantContent := []string{"first", "reply", "second", "reply"}
	for i := range msgs {
		if msgs[i].Role != wantRoles[i] || msgs[i].Content != wantContent[i] {
			t.Fatalf("message %d: %+v", i, msgs[i])
		}
	}
	// The second turn's LLM context included the first turn.
	if len(llm.calls) != 2 || len(llm.calls[1]) != 3 {
		t.Fatalf("llm call histories: %d calls, second had %d messages", len(llm.calls), len(llm.calls[1]))
	}
}

func TestConcurrentTurnsKeepLastWritersPair(t *testing.T) {
	llm := &fakeLLM{response: "reply"}
	tts := &fakeTTS{}
	store := history.NewMemoryStore()
	o := New(llm, tts, store, queue.NewFanout(), quietLogger(), nil)

	var wg sync.WaitGroup
	for _, text := range []string{"first", "second"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			o.RunTurn(context.Background(), "c1", text)
		}(text)
	}
	wg.Wait()

	// Racing turns resolve as last-writer-wins: the other turn's pair may
	// be lost, but the history is never empty and never ends mid-pair.
	msgs, err := store.Load(context.Background(), "c1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(msgs) < 2 || len(msgs)%2 != 0 {
		t.Fatalf("history has %d messages, want a whole number of pairs", len(msgs))
	}
	user, assistant := msgs[len(msgs)-2], msgs[len(msgs)-1]
	if user.Role != types.RoleUser || assistant.Role != types.RoleAssistant {
		t.Fatalf("last pair roles: %q, %q", user.Role, assistant.Role)
	}
	if user.Content != "first" && user.Content != "second" {
		t.Fatalf("last user message: %q", user.Content)
	}
	if assistant.Content != "reply" {
		t.Fatalf("last assistant message: %q", assistant.Content)
	}
}

func TestClearHistory(t *testing.T) {
	store := history.NewMemoryStore()
	o := New(&fakeLLM{response: "r"}, &fakeTTS{}, store, queue.NewFanout(), quietLogger(), nil)

	o.RunTurn(context.Background(), "c1", "hello")
	existed, err := o.ClearHistory(context.Background(), "c1")
	if err != nil || !existed {
		t.Fatalf("clear existing: existed=%v err=%v", existed, err)
	}
	existed, err = o.ClearHistory(context.Background(), "c1")
	if err != nil || existed {
		t.Fatalf("clear missing: existed=%v err=%v", existed, err)
	}
}
