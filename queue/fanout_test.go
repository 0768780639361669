package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mrsingh-rishi/voice-gateway/types"
)

func recvOne(t *testing.T, ch <-chan types.Event) types.Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return types.Event{}
}

func TestFanoutDeliversInPublishOrder(t *testing.T) {
	f := NewFanout()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := f.Subscribe(ctx, "conv-a")
	for i := 0; i < 5; i++ {
		f.Publish("conv-a", types.ErrorEvent(fmt.Sprintf("msg-%d", i)))
	}
	for i := 0; i < 5; i++ {
		ev := recvOne(t, sub)
		if want := fmt.Sprintf("msg-%d", i); ev.Message != want {
			t.Fatalf("event %d: got %q, want %q", i, ev.Message, want)
		}
	}
}

func TestFanoutFiltersOtherConversations(t *testing.T) {
	f := NewFanout()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subA := f.Subscribe(ctx, "a")

	// Interleave events for both conversations.
	f.Publish("b", types.Thinking(true))
	f.Publish("a", types.Thinking(true))
	f.Publish("b", types.Thinking(false))
	f.Publish("a", types.Thinking(false))

	first := recvOne(t, subA)
	second := recvOne(t, subA)
	if !first.Active || second.Active {
		t.Fatalf("subscriber a got wrong events: %+v, %+v", first, second)
	}

	// Nothing else should arrive for "a".
	select {
	case ev := <-subA:
		t.Fatalf("unexpected extra event for a: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// The "b" events were re-queued, not lost: a "b" subscriber still
	// receives both in order.
	subB := f.Subscribe(ctx, "b")
	if ev := recvOne(t, subB); !ev.Active {
		t.Fatalf("first b event: got %+v, want active", ev)
	}
	if ev := recvOne(t, subB); ev.Active {
		t.Fatalf("second b event: got %+v, want inactive", ev)
	}
}

func TestFanoutConsumeKeepsForeignOrder(t *testing.T) {
	f := NewFanout()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// "a"'s event sits between the two "b" events, so collecting it
	// splits the scan mid-rotation.
	f.Publish("b", types.Thinking(true))
	f.Publish("a", types.ErrorEvent("for a"))
	f.Publish("b", types.Thinking(false))

	subA := f.Subscribe(ctx, "a")
	if ev := recvOne(t, subA); ev.Message != "for a" {
		t.Fatalf("subscriber a: got %+v", ev)
	}

	// "b" must still see thinking on before thinking off.
	subB := f.Subscribe(ctx, "b")
	if ev := recvOne(t, subB); !ev.Active {
		t.Fatalf("conversation b events out of order: got %+v first", ev)
	}
	if ev := recvOne(t, subB); ev.Active {
		t.Fatalf("conversation b events out of order: got %+v second", ev)
	}
}

func TestFanoutSubscribeCancellation(t *testing.T) {
	f := NewFanout()
	ctx, cancel := context.WithCancel(context.Background())

	sub := f.Subscribe(ctx, "a")
	f.Publish("b", types.ErrorEvent("for b"))
	cancel()

	select {
	case _, ok := <-sub:
		if ok {
			t.Fatal("expected closed channel after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not close after cancel")
	}

	// The cancelled subscriber must not have consumed b's event.
	if got := f.Len(); got != 1 {
		t.Fatalf("queue length after cancel: got %d, want 1", got)
	}
}

func TestFanoutConcurrentPublishers(t *testing.T) {
	f := NewFanout()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	const perConv = 20
	sub := f.Subscribe(ctx, "a")

	go func() {
		for i := 0; i < perConv; i++ {
			f.Publish("b", types.ErrorEvent(fmt.Sprintf("b-%d", i)))
			f.Publish("a", types.ErrorEvent(fmt.Sprintf("a-%d", i)))
		}
	}()

	for i := 0; i < perConv; i++ {
		ev := recvOne(t, sub)
		if want := fmt.Sprintf("a-%d", i); ev.Message != want {
			t.Fatalf("event %d: got %q, want %q", i, ev.Message, want)
		}
	}
}
