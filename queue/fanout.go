package queue

import (
	"context"
	"sync"

	"github.com/mrsingh-rishi/voice-gateway/types"
)

// Envelope pairs an event with the conversation it belongs to while it sits
// on the shared queue.
type Envelope struct {
	ConversationID string
	Event          types.Event
}

// Fanout is a single shared, unbounded event queue consumed by many
// per-conversation subscribers. A subscriber that dequeues an envelope for
// another conversation re-enqueues it for its owner before continuing, so
// one physical queue serves every logical consumer. Delivery within one
// conversation is FIFO relative to publish order; there is no ordering
// guarantee across conversations.
type Fanout struct {
	mu   sync.Mutex
	cond *sync.Cond
	q    *Queue[Envelope]
}

// NewFanout creates an empty fanout queue.
func NewFanout() *Fanout {
	f := &Fanout{q: New[Envelope]()}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// Publish appends an event for the given conversation and wakes every
// blocked subscriber. It never blocks: the backing queue is unbounded.
func (f *Fanout) Publish(conversationID string, ev types.Event) {
	f.mu.Lock()
	f.q.Enqueue(Envelope{ConversationID: conversationID, Event: ev})
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Len reports the number of undelivered envelopes.
func (f *Fanout) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.q.Len()
}

// Subscribe returns a channel of events for one conversation. The channel
// is closed when ctx is cancelled. Cancelling a subscriber never consumes
// envelopes belonging to other conversations; its own undelivered envelopes
// stay on the queue until another subscriber for the same id collects them.
func (f *Fanout) Subscribe(ctx context.Context, conversationID string) <-chan types.Event {
	out := make(chan types.Event)
	// Wait in next() is only interrupted by a Broadcast, so cancellation
	// must issue one too.
	stop := context.AfterFunc(ctx, f.cond.Broadcast)
	go func() {
		defer stop()
		defer close(out)
		for {
			ev, ok := f.next(ctx, conversationID)
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// next blocks until an event for conversationID is available or ctx ends.
// It scans the queue once per wakeup, rotating foreign envelopes back to
// the tail; the scan runs under the lock so concurrent subscribers never
// observe an envelope in flight. Every scan performs one complete rotation
// of the queue, preserving the relative order of everything it skips.
func (f *Fanout) next(ctx context.Context, conversationID string) (types.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return types.Event{}, false
		}
		for n := f.q.Len(); n > 0; n-- {
			env, _ := f.q.Dequeue()
			if env.ConversationID == conversationID {
				// Finish the rotation before returning: the envelopes
				// behind the match must end up behind the ones already
				// rotated, or their relative order inverts.
				for rest := n - 1; rest > 0; rest-- {
					trailing, _ := f.q.Dequeue()
					f.q.Enqueue(trailing)
				}
				return env.Event, true
			}
			f.q.Enqueue(env)
		}
		f.cond.Wait()
	}
}
