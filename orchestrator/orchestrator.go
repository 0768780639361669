// Package orchestrator drives one conversation turn end to end: history
// load, language-model generation, speech synthesis, frame reassembly and
// event publication. Turns for different conversations, and successive
// turns of the same conversation, run as independent goroutines; nothing
// here blocks audio reception for the next utterance.
package orchestrator

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mrsingh-rishi/voice-gateway/history"
	"github.com/mrsingh-rishi/voice-gateway/metrics"
	"github.com/mrsingh-rishi/voice-gateway/mp3"
	"github.com/mrsingh-rishi/voice-gateway/providers"
	"github.com/mrsingh-rishi/voice-gateway/queue"
	"github.com/mrsingh-rishi/voice-gateway/types"
)

// apologyText is spoken in place of a response when the language model
// fails mid-turn; provider failures degrade, they do not propagate.
const apologyText = "I'm sorry, I'm having trouble answering right now. Please try again in a moment."

// Orchestrator coordinates the STT->LLM->TTS pipeline per utterance. The
// providers are injected once at startup; either may be nil when its
// configuration is missing, in which case turns fail fast with an error
// event.
type Orchestrator struct {
	llm     providers.LLM
	tts     providers.TTS
	store   history.Store
	fanout  *queue.Fanout
	log     *logrus.Logger
	metrics *metrics.Metrics
}

// New wires an orchestrator from its collaborators. metrics may be nil.
func New(llm providers.LLM, tts providers.TTS, store history.Store, fanout *queue.Fanout, log *logrus.Logger, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{llm: llm, tts: tts, store: store, fanout: fanout, log: log, metrics: m}
}

// SubmitText runs a text turn in the background so the caller can
// acknowledge immediately; the response arrives on the event channel.
func (o *Orchestrator) SubmitText(conversationID, text string) {
	go o.RunTurn(context.Background(), conversationID, text)
}

// publish places an event on the fanout queue under this conversation.
func (o *Orchestrator) publish(conversationID string, ev types.Event) {
	o.fanout.Publish(conversationID, ev)
	o.metrics.EventPublished(string(ev.Type))
}

// RunTurn executes one complete turn for userText in the given
// conversation. Every failure is recovered at the turn boundary and
// reported as an error event; once the turn has signalled ai_thinking it
// always signals it off again, exactly once, so the client's busy
// indicator is never left stuck.
func (o *Orchestrator) RunTurn(ctx context.Context, conversationID, userText string) {
	log := o.log.WithFields(logrus.Fields{"conversation_id": conversationID})

	if o.llm == nil || o.tts == nil {
		log.Error("Turn rejected: provider unavailable")
		o.publish(conversationID, types.ErrorEvent("assistant is not configured"))
		o.metrics.TurnOutcome("unavailable")
		return
	}

	// History is best-effort: an unreachable store degrades the turn to
	// empty context instead of failing it.
	messages, err := o.store.Load(ctx, conversationID)
	if err != nil {
		log.WithError(err).Warn("History load failed, proceeding with empty history")
		messages = nil
	}
	messages = append(messages, types.Message{Role: types.RoleUser, Content: userText})

	o.publish(conversationID, types.Thinking(true))
	defer o.publish(conversationID, types.Thinking(false))

	outcome := "ok"
	defer func() { o.metrics.TurnOutcome(outcome) }()

	response, err := o.llm.Generate(ctx, messages)
	if err != nil {
		log.WithError(err).Error("LLM generation failed")
		o.publish(conversationID, types.ErrorEvent(err.Error()))
		response = apologyText
		outcome = "degraded"
	}

	messages = append(messages, types.Message{Role: types.RoleAssistant, Content: response})
	if err := o.store.Save(ctx, conversationID, messages); err != nil {
		log.WithError(err).Warn("History save failed, turn continues")
	}

	chunks, err := o.tts.Synthesize(ctx, response)
	if err != nil {
		log.WithError(err).Error("Speech synthesis failed")
		o.publish(conversationID, types.ErrorEvent(err.Error()))
		outcome = "error"
		return
	}

	for frame := range mp3.Frames(chunks) {
		o.publish(conversationID, types.AudioChunk(userText, response, frame))
		o.metrics.FrameEmitted()
	}
	log.Debug("Turn complete")
}

// ClearHistory removes a conversation's stored history, reporting whether
// one existed.
func (o *Orchestrator) ClearHistory(ctx context.Context, conversationID string) (bool, error) {
	existed, err := o.store.Clear(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return existed, nil
}

// Available reports whether the turn pipeline has all providers it needs.
func (o *Orchestrator) Available() bool {
	return o.llm != nil && o.tts != nil
}
