package types

// Message roles recognised by the LLM providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged entry in a conversation history. Messages are
// immutable once appended; the ordered slice per conversation is the
// canonical LLM context.
type Message struct {
	Role    string `json:"role" bson:"role"`
	Content string `json:"content" bson:"content"`
}

// EventType discriminates the payload of an Event.
type EventType string

const (
	EventThinking   EventType = "ai_thinking"
	EventAudioChunk EventType = "audio_chunk"
	EventError      EventType = "error"
)

// Event is the unit pushed to clients over the fanout queue. It is a tagged
// union: only the fields belonging to its Type are meaningful. The owning
// conversation id travels in the queue envelope, not in the event itself.
type Event struct {
	Type EventType `json:"type"`

	// ai_thinking
	Active bool `json:"active"`

	// audio_chunk; Transcript and Response repeat on every frame so a
	// client attaching mid-stream can still correlate audio to text.
	Transcript string `json:"transcript,omitempty"`
	Response   string `json:"responseText,omitempty"`
	Audio      []byte `json:"audioBytes,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// Thinking builds an ai_thinking event toggling the client busy indicator.
func Thinking(active bool) Event {
	return Event{Type: EventThinking, Active: active}
}

// AudioChunk builds an audio_chunk event carrying one playable frame.
func AudioChunk(transcript, response string, audio []byte) Event {
	return Event{Type: EventAudioChunk, Transcript: transcript, Response: response, Audio: audio}
}

// ErrorEvent builds an error event with a user-facing failure message.
func ErrorEvent(message string) Event {
	return Event{Type: EventError, Message: message}
}

// TranscriptEvent is a transcript-ready notification emitted by a live
// speech-to-text session.
type TranscriptEvent struct {
	Text       string
	Confidence float64
	Final      bool
}
