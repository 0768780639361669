// Package providers defines the speech-to-text, language-model and
// speech-synthesis capability interfaces, the errors they surface, and the
// name-to-constructor registries that bind a concrete provider to each
// capability at process start.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/mrsingh-rishi/voice-gateway/types"
)

// Transcriber is one live speech-to-text session. It is owned exclusively
// by the connection handler that created it and must reach Finish on every
// exit path.
type Transcriber interface {
	// Start opens the provider connection and begins delivering
	// transcript events.
	Start(ctx context.Context) error
	// Send forwards one raw audio chunk to the provider.
	Send(chunk []byte) error
	// Transcripts yields transcript-ready notifications. The channel is
	// closed once the session is finished.
	Transcripts() <-chan types.TranscriptEvent
	// Finish releases the provider-side connection. It is idempotent and
	// safe to call from any exit path, including after a failed Start.
	Finish() error
}

// SessionOptions tune a transcriber session for the inbound audio format.
type SessionOptions struct {
	Encoding   string // e.g. "mulaw", "linear16"
	SampleRate int
	Language   string
}

// STT creates transcriber sessions, one per live audio connection.
type STT interface {
	NewSession(opts SessionOptions) (Transcriber, error)
}

// LLM produces a text completion from a conversation history. The last
// element of history is the current user turn; everything before it is
// prior-turn context.
type LLM interface {
	Generate(ctx context.Context, history []types.Message) (string, error)
}

// TTS synthesizes text into a raw audio byte stream. The returned channel
// may yield zero chunks and its chunk boundaries carry no meaning; it is
// closed when synthesis ends.
type TTS interface {
	Synthesize(ctx context.Context, text string) (<-chan []byte, error)
}

// ConfigError marks a provider that cannot be constructed because of
// missing configuration (typically an absent credential). Startup degrades
// that capability to unavailable instead of crashing the process.
type ConfigError struct {
	Provider string
	Missing  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: missing %s", e.Provider, e.Missing)
}

// ProviderError wraps an upstream STT/LLM/TTS call failure. Callers recover
// it at the turn boundary and surface it as an error event.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

var (
	sttRegistry = map[string]func() (STT, error){}
	llmRegistry = map[string]func() (LLM, error){}
	ttsRegistry = map[string]func() (TTS, error){}
)

// RegisterSTT adds a named speech-to-text constructor. Names are
// case-insensitive.
func RegisterSTT(name string, ctor func() (STT, error)) {
	sttRegistry[strings.ToUpper(name)] = ctor
}

// RegisterLLM adds a named language-model constructor.
func RegisterLLM(name string, ctor func() (LLM, error)) {
	llmRegistry[strings.ToUpper(name)] = ctor
}

// RegisterTTS adds a named speech-synthesis constructor.
func RegisterTTS(name string, ctor func() (TTS, error)) {
	ttsRegistry[strings.ToUpper(name)] = ctor
}

// NewSTT resolves a registered speech-to-text provider by name. An unknown
// name is an error distinct from a ConfigError: the former is fatal at
// startup, the latter only degrades the capability.
func NewSTT(name string) (STT, error) {
	ctor, ok := sttRegistry[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported STT provider: %s", name)
	}
	return ctor()
}

// NewLLM resolves a registered language-model provider by name.
func NewLLM(name string) (LLM, error) {
	ctor, ok := llmRegistry[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported LLM provider: %s", name)
	}
	return ctor()
}

// NewTTS resolves a registered speech-synthesis provider by name.
func NewTTS(name string) (TTS, error) {
	ctor, ok := ttsRegistry[strings.ToUpper(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported TTS provider: %s", name)
	}
	return ctor()
}
