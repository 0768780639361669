// Package stt contains speech-to-text provider implementations.
package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/mrsingh-rishi/voice-gateway/providers"
	"github.com/mrsingh-rishi/voice-gateway/types"
)

const deepgramListenURL = "wss://api.deepgram.com/v1/listen"

// transcriptionMessage is the JSON shape of a Deepgram live result.
type transcriptionMessage struct {
	IsFinal bool `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// Deepgram creates live transcription sessions against the Deepgram
// streaming API, one websocket connection per session.
type Deepgram struct {
	apiKey string
	log    *logrus.Logger
}

// NewDeepgram validates configuration and returns the provider.
func NewDeepgram(apiKey string, log *logrus.Logger) (*Deepgram, error) {
	if apiKey == "" {
		return nil, &providers.ConfigError{Provider: "deepgram", Missing: "DEEPGRAM_API_KEY"}
	}
	return &Deepgram{apiKey: apiKey, log: log}, nil
}

// NewSession prepares a transcriber for one audio connection. The provider
// connection is not dialed until Start.
func (d *Deepgram) NewSession(opts providers.SessionOptions) (providers.Transcriber, error) {
	if opts.Encoding == "" {
		opts.Encoding = "mulaw"
	}
	if opts.SampleRate == 0 {
		opts.SampleRate = 8000
	}
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	return &session{
		apiKey:      d.apiKey,
		opts:        opts,
		log:         d.log,
		transcripts: make(chan types.TranscriptEvent, 16),
		done:        make(chan struct{}),
	}, nil
}

type session struct {
	apiKey      string
	opts        providers.SessionOptions
	log         *logrus.Logger
	conn        *websocket.Conn
	transcripts chan types.TranscriptEvent
	done        chan struct{}
	finishOnce  sync.Once
}

// Start dials the Deepgram streaming endpoint and begins reading results.
func (s *session) Start(ctx context.Context) error {
	q := url.Values{}
	q.Set("model", "nova-2")
	q.Set("encoding", s.opts.Encoding)
	q.Set("sample_rate", strconv.Itoa(s.opts.SampleRate))
	q.Set("channels", "1")
	q.Set("language", s.opts.Language)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("vad_events", "true")
	endpoint := deepgramListenURL + "?" + q.Encode()

	header := http.Header{"Authorization": {fmt.Sprintf("Token %s", s.apiKey)}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return &providers.ProviderError{Provider: "deepgram", Err: fmt.Errorf("dial: %w", err)}
	}
	s.conn = conn
	s.log.Debug("Connected to Deepgram WebSocket")

	go s.readLoop()
	return nil
}

// Send forwards one raw audio chunk. Empty chunks are skipped.
func (s *session) Send(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}
	if s.conn == nil {
		return &providers.ProviderError{Provider: "deepgram", Err: fmt.Errorf("session not started")}
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		return &providers.ProviderError{Provider: "deepgram", Err: fmt.Errorf("send audio: %w", err)}
	}
	return nil
}

func (s *session) Transcripts() <-chan types.TranscriptEvent {
	return s.transcripts
}

// Finish closes the provider connection. Safe to call more than once and
// from any exit path, including before Start.
func (s *session) Finish() error {
	s.finishOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			// Ask Deepgram to flush, then drop the connection; the read
			// loop exits on the resulting error and closes transcripts.
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing connection"))
			_ = s.conn.Close()
		} else {
			close(s.transcripts)
		}
	})
	return nil
}

// readLoop parses Deepgram results and delivers transcript events until the
// connection ends.
func (s *session) readLoop() {
	defer close(s.transcripts)
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// expected: Finish closed the connection
			default:
				s.log.WithError(err).Warn("Deepgram read error")
			}
			return
		}
		ev, ok := parseTranscript(message)
		if !ok {
			continue
		}
		select {
		case s.transcripts <- ev:
		case <-s.done:
			return
		}
	}
}

// parseTranscript extracts a transcript event from one Deepgram message.
// Metadata and speech events carry no alternatives and are dropped, as are
// results with an empty transcript.
func parseTranscript(message []byte) (types.TranscriptEvent, bool) {
	var tm transcriptionMessage
	if err := json.Unmarshal(message, &tm); err != nil {
		return types.TranscriptEvent{}, false
	}
	if len(tm.Channel.Alternatives) == 0 {
		return types.TranscriptEvent{}, false
	}
	alt := tm.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return types.TranscriptEvent{}, false
	}
	return types.TranscriptEvent{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Final:      tm.IsFinal,
	}, true
}
