// Package call owns the lifetime of one inbound voice connection: the
// websocket read loop, the speech-to-text session it feeds, and the turn
// tasks spawned from completed transcripts.
package call

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/mrsingh-rishi/voice-gateway/metrics"
	"github.com/mrsingh-rishi/voice-gateway/orchestrator"
	"github.com/mrsingh-rishi/voice-gateway/output"
	"github.com/mrsingh-rishi/voice-gateway/providers"
	"github.com/mrsingh-rishi/voice-gateway/queue"
)

// twilioEvent is the envelope Twilio media streams send as text messages.
// Plain clients send raw binary audio instead; both share this endpoint.
type twilioEvent struct {
	Event string `json:"event"` // "start", "media", "stop"
	Media struct {
		Payload string `json:"payload"` // base64 audio
	} `json:"media"`
	Start struct {
		CallSid   string `json:"callSid"`
		StreamSid string `json:"streamSid"`
	} `json:"start"`
}

// Session is one live audio connection bound to a conversation id.
type Session struct {
	conversationID string
	ws             *websocket.Conn
	transcriber    providers.Transcriber
	orch           *orchestrator.Orchestrator
	fanout         *queue.Fanout
	outputWorker   *output.TwilioOutput
	log            *logrus.Entry
	metrics        *metrics.Metrics
}

// NewSession creates the transcriber for one connection. The caller owns
// the session and must let Run drive it to completion.
func NewSession(conversationID string, ws *websocket.Conn, stt providers.STT, orch *orchestrator.Orchestrator, fanout *queue.Fanout, log *logrus.Logger, m *metrics.Metrics) (*Session, error) {
	transcriber, err := stt.NewSession(providers.SessionOptions{})
	if err != nil {
		return nil, err
	}
	return &Session{
		conversationID: conversationID,
		ws:             ws,
		transcriber:    transcriber,
		orch:           orch,
		fanout:         fanout,
		log:            log.WithField("conversation_id", conversationID),
		metrics:        m,
	}, nil
}

// Run starts the transcript consumer and blocks in the websocket read loop
// until the client disconnects or the stream stops. The transcriber reaches
// Finished on every exit path; an in-flight turn already launched is not
// cancelled, its events simply go uncollected.
func (s *Session) Run(ctx context.Context) {
	defer s.cleanup()

	s.metrics.SessionDelta(1)
	defer s.metrics.SessionDelta(-1)

	if err := s.transcriber.Start(ctx); err != nil {
		s.log.WithError(err).Error("Failed to start transcription session")
		return
	}

	go s.consumeTranscripts()
	s.readLoop()
}

// cleanup releases the provider session and any telephony output worker.
// Finish is idempotent, so racing a normal close is harmless.
func (s *Session) cleanup() {
	if err := s.transcriber.Finish(); err != nil {
		s.log.WithError(err).Warn("Transcriber finish error")
	}
	if s.outputWorker != nil {
		s.outputWorker.Stop()
	}
}

// readLoop pumps inbound websocket messages into the transcriber. Binary
// messages are raw audio; text messages are Twilio envelopes.
func (s *Session) readLoop() {
	for {
		msgType, msg, err := s.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info("WebSocket closed normally")
			} else {
				s.log.WithError(err).Warn("WebSocket read error")
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			if err := s.transcriber.Send(msg); err != nil {
				s.log.WithError(err).Warn("Failed to forward audio chunk")
			}
			continue
		}

		if done := s.handleTwilioEvent(msg); done {
			return
		}
	}
}

// handleTwilioEvent processes one Twilio media-stream envelope and reports
// whether the stream has stopped.
func (s *Session) handleTwilioEvent(msg []byte) bool {
	var ev twilioEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		s.log.WithError(err).Warn("Unparseable text message on audio channel")
		return false
	}

	switch ev.Event {
	case "start":
		s.log.WithFields(logrus.Fields{
			"call_sid":   ev.Start.CallSid,
			"stream_sid": ev.Start.StreamSid,
		}).Info("Twilio stream started")
		s.attachOutputWorker(ev.Start.StreamSid)

	case "media":
		chunk, err := base64.StdEncoding.DecodeString(ev.Media.Payload)
		if err != nil {
			s.log.WithError(err).Warn("Base64 decode error")
			return false
		}
		if err := s.transcriber.Send(chunk); err != nil {
			s.log.WithError(err).Warn("Failed to forward audio chunk")
		}

	case "stop":
		s.log.Info("Twilio stream stopped")
		return true

	default:
		s.log.WithField("event", ev.Event).Debug("Ignoring unknown stream event")
	}
	return false
}

// attachOutputWorker starts relaying this conversation's audio events back
// onto the Twilio stream once its sid is known.
func (s *Session) attachOutputWorker(streamSid string) {
	worker, err := output.NewTwilioOutput(streamSid, s.ws, s.fanout, s.conversationID, s.log.Logger)
	if err != nil {
		s.log.WithError(err).Error("Failed to create output worker")
		return
	}
	s.outputWorker = worker
	worker.Start()
}

// consumeTranscripts launches one turn per completed utterance. Each turn
// runs as its own goroutine so audio reception for the next utterance is
// never blocked by processing of the current one.
func (s *Session) consumeTranscripts() {
	for ev := range s.transcriber.Transcripts() {
		if !ev.Final || ev.Text == "" {
			continue
		}
		s.log.WithField("transcript", ev.Text).Info("Final transcript received")
		go s.orch.RunTurn(context.Background(), s.conversationID, ev.Text)
	}
}
