// Package output writes synthesized audio back to telephony callers.
package output

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"github.com/mrsingh-rishi/voice-gateway/queue"
	"github.com/mrsingh-rishi/voice-gateway/types"
)

// TwilioOutput subscribes to one conversation's events and relays its audio
// frames onto a Twilio media stream as base64 media messages. Thinking-off
// becomes a mark event so the carrier knows the utterance is complete.
type TwilioOutput struct {
	ctx       context.Context
	cancel    context.CancelFunc
	events    <-chan types.Event
	streamSid string
	ws        *websocket.Conn
	log       *logrus.Logger
}

// NewTwilioOutput attaches an output worker to a conversation's event feed.
func NewTwilioOutput(streamSid string, ws *websocket.Conn, fanout *queue.Fanout, conversationID string, log *logrus.Logger) (*TwilioOutput, error) {
	if streamSid == "" {
		return nil, fmt.Errorf("stream sid is required")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TwilioOutput{
		ctx:       ctx,
		cancel:    cancel,
		events:    fanout.Subscribe(ctx, conversationID),
		streamSid: streamSid,
		ws:        ws,
		log:       log,
	}, nil
}

// Start relays events until the subscription closes or Stop is called.
func (o *TwilioOutput) Start() {
	go func() {
		for {
			select {
			case <-o.ctx.Done():
				return
			case ev, ok := <-o.events:
				if !ok {
					return
				}
				switch {
				case ev.Type == types.EventAudioChunk:
					o.sendMediaEvent(base64.StdEncoding.EncodeToString(ev.Audio))
				case ev.Type == types.EventThinking && !ev.Active:
					o.sendMarkEvent()
				}
			}
		}
	}()
}

func (o *TwilioOutput) sendMediaEvent(payload string) {
	mediaMsg := map[string]interface{}{
		"event":     "media",
		"streamSid": o.streamSid,
		"media": map[string]string{
			"payload": payload,
		},
	}
	if err := o.ws.WriteJSON(mediaMsg); err != nil {
		o.log.WithError(err).Warn("TwilioOutput media write error")
	}
}

func (o *TwilioOutput) sendMarkEvent() {
	markMsg := map[string]interface{}{
		"event":     "mark",
		"streamSid": o.streamSid,
		"mark": map[string]string{
			"name": "utterance complete",
		},
	}
	if err := o.ws.WriteJSON(markMsg); err != nil {
		o.log.WithError(err).Warn("TwilioOutput mark write error")
	}
}

// Stop ends the relay and its event subscription.
func (o *TwilioOutput) Stop() {
	o.cancel()
}
