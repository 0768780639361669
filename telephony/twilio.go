// Package telephony places outbound calls whose media streams feed the
// voice pipeline.
package telephony

import (
	"fmt"
	"net/url"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio drives outbound calls through the Twilio REST API and answers the
// TwiML callback that bridges each call onto the gateway's voice websocket.
type Twilio struct {
	client    *twilio.RestClient
	from      string
	baseURL   string
	baseWSURL string
}

// New validates configuration and returns the provider. All four settings
// are required; telephony is optional at the process level and callers
// treat a construction error as "capability unavailable".
func New(accountSID, authToken, from, baseURL, baseWSURL string) (*Twilio, error) {
	if accountSID == "" || authToken == "" || from == "" {
		return nil, fmt.Errorf("twilio account sid, auth token and from number are required")
	}
	if baseURL == "" || baseWSURL == "" {
		return nil, fmt.Errorf("base http and websocket urls are required for twilio callbacks")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &Twilio{client: client, from: from, baseURL: baseURL, baseWSURL: baseWSURL}, nil
}

// PlaceCall dials to and points the call's TwiML at this gateway, tagged
// with the conversation id the media stream will use. It returns the call
// sid.
func (t *Twilio) PlaceCall(to, conversationID string) (string, error) {
	params := &openapi.CreateCallParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetUrl(fmt.Sprintf("%s/api/twiml?conversationId=%s", t.baseURL, url.QueryEscape(conversationID)))
	params.SetMethod("GET")

	resp, err := t.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("create call: no sid returned")
	}
	return *resp.Sid, nil
}

// TwiML renders the connect instruction that streams call media to the
// voice websocket for the given conversation.
func (t *Twilio) TwiML(conversationID string) string {
	return fmt.Sprintf(`<Response>
  <Connect>
    <Stream url="%s/api/voice/%s" bidirectional="true"/>
  </Connect>
</Response>`, t.baseWSURL, url.PathEscape(conversationID))
}
