// Package tts contains speech-synthesis provider implementations.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/mrsingh-rishi/voice-gateway/providers"
)

const elevenLabsBaseURL = "https://api.elevenlabs.io/v1/text-to-speech"

// defaultVoiceID is ElevenLabs' "George" stock voice.
const defaultVoiceID = "JBFqnCBsd6RMkjVDRZzb"

// ElevenLabs streams synthesized speech from the ElevenLabs HTTP API as raw
// MP3 bytes. Chunk boundaries are whatever the HTTP stream delivers and
// carry no meaning; the frame reassembler downstream restores frame
// boundaries.
type ElevenLabs struct {
	apiKey  string
	voiceID string
	modelID string
	http    *http.Client
	log     *logrus.Logger
}

// NewElevenLabs validates configuration and returns the provider.
func NewElevenLabs(apiKey, voiceID, modelID string, log *logrus.Logger) (*ElevenLabs, error) {
	if apiKey == "" {
		return nil, &providers.ConfigError{Provider: "elevenlabs", Missing: "ELEVENLABS_API_KEY"}
	}
	if voiceID == "" {
		voiceID = defaultVoiceID
	}
	if modelID == "" {
		modelID = "eleven_multilingual_v2"
	}
	return &ElevenLabs{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: modelID,
		http:    http.DefaultClient,
		log:     log,
	}, nil
}

// Synthesize requests streamed speech for text and delivers the response
// body as a lazy sequence of byte chunks. The channel may be empty and is
// closed when the stream ends or ctx is cancelled.
func (c *ElevenLabs) Synthesize(ctx context.Context, text string) (<-chan []byte, error) {
	endpoint, _ := url.Parse(fmt.Sprintf("%s/%s/stream", elevenLabsBaseURL, c.voiceID))
	q := endpoint.Query()
	q.Set("output_format", "mp3_44100_128")
	endpoint.RawQuery = q.Encode()

	payload := map[string]interface{}{
		"text":     text,
		"model_id": c.modelID,
		"voice_settings": map[string]float64{
			"stability":        0.75,
			"similarity_boost": 0.7,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &providers.ProviderError{Provider: "elevenlabs", Err: fmt.Errorf("marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, &providers.ProviderError{Provider: "elevenlabs", Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("xi-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &providers.ProviderError{Provider: "elevenlabs", Err: fmt.Errorf("request: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &providers.ProviderError{Provider: "elevenlabs", Err: fmt.Errorf("bad status: %s", resp.Status)}
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if err != io.EOF && ctx.Err() == nil {
					c.log.WithError(err).Warn("ElevenLabs stream ended early")
				}
				return
			}
		}
	}()
	return out, nil
}
