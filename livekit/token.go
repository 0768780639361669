// Package livekit mints access tokens for the media-room service so
// browser clients can join a voice room directly.
package livekit

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// DefaultTTL keeps tokens valid for a day, long enough for any session.
const DefaultTTL = 24 * time.Hour

// videoGrant is the LiveKit permission block embedded in the token.
func videoGrant(room string) map[string]interface{} {
	return map[string]interface{}{
		"roomJoin":          true,
		"room":              room,
		"canPublish":        true,
		"canSubscribe":      true,
		"canPublishSources": []string{"microphone"},
	}
}

// NewAccessToken signs an HS256 room-join token for identity. An empty
// identity gets a random one, mirroring anonymous browser clients.
func NewAccessToken(apiKey, apiSecret, room, identity string, ttl time.Duration) (string, string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", "", fmt.Errorf("livekit api key or secret not configured")
	}
	if identity == "" {
		identity = uuid.NewString()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"iss":   apiKey,
		"sub":   identity,
		"video": videoGrant(room),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(apiSecret))
	if err != nil {
		return "", "", fmt.Errorf("sign livekit token: %w", err)
	}
	return token, identity, nil
}
