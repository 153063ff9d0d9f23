package internal

import (
	"crypto/rand"
	"encoding/base64"
)

const sessionTokenBytes = 16

// NewSessionToken returns a fresh 128-bit session id, base64url without
// padding. Session ids are bearer capabilities for a vaulted connection.
func NewSessionToken() (string, error) {
	var raw [sessionTokenBytes]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ShortID returns a log-safe prefix of a session token. Full tokens are
// capabilities and never go to logs.
func ShortID(token string) string {
	if len(token) <= 6 {
		return token
	}
	return token[:6] + "..."
}
