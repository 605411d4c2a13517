package models

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
)

// NewID returns a 16-character opaque identifier (8 random bytes, hex).
// Used for users, files and share links.
func NewID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failure means the process cannot do anything useful.
		panic("models: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// NewShareToken returns a URL-safe share token (24 random bytes, 32 chars).
func NewShareToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic("models: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// ValidToken reports whether a share token is plausibly one of ours:
// URL-safe base64, at least 8 characters. Used before hitting the database
// so junk requests are rejected cheaply.
func ValidToken(token string) bool {
	if len(token) < 8 || len(token) > 128 {
		return false
	}
	for _, c := range token {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
