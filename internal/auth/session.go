package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const sessionIDBytes = 32

// NewSessionID returns a 64-character hex token from crypto/rand.
func NewSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
