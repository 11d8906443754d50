package relay

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// AuthHeader carries the session token on the channel upgrade request.
const AuthHeader = "X-Alcove-Token"

// GenerateToken returns a fresh session token.
func GenerateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// VerifyToken compares tokens in constant time.
func VerifyToken(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
