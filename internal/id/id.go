package id

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// ConnectionPrefix is prepended to every WebSocket connection identifier.
const ConnectionPrefix = "ws-"

// Connection generates a unique identifier for a bridged WebSocket session.
// The format is "ws-" followed by the 32 hex digits of a UUID v4.
func Connection() string {
	return ConnectionPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// IsConnection reports whether s looks like an identifier produced by Connection.
func IsConnection(s string) bool {
	rest, ok := strings.CutPrefix(s, ConnectionPrefix)
	if !ok || len(rest) != 32 {
		return false
	}
	_, err := hex.DecodeString(rest)
	return err == nil
}

// Short generates a short random hex ID (16 characters).
// Suitable for user-facing IDs where brevity matters.
func Short() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
