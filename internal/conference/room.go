package conference

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

const (
	shortIDLen      = 8
	shortHashLen    = 10
	passwordEntropy = 24 // bytes of randomness in a room password
)

// RoomNamer derives conference room names. Course and session IDs are public
// and enumerable, so every derived name mixes in a random nonce: knowing the
// IDs is not enough to guess the room.
//
// Naming is two-phase. A provisional name is computed before the session row
// exists (its durable ID is unknown until the insert returns) and must never
// leave the storage layer; the final name replaces it in the same
// transaction once the real ID is known.
type RoomNamer struct {
	prefix string
}

// NewRoomNamer creates a namer with the given room prefix.
func NewRoomNamer(prefix string) *RoomNamer {
	if prefix == "" {
		prefix = "room"
	}
	return &RoomNamer{prefix: prefix}
}

// Provisional returns a placeholder room name for a session that has not
// been persisted yet.
func (n *RoomNamer) Provisional(courseID uuid.UUID) (string, error) {
	nonce, err := randomNonce()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-pending-%s", n.prefix, shortID(courseID), shortHash(courseID, uuid.Nil, nonce)), nil
}

// Final returns the durable room name for a persisted session.
func (n *RoomNamer) Final(courseID, sessionID uuid.UUID) (string, error) {
	nonce, err := randomNonce()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%s-%s", n.prefix, shortID(courseID), shortID(sessionID), shortHash(courseID, sessionID, nonce)), nil
}

// GeneratePassword returns a random high-entropy room password. It is not
// derived from any public identifier and is handed only to authorized
// joiners.
func GeneratePassword() (string, error) {
	b := make([]byte, passwordEntropy)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate room password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func randomNonce() ([]byte, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generate room nonce: %w", err)
	}
	return b, nil
}

func shortID(id uuid.UUID) string {
	s := id.String()
	return s[:shortIDLen]
}

func shortHash(courseID, sessionID uuid.UUID, nonce []byte) string {
	h := sha256.New()
	h.Write(courseID[:])
	h.Write(sessionID[:])
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil))[:shortHashLen]
}
