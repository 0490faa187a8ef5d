package rooms

import (
	"crypto/rand"
	"fmt"
)

// Room codes are uppercase base36 so they survive being read aloud, pasted
// into chat, or embedded verbatim in a URL path segment. Matching is
// case-sensitive and exact; no normalization is performed anywhere.
const roomCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// DefaultCodeLength is the number of characters in a generated room code.
const DefaultCodeLength = 8

// NewRoomCode returns a fresh random room code of the given length.
//
// Rejection sampling keeps the distribution uniform over the alphabet.
func NewRoomCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultCodeLength
	}

	// Largest multiple of len(alphabet) that fits in a byte; values at or
	// above it are resampled to avoid modulo bias.
	max := byte(256 - 256%len(roomCodeAlphabet))

	out := make([]byte, 0, length)
	var buf [32]byte
	for len(out) < length {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		for _, b := range buf {
			if b >= max {
				continue
			}
			out = append(out, roomCodeAlphabet[int(b)%len(roomCodeAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}

// ValidRoomID reports whether an externally supplied room identifier is safe
// to use as a URL path segment. Generated codes always pass; user-supplied
// slugs are restricted to a conservative character set.
func ValidRoomID(id string) bool {
	if len(id) == 0 || len(id) > 64 {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
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
