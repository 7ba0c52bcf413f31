// Package duelid generates identifiers for duel games and bets: UUIDv7 encoded
// as a 26-character Crockford base32 string, so ids sort by creation time.
package duelid

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"time"
)

const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Length is the number of characters in an encoded id.
const Length = 26

// New returns a fresh id using the current time and crypto randomness.
func New() string {
	id, err := NewAt(time.Now(), rand.Reader)
	if err != nil {
		panic("duelid: " + err.Error())
	}
	return id
}

// NewAt builds an id from an explicit timestamp and randomness source.
// Injectable for deterministic tests.
func NewAt(t time.Time, random io.Reader) (string, error) {
	var u [16]byte

	ms := t.UnixMilli()
	u[0] = byte(ms >> 40)
	u[1] = byte(ms >> 32)
	u[2] = byte(ms >> 24)
	u[3] = byte(ms >> 16)
	u[4] = byte(ms >> 8)
	u[5] = byte(ms)

	if _, err := io.ReadFull(random, u[6:]); err != nil {
		return "", fmt.Errorf("read randomness: %w", err)
	}

	// UUIDv7 version and variant bits.
	u[6] = (u[6] & 0x0f) | 0x70
	u[8] = (u[8] & 0x3f) | 0x80

	return encode(u), nil
}

// encode packs 128 bits into 26 base32 characters (130 bits, zero padded).
func encode(u [16]byte) string {
	var out [Length]byte
	for i := range out {
		bit := i * 5
		idx := bit / 8
		off := bit % 8

		var v byte
		if off <= 3 {
			v = (u[idx] >> (3 - off)) & 0x1f
		} else {
			v = (u[idx] << (off - 3)) & 0x1f
			if idx+1 < len(u) {
				v |= u[idx+1] >> (11 - off)
			}
		}
		out[i] = alphabet[v]
	}
	return string(out[:])
}

// Validate checks that an id is well formed before it is used in a lookup.
func Validate(id string) error {
	if len(id) != Length {
		return fmt.Errorf("id must be %d characters, got %d", Length, len(id))
	}
	// First character carries the two padding bits, so it cannot exceed '7'.
	if id[0] > '7' {
		return fmt.Errorf("id first character out of range: %c", id[0])
	}
	for i, c := range id {
		if !strings.ContainsRune(alphabet, c) {
			return fmt.Errorf("invalid character %q at position %d", c, i)
		}
	}
	return nil
}
