// Package id generates time-sortable identifiers used as request ids.
package id

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// Crockford's Base32 alphabet (no I, L, O, U).
const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// ULIDLength is the length of a ULID string.
const ULIDLength = 26

// NewULID returns a 26 character ULID: 48-bit millisecond timestamp
// followed by 80 random bits, both Crockford base32 encoded.
func NewULID() string {
	return ulidAt(time.Now())
}

func ulidAt(t time.Time) string {
	var raw [16]byte
	binary.BigEndian.PutUint16(raw[0:2], uint16(uint64(t.UnixMilli())>>32))
	binary.BigEndian.PutUint32(raw[2:6], uint32(t.UnixMilli()))
	if _, err := rand.Read(raw[6:]); err != nil {
		binary.BigEndian.PutUint64(raw[6:14], uint64(t.UnixNano()))
	}

	// 128 bits -> 26 base32 digits; the first digit carries the top 3 bits.
	var out [ULIDLength]byte
	hi := binary.BigEndian.Uint64(raw[0:8])
	lo := binary.BigEndian.Uint64(raw[8:16])
	for i := ULIDLength - 1; i >= 0; i-- {
		out[i] = alphabet[lo&0x1F]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(out[:])
}

// Valid reports whether s looks like a ULID.
func Valid(s string) bool {
	if len(s) != ULIDLength || s[0] > '7' {
		return false
	}
	for i := range len(s) {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'A' && c <= 'Z' && c != 'I' && c != 'L' && c != 'O' && c != 'U') {
			return false
		}
	}
	return true
}
