// Package fhash computes the 20-byte SHA-1 digest used to verify files
// end-to-end between sender and receiver.
package fhash

import (
	"crypto/sha1"
	"encoding/hex"
)

// Len is the digest size in bytes.
const Len = sha1.Size // 20

// Hash is an opaque 20-byte digest. The zero value is NullHash.
type Hash [Len]byte

// NullHash is the all-zero sentinel meaning "not available".
var NullHash Hash

// Sum hashes data and returns the resulting digest.
func Sum(data []byte) Hash {
	var h Hash
	copy(h[:], sha1sum(data))
	return h
}

func sha1sum(data []byte) []byte {
	sum := sha1.Sum(data)
	return sum[:]
}

// FromBytes copies up to Len bytes from b into a Hash, matching the wire
// representation used in packet payloads.
func FromBytes(b []byte) Hash {
	var h Hash
	n := len(b)
	if n > Len {
		n = Len
	}
	copy(h[:n], b[:n])
	return h
}

// Equal reports byte-equality between two hashes.
func (h Hash) Equal(o Hash) bool {
	return h == o
}

// String renders the digest as lowercase hex, always 40 characters.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the digest as a plain byte slice, for placing in a packet
// payload.
func (h Hash) Bytes() []byte {
	return h[:]
}
