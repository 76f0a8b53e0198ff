// Package fingerprint defines the content fingerprint used as object
// identity throughout castore. A fingerprint is the SHA-256 digest of a
// blob's raw bytes: two blobs with identical bytes always share a
// fingerprint, and the fingerprint is the only key objects are stored
// under.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// Size is the width of a fingerprint in bytes.
const Size = sha256.Size

// HexLen is the length of the lowercase hex form of a fingerprint.
const HexLen = Size * 2

// Fingerprint is a fixed-width content digest. It is a value type and
// safe to use as a map key.
type Fingerprint [Size]byte

// Compute returns the fingerprint of data. Empty input is valid and
// maps to the well-known digest of the empty byte sequence.
func Compute(data []byte) Fingerprint {
	return sha256.Sum256(data)
}

// Parse decodes a lowercase or uppercase hex fingerprint.
func Parse(s string) (Fingerprint, error) {
	var fp Fingerprint
	if len(s) != HexLen {
		return fp, fmt.Errorf("invalid fingerprint length %d, want %d", len(s), HexLen)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fp, fmt.Errorf("invalid fingerprint %q: %w", s, err)
	}
	copy(fp[:], raw)
	return fp, nil
}

// FromBytes converts a raw digest, as stored in the index, back into a
// Fingerprint.
func FromBytes(b []byte) (Fingerprint, error) {
	var fp Fingerprint
	if len(b) != Size {
		return fp, fmt.Errorf("invalid fingerprint width %d, want %d", len(b), Size)
	}
	copy(fp[:], b)
	return fp, nil
}

// String returns the lowercase hex form.
func (fp Fingerprint) String() string {
	return hex.EncodeToString(fp[:])
}

// Bytes returns the raw digest as a fresh slice.
func (fp Fingerprint) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, fp[:])
	return out
}

// Compare defines a bytewise total order over fingerprints, used for
// stable dump and listing order.
func Compare(a, b Fingerprint) int {
	return bytes.Compare(a[:], b[:])
}

// Sort orders fingerprints in place by Compare.
func Sort(fps []Fingerprint) {
	sort.Slice(fps, func(i, j int) bool {
		return Compare(fps[i], fps[j]) < 0
	})
}
