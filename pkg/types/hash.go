// Package types defines the primitive types shared by the wallet packages.
package types

import (
	"encoding/hex"
	"fmt"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash represents a 256-bit hash value (transaction hashes, block hashes).
type Hash [HashSize]byte

// KeyImage uniquely identifies a spendable input. Spending the same input twice
// produces the same key image, which is how double spends are detected.
type KeyImage Hash

// IsZero returns true if the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// MarshalText encodes the hash as a hex string. Implementing TextMarshaler
// lets hashes be used as JSON object keys.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex string into a hash.
func (h *Hash) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*h = Hash{}
		return nil
	}
	parsed, err := HexToHash(string(data))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// HexToHash converts a hex string to a Hash.
// Returns an error if the string is not exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// String returns the hex-encoded key image.
func (k KeyImage) String() string {
	return Hash(k).String()
}

// MarshalText encodes the key image as a hex string.
func (k KeyImage) MarshalText() ([]byte, error) {
	return Hash(k).MarshalText()
}

// UnmarshalText decodes a hex string into a key image.
func (k *KeyImage) UnmarshalText(data []byte) error {
	return (*Hash)(k).UnmarshalText(data)
}
