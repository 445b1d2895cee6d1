package types

import (
	"encoding/hex"
	"fmt"
)

// Key sizes in bytes.
const (
	SecretKeySize = 32
	PublicKeySize = 33
)

// SecretKey is a raw 32-byte secp256k1 private scalar.
type SecretKey [SecretKeySize]byte

// PublicKey is a compressed 33-byte secp256k1 public key.
type PublicKey [PublicKeySize]byte

// IsZero returns true if the key is all zeros.
func (k SecretKey) IsZero() bool {
	return k == SecretKey{}
}

// String returns the hex-encoded key.
func (k SecretKey) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalText encodes the key as hex.
func (k SecretKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a hex string into a secret key.
func (k *SecretKey) UnmarshalText(data []byte) error {
	parsed, err := HexToSecretKey(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Zero wipes the key in place.
func (k *SecretKey) Zero() {
	for i := range k {
		k[i] = 0
	}
}

// IsZero returns true if the key is all zeros.
func (k PublicKey) IsZero() bool {
	return k == PublicKey{}
}

// String returns the hex-encoded key.
func (k PublicKey) String() string {
	return hex.EncodeToString(k[:])
}

// MarshalText encodes the key as hex. Public keys are used as JSON map keys.
func (k PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a hex string into a public key.
func (k *PublicKey) UnmarshalText(data []byte) error {
	parsed, err := HexToPublicKey(string(data))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// HexToSecretKey parses a 64-character hex string. It does not check that the
// scalar is valid on the curve; use crypto.ValidateSecretKey for that.
func HexToSecretKey(s string) (SecretKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return SecretKey{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != SecretKeySize {
		return SecretKey{}, fmt.Errorf("secret key must be %d bytes, got %d", SecretKeySize, len(b))
	}
	var k SecretKey
	copy(k[:], b)
	return k, nil
}

// HexToPublicKey parses a 66-character hex string.
func HexToPublicKey(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != PublicKeySize {
		return PublicKey{}, fmt.Errorf("public key must be %d bytes, got %d", PublicKeySize, len(b))
	}
	var k PublicKey
	copy(k[:], b)
	return k, nil
}
