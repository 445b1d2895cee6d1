package types

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// Address HRP (human-readable part) constants for bech32 encoding.
const (
	MainnetHRP = "kgw"
	TestnetHRP = "tkgw"
)

// addressPayloadSize is spend key || view key.
const addressPayloadSize = 2 * PublicKeySize

// activeHRP is the address HRP used by String() and ParseAddress().
// Set once at startup via SetAddressHRP(). Default is mainnet.
var activeHRP = MainnetHRP

// SetAddressHRP sets the active address HRP (call once at startup).
func SetAddressHRP(hrp string) {
	activeHRP = hrp
}

// GetAddressHRP returns the currently active address HRP.
func GetAddressHRP() string {
	return activeHRP
}

// Address is a wallet address: the public spend key that identifies the
// sub-wallet and the public view key shared by every sub-wallet of a container.
type Address struct {
	SpendKey PublicKey
	ViewKey  PublicKey
}

// String returns the bech32-encoded address (e.g. "kgw1...").
func (a Address) String() string {
	payload := make([]byte, 0, addressPayloadSize)
	payload = append(payload, a.SpendKey[:]...)
	payload = append(payload, a.ViewKey[:]...)

	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return activeHRP + ":" + hex.EncodeToString(payload)
	}
	s, err := bech32.Encode(activeHRP, conv)
	if err != nil {
		// Fallback to hex if encoding fails (should never happen).
		return activeHRP + ":" + hex.EncodeToString(payload)
	}
	return s
}

// ParseAddress decodes a bech32 address string. The HRP must match the
// active network.
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	hrp, data, err := bech32.DecodeNoLimit(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid bech32 address: %w", err)
	}
	if hrp != activeHRP {
		return Address{}, fmt.Errorf("address prefix %q does not match network prefix %q", hrp, activeHRP)
	}
	payload, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address payload: %w", err)
	}
	if len(payload) != addressPayloadSize {
		return Address{}, fmt.Errorf("address payload must be %d bytes, got %d", addressPayloadSize, len(payload))
	}
	var a Address
	copy(a.SpendKey[:], payload[:PublicKeySize])
	copy(a.ViewKey[:], payload[PublicKeySize:])
	return a, nil
}

// PaymentIDSize is the decoded length of a payment ID.
const PaymentIDSize = 32

// ValidatePaymentID checks a payment ID is empty or 64 hex characters.
func ValidatePaymentID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) != 2*PaymentIDSize {
		return fmt.Errorf("payment ID must be %d hex characters, got %d", 2*PaymentIDSize, len(id))
	}
	if _, err := hex.DecodeString(id); err != nil {
		return fmt.Errorf("payment ID is not hex: %w", err)
	}
	return nil
}
