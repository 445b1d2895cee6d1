// Package wallet implements mnemonic seeds and deterministic sub-wallet keys.
package wallet

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits is the entropy size of a 24-word mnemonic; it is
// exactly one private spend key.
const MnemonicEntropyBits = 256

// ErrInvalidMnemonic is returned for seeds that fail BIP-39 validation or do
// not encode a usable private key.
var ErrInvalidMnemonic = errors.New("invalid mnemonic seed")

// PrivateKeyToMnemonic encodes a private spend key as a 24-word BIP-39
// mnemonic.
func PrivateKeyToMnemonic(key types.SecretKey) (string, error) {
	mnemonic, err := bip39.NewMnemonic(key[:])
	if err != nil {
		return "", fmt.Errorf("encode mnemonic: %w", err)
	}
	return mnemonic, nil
}

// MnemonicToPrivateKey decodes a 24-word mnemonic back into the private
// spend key it encodes.
func MnemonicToPrivateKey(mnemonic string) (types.SecretKey, error) {
	if !ValidateMnemonic(mnemonic) {
		return types.SecretKey{}, ErrInvalidMnemonic
	}
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return types.SecretKey{}, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	if len(entropy)*8 != MnemonicEntropyBits {
		return types.SecretKey{}, fmt.Errorf("%w: need %d words, got a %d-bit seed",
			ErrInvalidMnemonic, 24, len(entropy)*8)
	}

	var key types.SecretKey
	copy(key[:], entropy)
	if err := crypto.ValidateSecretKey(key); err != nil {
		return types.SecretKey{}, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return key, nil
}

// ValidateMnemonic checks if a mnemonic is valid per BIP-39
// (correct word count, valid words, valid checksum).
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}
