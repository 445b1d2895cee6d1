package wallet

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
)

// BIP-44 derivation path constants for sub-wallets.
// Full path: m/44'/CoinType'/0'/0/index
const (
	// PurposeBIP44 is the BIP-44 purpose field (hardened).
	PurposeBIP44 = bip32.FirstHardenedChild + 44

	// CoinTypeKlingnet is our registered (placeholder) coin type (hardened).
	CoinTypeKlingnet = bip32.FirstHardenedChild + 8888

	// MaxSubWalletIndex is the largest index that can be derived without
	// hardening.
	MaxSubWalletIndex = bip32.FirstHardenedChild - 1
)

// SeedSize is the length of a BIP-39 seed in bytes (512 bits).
const SeedSize = 64

// HDKey represents a hierarchical deterministic key (BIP-32).
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// MasterKeyFromSpendKey builds the sub-wallet master key of a container from
// its primary private spend key, via the BIP-39 seed of the spend key's
// mnemonic.
func MasterKeyFromSpendKey(primary types.SecretKey) (*HDKey, error) {
	mnemonic, err := PrivateKeyToMnemonic(primary)
	if err != nil {
		return nil, err
	}
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("derive seed: %w", err)
	}
	return NewMasterKey(seed)
}

// DeriveChild derives a child key at the given index.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child}, nil
}

// DerivePath derives a key along a sequence of indices.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// PrivateKeyBytes returns the raw 32-byte private key.
// Returns nil if this is a public-only key.
func (k *HDKey) PrivateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	// bip32 may carry a leading 0x00 on private keys.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// DeriveSubWalletKeys returns the spend key pair of the sub-wallet at index,
// derived from the container's primary private spend key at
// m/44'/8888'/0'/0/index. The same primary key and index always give the
// same keys.
func DeriveSubWalletKeys(primary types.SecretKey, index uint64) (crypto.KeyPair, error) {
	if index > uint64(MaxSubWalletIndex) {
		return crypto.KeyPair{}, fmt.Errorf("sub-wallet index %d exceeds %d", index, MaxSubWalletIndex)
	}
	master, err := MasterKeyFromSpendKey(primary)
	if err != nil {
		return crypto.KeyPair{}, err
	}
	child, err := master.DerivePath(PurposeBIP44, CoinTypeKlingnet, bip32.FirstHardenedChild, 0, uint32(index))
	if err != nil {
		return crypto.KeyPair{}, err
	}

	raw := child.PrivateKeyBytes()
	if len(raw) != types.SecretKeySize {
		return crypto.KeyPair{}, fmt.Errorf("derived key has %d bytes", len(raw))
	}
	var secret types.SecretKey
	copy(secret[:], raw)
	pub, err := crypto.SecretKeyToPublicKey(secret)
	if err != nil {
		return crypto.KeyPair{}, err
	}
	return crypto.KeyPair{PublicKey: pub, SecretKey: secret}, nil
}
