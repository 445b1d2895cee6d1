package crypto

import (
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// Key validation errors.
var (
	ErrInvalidSecretKey = errors.New("invalid private key")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// viewKeyDomain separates the view key derivation from every other use of the
// spend key.
var viewKeyDomain = []byte("klingnet-wallet/view-key")

// KeyPair is a secret key and its public key.
type KeyPair struct {
	PublicKey types.PublicKey
	SecretKey types.SecretKey
}

// GenerateKeys creates a new random key pair.
func GenerateKeys() (KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate key: %w", err)
	}
	defer priv.Zero()
	return keyPairFromPriv(priv), nil
}

func keyPairFromPriv(priv *secp256k1.PrivateKey) KeyPair {
	var kp KeyPair
	copy(kp.SecretKey[:], priv.Serialize())
	copy(kp.PublicKey[:], priv.PubKey().SerializeCompressed())
	return kp
}

// ValidateSecretKey checks the key is a non-zero scalar below the curve order.
func ValidateSecretKey(k types.SecretKey) error {
	var s secp256k1.ModNScalar
	if overflow := s.SetByteSlice(k[:]); overflow {
		return fmt.Errorf("%w: scalar exceeds curve order", ErrInvalidSecretKey)
	}
	if s.IsZero() {
		return fmt.Errorf("%w: zero scalar", ErrInvalidSecretKey)
	}
	return nil
}

// ValidatePublicKey checks the key decodes to a point on the curve.
func ValidatePublicKey(k types.PublicKey) error {
	if _, err := secp256k1.ParsePubKey(k[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return nil
}

// SecretKeyToPublicKey returns the public key for a valid secret key.
func SecretKeyToPublicKey(k types.SecretKey) (types.PublicKey, error) {
	if err := ValidateSecretKey(k); err != nil {
		return types.PublicKey{}, err
	}
	priv := secp256k1.PrivKeyFromBytes(k[:])
	defer priv.Zero()
	var pub types.PublicKey
	copy(pub[:], priv.PubKey().SerializeCompressed())
	return pub, nil
}

// ViewFromSpend deterministically derives the private view key from a private
// spend key: BLAKE3(domain || spend) reduced modulo the curve order.
func ViewFromSpend(spend types.SecretKey) types.SecretKey {
	h := HashParts(viewKeyDomain, spend[:])
	priv := secp256k1.PrivKeyFromBytes(h[:])
	defer priv.Zero()
	var view types.SecretKey
	copy(view[:], priv.Serialize())
	return view
}

// ViewKeyPairFromSpend returns the full view key pair derived from spend.
func ViewKeyPairFromSpend(spend types.SecretKey) (KeyPair, error) {
	view := ViewFromSpend(spend)
	pub, err := SecretKeyToPublicKey(view)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PublicKey: pub, SecretKey: view}, nil
}

// PrivateKeysToAddress derives the address of a spend/view secret key pair.
func PrivateKeysToAddress(spend, view types.SecretKey) (types.Address, error) {
	spendPub, err := SecretKeyToPublicKey(spend)
	if err != nil {
		return types.Address{}, fmt.Errorf("spend key: %w", err)
	}
	viewPub, err := SecretKeyToPublicKey(view)
	if err != nil {
		return types.Address{}, fmt.Errorf("view key: %w", err)
	}
	return types.Address{SpendKey: spendPub, ViewKey: viewPub}, nil
}

// Sign produces a Schnorr signature over a 32-byte hash.
func Sign(k types.SecretKey, hash types.Hash) ([]byte, error) {
	priv := secp256k1.PrivKeyFromBytes(k[:])
	defer priv.Zero()
	sig, err := schnorr.Sign(priv, hash[:])
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// VerifySignature checks a Schnorr signature against a hash and a public
// key. Returns false on any error.
func VerifySignature(hash types.Hash, signature []byte, pub types.PublicKey) bool {
	pubKey, err := secp256k1.ParsePubKey(pub[:])
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(hash[:], pubKey)
}
