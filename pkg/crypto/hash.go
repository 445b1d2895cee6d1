// Package crypto provides the key and hashing primitives used by the wallet.
package crypto

import (
	"encoding/binary"

	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashParts hashes the concatenation of parts without allocating the joined
// buffer.
func HashParts(parts ...[]byte) types.Hash {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

var keyImageDomain = []byte("klingnet-wallet/key-image")

// DeriveKeyImage returns the key image of output index of transaction txHash
// paid to owner. The sender and every watcher of owner compute the same
// image, so a spent output is recognised wherever it reappears as an input.
func DeriveKeyImage(txHash types.Hash, index uint32, owner types.PublicKey) types.KeyImage {
	var idx [4]byte
	binary.LittleEndian.PutUint32(idx[:], index)
	return types.KeyImage(HashParts(keyImageDomain, txHash[:], idx[:], owner[:]))
}
