package tx

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{
		tx: &Transaction{Version: Version},
	}
}

// AddInput adds an input spending the output with the given key image.
func (b *Builder) AddInput(keyImage types.KeyImage, amount uint64) *Builder {
	b.tx.Inputs = append(b.tx.Inputs, Input{KeyImage: keyImage, Amount: amount})
	return b
}

// AddOutput adds an output paying amount to the spend key.
func (b *Builder) AddOutput(amount uint64, key types.PublicKey) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{Amount: amount, Key: key})
	return b
}

// SetUnlockTime sets the height or timestamp before which outputs cannot be spent.
func (b *Builder) SetUnlockTime(unlockTime uint64) *Builder {
	b.tx.UnlockTime = unlockTime
	return b
}

// SetPaymentID sets the hex payment ID.
func (b *Builder) SetPaymentID(paymentID string) *Builder {
	b.tx.PaymentID = paymentID
	return b
}

// SetTxPublicKey sets the per-transaction public key.
func (b *Builder) SetTxPublicKey(key types.PublicKey) *Builder {
	b.tx.TxPublicKey = key
	return b
}

// SignMulti signs each input with the key that owns it.
// owners maps each input's key image to the spend key that received it.
// signers maps each spend key to its private key.
func (b *Builder) SignMulti(
	signers map[types.PublicKey]types.SecretKey,
	owners map[types.KeyImage]types.PublicKey,
) error {
	hash := b.tx.Hash()

	// Same key always produces a valid sig for the same hash; sign once per key.
	cache := make(map[types.PublicKey][]byte)

	for i := range b.tx.Inputs {
		owner, ok := owners[b.tx.Inputs[i].KeyImage]
		if !ok {
			return fmt.Errorf("no owner for input %d key image", i)
		}
		key, ok := signers[owner]
		if !ok {
			return fmt.Errorf("no signer for spend key %s (input %d)", owner, i)
		}

		sig, cached := cache[owner]
		if !cached {
			var err error
			sig, err = crypto.Sign(key, hash)
			if err != nil {
				return fmt.Errorf("sign input %d: %w", i, err)
			}
			cache[owner] = sig
		}
		b.tx.Inputs[i].Signature = sig
		b.tx.Inputs[i].PubKey = owner
	}
	return nil
}

// Build returns the constructed transaction.
// Does NOT validate; call tx.Validate() separately.
func (b *Builder) Build() *Transaction {
	return b.tx
}
