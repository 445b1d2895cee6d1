package tx

import (
	"errors"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Structural limits.
const (
	MaxInputs  = 1000
	MaxOutputs = 100
)

// Validation errors.
var (
	ErrNoInputs            = errors.New("transaction has no inputs")
	ErrNoOutputs           = errors.New("transaction has no outputs")
	ErrDuplicateInput      = errors.New("duplicate key image")
	ErrOutputOverflow      = errors.New("output values overflow")
	ErrZeroOutput          = errors.New("output value is zero")
	ErrMissingSig          = errors.New("input missing signature")
	ErrInvalidSig          = errors.New("invalid signature")
	ErrTooManyInputs       = errors.New("too many inputs")
	ErrTooManyOutputs      = errors.New("too many outputs")
	ErrOutputsExceedInputs = errors.New("outputs exceed inputs")
	ErrInvalidPaymentID    = errors.New("invalid payment id")
)

// Validate checks transaction structure and basic rules.
// This does NOT check that the inputs are unspent.
func (tx *Transaction) Validate() error {
	if len(tx.Inputs) == 0 {
		return ErrNoInputs
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(tx.Inputs) > MaxInputs {
		return fmt.Errorf("%w: %d inputs, max %d", ErrTooManyInputs, len(tx.Inputs), MaxInputs)
	}
	if len(tx.Outputs) > MaxOutputs {
		return fmt.Errorf("%w: %d outputs, max %d", ErrTooManyOutputs, len(tx.Outputs), MaxOutputs)
	}
	if err := types.ValidatePaymentID(tx.PaymentID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPaymentID, err)
	}

	seen := make(map[types.KeyImage]bool, len(tx.Inputs))
	for i, in := range tx.Inputs {
		if seen[in.KeyImage] {
			return fmt.Errorf("input %d: %w", i, ErrDuplicateInput)
		}
		seen[in.KeyImage] = true
		if len(in.Signature) == 0 {
			return fmt.Errorf("input %d: %w", i, ErrMissingSig)
		}
	}

	var totalOutput uint64
	for i, out := range tx.Outputs {
		if out.Amount == 0 {
			return fmt.Errorf("output %d: %w", i, ErrZeroOutput)
		}
		if totalOutput > math.MaxUint64-out.Amount {
			return fmt.Errorf("output %d: %w", i, ErrOutputOverflow)
		}
		totalOutput += out.Amount
	}

	_, err := tx.Fee()
	return err
}

// VerifySignatures checks that all input signatures are valid for this transaction.
func (tx *Transaction) VerifySignatures() error {
	hash := tx.Hash()
	for i, in := range tx.Inputs {
		if !crypto.VerifySignature(hash, in.Signature, in.PubKey) {
			return fmt.Errorf("input %d: %w", i, ErrInvalidSig)
		}
	}
	return nil
}
