// Package tx defines the wallet transaction format and validation.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Version is the only transaction version produced by the wallet.
const Version = 1

// Transaction is a signed transfer between key holders.
type Transaction struct {
	Version     uint32          `json:"version"`
	UnlockTime  uint64          `json:"unlock_time"`
	PaymentID   string          `json:"payment_id,omitempty"`
	TxPublicKey types.PublicKey `json:"tx_public_key"`
	Inputs      []Input         `json:"inputs"`
	Outputs     []Output        `json:"outputs"`
}

// Input spends a previously received output, identified by its key image.
type Input struct {
	KeyImage  types.KeyImage  `json:"key_image"`
	Amount    uint64          `json:"amount"`
	Signature []byte          `json:"signature"`
	PubKey    types.PublicKey `json:"pubkey"`
}

// inputJSON is the JSON representation of Input with a hex-encoded signature.
type inputJSON struct {
	KeyImage  types.KeyImage  `json:"key_image"`
	Amount    uint64          `json:"amount"`
	Signature *string         `json:"signature"`
	PubKey    types.PublicKey `json:"pubkey"`
}

// MarshalJSON encodes the input with a hex-encoded signature.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{KeyImage: in.KeyImage, Amount: in.Amount, PubKey: in.PubKey}
	if in.Signature != nil {
		s := hex.EncodeToString(in.Signature)
		j.Signature = &s
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes an input with a hex-encoded signature.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.KeyImage = j.KeyImage
	in.Amount = j.Amount
	in.PubKey = j.PubKey
	if j.Signature != nil {
		b, err := hex.DecodeString(*j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	return nil
}

// Output pays Amount to the holder of the spend key Key.
type Output struct {
	Amount uint64          `json:"amount"`
	Key    types.PublicKey `json:"key"`
}

// Hash computes the transaction ID (BLAKE3 hash of the signing data).
// Signatures are excluded to avoid a circular dependency.
func (tx *Transaction) Hash() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical byte representation used for signing.
// Format: version(4) | unlock_time(8) | payment_id_len(1) + payment_id | tx_pubkey(33) |
// input_count(4) | [key_image(32) + amount(8)]... | output_count(4) | [amount(8) + key(33)]...
func (tx *Transaction) SigningBytes() []byte {
	var buf []byte

	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)
	buf = binary.LittleEndian.AppendUint64(buf, tx.UnlockTime)
	buf = append(buf, byte(len(tx.PaymentID)))
	buf = append(buf, tx.PaymentID...)
	buf = append(buf, tx.TxPublicKey[:]...)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		buf = append(buf, in.KeyImage[:]...)
		buf = binary.LittleEndian.AppendUint64(buf, in.Amount)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = binary.LittleEndian.AppendUint64(buf, out.Amount)
		buf = append(buf, out.Key[:]...)
	}

	return buf
}

// TotalInputValue returns the sum of all input amounts.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalInputValue() (uint64, error) {
	var total uint64
	for _, in := range tx.Inputs {
		if total > math.MaxUint64-in.Amount {
			return 0, fmt.Errorf("input value overflow")
		}
		total += in.Amount
	}
	return total, nil
}

// TotalOutputValue returns the sum of all output amounts.
// Returns an error if the sum overflows uint64.
func (tx *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range tx.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, fmt.Errorf("output value overflow")
		}
		total += out.Amount
	}
	return total, nil
}

// Fee is the difference between inputs and outputs. Coinbase transactions
// (no inputs) have zero fee.
func (tx *Transaction) Fee() (uint64, error) {
	if len(tx.Inputs) == 0 {
		return 0, nil
	}
	in, err := tx.TotalInputValue()
	if err != nil {
		return 0, err
	}
	out, err := tx.TotalOutputValue()
	if err != nil {
		return 0, err
	}
	if out > in {
		return 0, ErrOutputsExceedInputs
	}
	return in - out, nil
}

// Serialize returns the wire payload submitted to the daemon.
func (tx *Transaction) Serialize() ([]byte, error) {
	return json.Marshal(tx)
}

// Deserialize parses a payload produced by Serialize.
func Deserialize(data []byte) (*Transaction, error) {
	var t Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return &t, nil
}
