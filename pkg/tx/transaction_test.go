package tx

import (
	"errors"
	"math"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

func testKey(t *testing.T) crypto.KeyPair {
	t.Helper()
	kp, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys() error: %v", err)
	}
	return kp
}

func TestTransaction_Hash_Deterministic(t *testing.T) {
	tx := &Transaction{
		Version: 1,
		Inputs:  []Input{{KeyImage: types.KeyImage{0x01}, Amount: 1500}},
		Outputs: []Output{{Amount: 1000}},
	}

	h1 := tx.Hash()
	h2 := tx.Hash()
	if h1 != h2 {
		t.Error("Hash() should be deterministic")
	}
	if h1.IsZero() {
		t.Error("Hash() should not be zero")
	}
}

func TestTransaction_Hash_ChangesWithContent(t *testing.T) {
	base := func() *Transaction {
		return &Transaction{
			Version: 1,
			Inputs:  []Input{{KeyImage: types.KeyImage{0x01}, Amount: 1500}},
			Outputs: []Output{{Amount: 1000}},
		}
	}
	h := base().Hash()

	mutations := map[string]func(*Transaction){
		"amount":     func(tx *Transaction) { tx.Outputs[0].Amount = 2000 },
		"unlock":     func(tx *Transaction) { tx.UnlockTime = 10 },
		"payment id": func(tx *Transaction) { tx.PaymentID = "ab" },
		"key image":  func(tx *Transaction) { tx.Inputs[0].KeyImage = types.KeyImage{0x02} },
		"tx key":     func(tx *Transaction) { tx.TxPublicKey = types.PublicKey{0x02} },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			tx := base()
			mutate(tx)
			if tx.Hash() == h {
				t.Error("hash did not change")
			}
		})
	}
}

func TestTransaction_Hash_IgnoresSignature(t *testing.T) {
	tx := &Transaction{
		Version: 1,
		Inputs:  []Input{{KeyImage: types.KeyImage{0x01}, Amount: 1500}},
		Outputs: []Output{{Amount: 1000}},
	}

	h1 := tx.Hash()
	tx.Inputs[0].Signature = []byte("some signature")
	tx.Inputs[0].PubKey = types.PublicKey{0x02}

	if h1 != tx.Hash() {
		t.Error("Hash() should not change when signatures are added")
	}
}

func TestTransaction_Fee(t *testing.T) {
	tx := &Transaction{
		Inputs:  []Input{{Amount: 1000}, {Amount: 2500}},
		Outputs: []Output{{Amount: 3000}, {Amount: 400}},
	}
	fee, err := tx.Fee()
	if err != nil {
		t.Fatalf("Fee() error: %v", err)
	}
	if fee != 100 {
		t.Errorf("fee = %d, want 100", fee)
	}

	tx.Outputs[0].Amount = 4000
	if _, err := tx.Fee(); !errors.Is(err, ErrOutputsExceedInputs) {
		t.Errorf("expected ErrOutputsExceedInputs, got %v", err)
	}

	coinbase := &Transaction{Outputs: []Output{{Amount: 50}}}
	if fee, _ := coinbase.Fee(); fee != 0 {
		t.Errorf("coinbase fee = %d, want 0", fee)
	}
}

func TestTransaction_TotalOutputValue_Overflow(t *testing.T) {
	tx := &Transaction{
		Outputs: []Output{{Amount: math.MaxUint64}, {Amount: 1}},
	}
	if _, err := tx.TotalOutputValue(); err == nil {
		t.Error("expected overflow error")
	}
}

func TestTransaction_SerializeRoundTrip(t *testing.T) {
	owner := testKey(t)
	b := NewBuilder().
		AddInput(types.KeyImage{0x07}, 900).
		AddOutput(800, owner.PublicKey).
		SetPaymentID("").
		SetUnlockTime(12)
	if err := b.SignMulti(
		map[types.PublicKey]types.SecretKey{owner.PublicKey: owner.SecretKey},
		map[types.KeyImage]types.PublicKey{{0x07}: owner.PublicKey},
	); err != nil {
		t.Fatalf("SignMulti() error: %v", err)
	}
	orig := b.Build()

	payload, err := orig.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	got, err := Deserialize(payload)
	if err != nil {
		t.Fatalf("Deserialize() error: %v", err)
	}
	if got.Hash() != orig.Hash() {
		t.Error("hash changed across serialization")
	}
	if err := got.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
}

func TestEstimateTxFee(t *testing.T) {
	if EstimateTxFee(1, 2, "", 0) != 0 {
		t.Error("zero rate should give zero fee")
	}
	small := EstimateTxFee(1, 2, "", 10)
	large := EstimateTxFee(5, 2, "", 10)
	if large <= small {
		t.Errorf("more inputs should cost more: %d <= %d", large, small)
	}
	if EstimateSize(1, 1, "") != overheadSize+inputSize+signedSize+outputSize {
		t.Error("EstimateSize() does not match layout")
	}
}
