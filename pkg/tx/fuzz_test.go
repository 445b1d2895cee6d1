package tx

import "testing"

// FuzzDeserialize feeds arbitrary payloads through the daemon wire format.
// Whatever decodes must be safe to hash, validate and price.
func FuzzDeserialize(f *testing.F) {
	f.Add([]byte(`{"version":1,"inputs":[{"key_image":"00","amount":5}],"outputs":[{"amount":1000}]}`))
	f.Add([]byte(`{"unlock_time":18446744073709551615,"outputs":[{"amount":18446744073709551615},{"amount":1}]}`))
	f.Add([]byte(`null`))

	f.Fuzz(func(t *testing.T, data []byte) {
		tx, err := Deserialize(data)
		if err != nil {
			return
		}
		tx.Hash()
		_ = tx.Validate()
		_ = tx.VerifySignatures()
		if _, err := tx.Fee(); err != nil {
			return
		}
		if _, err := tx.Serialize(); err != nil {
			t.Fatalf("Serialize() of a decoded transaction failed: %v", err)
		}
	})
}
