package walletfile

import (
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
)

// FuzzDecode checks that no input makes Decode panic and that every failure
// is one of the named wallet errors.
func FuzzDecode(f *testing.F) {
	valid, err := fastCodec().Encode(testDocument(), "pw")
	if err != nil {
		f.Fatalf("Encode() error: %v", err)
	}
	f.Add(valid, "pw")
	f.Add(valid, "wrong")
	f.Add(IsAWalletIdentifier, "pw")
	f.Add([]byte("not a wallet"), "")

	f.Fuzz(func(t *testing.T, raw []byte, password string) {
		_, err := fastCodec().Decode(raw, password)
		if err != nil && walleterr.CodeOf(err) == 0 {
			t.Fatalf("Decode() returned an unnamed error: %v", err)
		}
	})
}
