package transfer

import (
	"errors"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

func makeInputs(amounts ...uint64) []subwallets.SpendableInput {
	inputs := make([]subwallets.SpendableInput, len(amounts))
	for i, a := range amounts {
		inputs[i] = subwallets.SpendableInput{
			Input: subwallets.Input{KeyImage: types.KeyImage{byte(i + 1)}, Amount: a},
		}
	}
	return inputs
}

func TestSelectCoins(t *testing.T) {
	tests := []struct {
		name       string
		amounts    []uint64
		target     uint64
		wantTotal  uint64
		wantChange uint64
		wantInputs int
	}{
		{"exact single match", []uint64{1000, 2000, 3000}, 2000, 2000, 0, 1},
		{"single input with change", []uint64{5000}, 3000, 5000, 2000, 1},
		{"prefers exact single", []uint64{1000, 2000, 3000, 5000}, 3000, 3000, 0, 1},
		{"largest first", []uint64{1000, 3000, 5000, 2000}, 7000, 8000, 1000, 2},
		{"needs every input", []uint64{1000, 2000, 3000}, 6000, 6000, 0, 3},
		{"combine", []uint64{1000, 2000, 1500}, 4000, 4500, 500, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel, err := SelectCoins(makeInputs(tt.amounts...), tt.target, 100)
			if err != nil {
				t.Fatalf("SelectCoins() error: %v", err)
			}
			if sel.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", sel.Total, tt.wantTotal)
			}
			if sel.Change != tt.wantChange {
				t.Errorf("change = %d, want %d", sel.Change, tt.wantChange)
			}
			if len(sel.Inputs) != tt.wantInputs {
				t.Errorf("inputs = %d, want %d", len(sel.Inputs), tt.wantInputs)
			}
			if sel.Total != sel.Change+tt.target {
				t.Error("Total should equal Change + target")
			}
		})
	}
}

func TestSelectCoins_Errors(t *testing.T) {
	if _, err := SelectCoins(makeInputs(1000, 2000), 5000, 100); !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got: %v", err)
	}
	if _, err := SelectCoins(nil, 1000, 100); !errors.Is(err, ErrNoInputs) {
		t.Errorf("expected ErrNoInputs, got: %v", err)
	}
	if _, err := SelectCoins(makeInputs(0, 0, 0), 1000, 100); !errors.Is(err, ErrNoInputs) {
		t.Errorf("expected ErrNoInputs for all-zero inputs, got: %v", err)
	}
	if _, err := SelectCoins(makeInputs(1000), 0, 100); err == nil {
		t.Error("zero target should fail")
	}
}

func TestSelectCoins_MaxInputs(t *testing.T) {
	// Three inputs are needed but only two are allowed.
	_, err := SelectCoins(makeInputs(1000, 1000, 1000), 3000, 2)
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("expected ErrInsufficientFunds, got: %v", err)
	}
}
