package transfer

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
)

// Coin selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoInputs          = errors.New("no spendable inputs")
)

// CoinSelection holds the result of coin selection.
type CoinSelection struct {
	Inputs []subwallets.SpendableInput // Selected inputs to spend.
	Total  uint64                      // Sum of selected input amounts.
	Change uint64                      // Change = Total - target.
}

// SelectCoins chooses inputs to fund a transaction of the given target amount.
// It tries two strategies:
//  1. Single input: the smallest input that covers the target on its own.
//  2. Largest-first accumulation: greedily adds the largest inputs until the target is met.
//
// Returns the strategy that produces the least change. Selections above
// maxInputs are rejected.
func SelectCoins(inputs []subwallets.SpendableInput, target uint64, maxInputs int) (*CoinSelection, error) {
	if len(inputs) == 0 {
		return nil, ErrNoInputs
	}
	if target == 0 {
		return nil, fmt.Errorf("target must be positive")
	}

	candidates := make([]subwallets.SpendableInput, 0, len(inputs))
	for _, in := range inputs {
		if in.Amount > 0 {
			candidates = append(candidates, in)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoInputs
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Amount < candidates[j].Amount
	})

	var single *CoinSelection
	for _, in := range candidates {
		if in.Amount >= target {
			single = &CoinSelection{
				Inputs: []subwallets.SpendableInput{in},
				Total:  in.Amount,
				Change: in.Amount - target,
			}
			break // Sorted ascending, first match is smallest.
		}
	}

	var accum *CoinSelection
	var selected []subwallets.SpendableInput
	var total uint64
	for i := len(candidates) - 1; i >= 0 && len(selected) < maxInputs; i-- {
		selected = append(selected, candidates[i])
		total += candidates[i].Amount
		if total >= target {
			accum = &CoinSelection{
				Inputs: selected,
				Total:  total,
				Change: total - target,
			}
			break
		}
	}

	switch {
	case single != nil && accum != nil:
		if single.Change <= accum.Change {
			return single, nil
		}
		return accum, nil
	case single != nil:
		return single, nil
	case accum != nil:
		return accum, nil
	default:
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, totalAmount(candidates), target)
	}
}

func totalAmount(inputs []subwallets.SpendableInput) uint64 {
	var total uint64
	for _, in := range inputs {
		total += in.Amount
	}
	return total
}
