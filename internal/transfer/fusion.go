package transfer

import (
	"sort"

	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// prepareFusion builds a zero-fee transaction merging the smallest inputs
// below the fusion threshold into one output at the destination.
func (p *Pipeline) prepareFusion(params FusionParams) (*PreparedTransaction, error) {
	if p.wallets.IsViewWallet() {
		return nil, walleterr.IllegalViewWalletOperation
	}

	sources, err := p.resolveSources(params.SubWalletsToTakeFrom)
	if err != nil {
		return nil, err
	}
	dest := p.wallets.PrimaryPublicSpendKey()
	destAddress := p.wallets.PrimaryAddress()
	if params.Destination != "" {
		if dest, err = p.wallets.ResolveAddress(params.Destination); err != nil {
			return nil, err
		}
		destAddress = params.Destination
	}

	inputs, err := p.spendable(sources)
	if err != nil {
		return nil, err
	}
	candidates := fusionCandidates(inputs, p.params.FusionThreshold)
	if len(candidates) < MinFusionInputs {
		return nil, walleterr.FullyOptimized
	}

	total, ok := checkedSum(amountsOf(candidates)...)
	if !ok {
		return nil, walleterr.InvalidAmount
	}
	pt, err := p.assemble(candidates, []output{{key: dest, amount: total}}, "", 0)
	if err != nil {
		return nil, err
	}
	pt.Destinations = []Destination{{Address: destAddress, Amount: total}}
	return pt, nil
}

// fusionCandidates returns up to MaxFusionInputs of the smallest inputs
// below threshold.
func fusionCandidates(inputs []subwallets.SpendableInput, threshold uint64) []subwallets.SpendableInput {
	var out []subwallets.SpendableInput
	for _, in := range inputs {
		if in.Amount == 0 || (threshold != 0 && in.Amount >= threshold) {
			continue
		}
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount != out[j].Amount {
			return out[i].Amount < out[j].Amount
		}
		return keyImageLess(out[i].KeyImage, out[j].KeyImage)
	})
	if len(out) > MaxFusionInputs {
		out = out[:MaxFusionInputs]
	}
	return out
}

func keyImageLess(a, b types.KeyImage) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
