package transfer

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// maxFeeIterations bounds the select-then-price loop for per-byte fees.
const maxFeeIterations = 16

type output struct {
	key    types.PublicKey
	amount uint64
}

func checkedSum(values ...uint64) (uint64, bool) {
	var sum uint64
	for _, v := range values {
		var carry uint64
		sum, carry = bits.Add64(sum, v, 0)
		if carry != 0 {
			return 0, false
		}
	}
	return sum, true
}

// resolveSources maps addresses to our public spend keys. Empty means all.
func (p *Pipeline) resolveSources(addresses []string) ([]types.PublicKey, error) {
	pubs := make([]types.PublicKey, 0, len(addresses))
	for _, addr := range addresses {
		pub, err := p.wallets.ResolveAddress(addr)
		if err != nil {
			return nil, err
		}
		pubs = append(pubs, pub)
	}
	return pubs, nil
}

func (p *Pipeline) spendable(pubs []types.PublicKey) ([]subwallets.SpendableInput, error) {
	return p.wallets.SpendableInputs(pubs, p.daemon.NetworkBlockCount(), now())
}

// nodeFee returns the fee output the connected node asks for, if any.
func (p *Pipeline) nodeFee() (*output, error) {
	addr, amount := p.daemon.NodeFee()
	if amount == 0 || addr == "" {
		return nil, nil
	}
	parsed, err := types.ParseAddress(addr)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.InvalidAddress, err)
	}
	return &output{key: parsed.SpendKey, amount: amount}, nil
}

func (p *Pipeline) prepare(params AdvancedParams) (*PreparedTransaction, error) {
	if p.wallets.IsViewWallet() {
		return nil, walleterr.IllegalViewWalletOperation
	}
	if len(params.Destinations) == 0 {
		return nil, walleterr.NoDestinationsGiven
	}
	if params.SendAll && len(params.Destinations) != 1 {
		return nil, walleterr.WithMessage(walleterr.InvalidAmount,
			"sending all funds needs exactly one destination, got %d", len(params.Destinations))
	}
	if err := types.ValidatePaymentID(params.PaymentID); err != nil {
		return nil, walleterr.Wrap(walleterr.InvalidPaymentID, err)
	}

	outs := make([]output, 0, len(params.Destinations)+2)
	amounts := make([]uint64, 0, len(params.Destinations))
	for _, d := range params.Destinations {
		addr, err := types.ParseAddress(d.Address)
		if err != nil {
			return nil, walleterr.Wrap(walleterr.InvalidAddress, err)
		}
		if d.Amount == 0 && !params.SendAll {
			return nil, walleterr.AmountIsZero
		}
		outs = append(outs, output{key: addr.SpendKey, amount: d.Amount})
		amounts = append(amounts, d.Amount)
	}
	amount, ok := checkedSum(amounts...)
	if !ok || amount > math.MaxInt64 {
		return nil, walleterr.InvalidAmount
	}

	sources, err := p.resolveSources(params.SubWalletsToTakeFrom)
	if err != nil {
		return nil, err
	}
	change, err := p.changeKey(params.ChangeAddress, sources)
	if err != nil {
		return nil, err
	}
	nodeFee, err := p.nodeFee()
	if err != nil {
		return nil, err
	}
	var nodeFeeAmount uint64
	if nodeFee != nil {
		nodeFeeAmount = nodeFee.amount
	}

	inputs, err := p.spendable(sources)
	if err != nil {
		return nil, err
	}

	fixedOutputs := len(outs)
	if nodeFee != nil {
		fixedOutputs++
	}

	var sel *CoinSelection
	var fee uint64
	if params.SendAll {
		sel, fee, err = p.selectAll(inputs, fixedOutputs, nodeFeeAmount, params)
		if err != nil {
			return nil, err
		}
		outs[0].amount = sel.Total - fee - nodeFeeAmount
		sel.Change = 0
	} else {
		sel, fee, err = p.selectWithFee(inputs, amount, fixedOutputs, nodeFeeAmount, params)
		if err != nil {
			return nil, err
		}
	}

	if nodeFee != nil {
		outs = append(outs, *nodeFee)
	}
	if sel.Change > 0 {
		outs = append(outs, output{key: change, amount: sel.Change})
	}

	pt, err := p.assemble(sel.Inputs, outs, params.PaymentID, params.UnlockTime)
	if err != nil {
		return nil, err
	}
	pt.Destinations = make([]Destination, len(params.Destinations))
	for i, d := range params.Destinations {
		pt.Destinations[i] = Destination{Address: d.Address, Amount: outs[i].amount}
	}
	pt.Change = sel.Change
	return pt, nil
}

// changeKey picks the sub-wallet that receives change.
func (p *Pipeline) changeKey(address string, sources []types.PublicKey) (types.PublicKey, error) {
	if address != "" {
		return p.wallets.ResolveAddress(address)
	}
	if len(sources) == 1 {
		return sources[0], nil
	}
	return p.wallets.PrimaryPublicSpendKey(), nil
}

// selectWithFee selects inputs for amount plus fees. Per-byte fees depend
// on the number of inputs, so selection repeats until the fee covered by
// the selection is at least the fee its size requires.
func (p *Pipeline) selectWithFee(inputs []subwallets.SpendableInput, amount uint64, fixedOutputs int, nodeFee uint64, params AdvancedParams) (*CoinSelection, uint64, error) {
	var fee uint64
	if params.Fee.Kind == FeeFixed {
		fee = params.Fee.Value
	}
	rate, rateErr := params.Fee.rate(p.params.MinFeeRate)
	if params.Fee.Kind != FeeFixed && rateErr != nil {
		return nil, 0, rateErr
	}

	for i := 0; i < maxFeeIterations; i++ {
		target, ok := checkedSum(amount, nodeFee, fee)
		if !ok {
			return nil, 0, walleterr.InvalidAmount
		}
		sel, err := SelectCoins(inputs, target, tx.MaxInputs)
		if err != nil {
			return nil, 0, selectionError(err)
		}
		nOut := fixedOutputs
		if sel.Change > 0 {
			nOut++
		}
		minimum := tx.EstimateTxFee(len(sel.Inputs), nOut, params.PaymentID, p.params.MinFeeRate)
		if params.Fee.Kind == FeeFixed {
			if fee < minimum {
				return nil, 0, walleterr.WithMessage(walleterr.InvalidFeeType,
					"fixed fee %d is below the minimum of %d for this transaction", fee, minimum)
			}
			return sel, fee, nil
		}
		need := tx.EstimateTxFee(len(sel.Inputs), nOut, params.PaymentID, rate)
		if need <= fee {
			return sel, fee, nil
		}
		fee = need
	}
	return nil, 0, fmt.Errorf("fee did not converge after %d selections", maxFeeIterations)
}

// selectAll spends every input.
func (p *Pipeline) selectAll(inputs []subwallets.SpendableInput, fixedOutputs int, nodeFee uint64, params AdvancedParams) (*CoinSelection, uint64, error) {
	if len(inputs) == 0 {
		return nil, 0, walleterr.NotEnoughBalance
	}
	if len(inputs) > tx.MaxInputs {
		return nil, 0, walleterr.WithMessage(walleterr.NotEnoughBalance,
			"%d inputs exceed the limit of %d for one transaction, send a fusion transaction first", len(inputs), tx.MaxInputs)
	}
	total, ok := checkedSum(amountsOf(inputs)...)
	if !ok {
		return nil, 0, walleterr.InvalidAmount
	}

	minimum := tx.EstimateTxFee(len(inputs), fixedOutputs, params.PaymentID, p.params.MinFeeRate)
	var fee uint64
	if params.Fee.Kind == FeeFixed {
		fee = params.Fee.Value
		if fee < minimum {
			return nil, 0, walleterr.WithMessage(walleterr.InvalidFeeType,
				"fixed fee %d is below the minimum of %d for this transaction", fee, minimum)
		}
	} else {
		rate, err := params.Fee.rate(p.params.MinFeeRate)
		if err != nil {
			return nil, 0, err
		}
		fee = tx.EstimateTxFee(len(inputs), fixedOutputs, params.PaymentID, rate)
	}

	costs, ok := checkedSum(fee, nodeFee)
	if !ok || total <= costs {
		return nil, 0, walleterr.WithMessage(walleterr.NotEnoughBalance,
			"balance %d does not cover fees of %d", total, costs)
	}
	return &CoinSelection{Inputs: inputs, Total: total}, fee, nil
}

func amountsOf(inputs []subwallets.SpendableInput) []uint64 {
	out := make([]uint64, len(inputs))
	for i, in := range inputs {
		out[i] = in.Amount
	}
	return out
}

func selectionError(err error) error {
	if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrNoInputs) {
		return walleterr.Wrap(walleterr.NotEnoughBalance, err)
	}
	return err
}

// assemble signs a transaction spending inputs into outs.
func (p *Pipeline) assemble(inputs []subwallets.SpendableInput, outs []output, paymentID string, unlockTime uint64) (*PreparedTransaction, error) {
	// Transfers are recorded as signed amounts; outputs never exceed inputs,
	// so bounding the input total bounds every entry.
	if total, ok := checkedSum(amountsOf(inputs)...); !ok || total > math.MaxInt64 {
		return nil, walleterr.WithMessage(walleterr.InvalidAmount,
			"inputs total more than %d", int64(math.MaxInt64))
	}

	txKeys, err := crypto.GenerateKeys()
	if err != nil {
		return nil, fmt.Errorf("generate transaction key: %w", err)
	}

	b := tx.NewBuilder().
		SetTxPublicKey(txKeys.PublicKey).
		SetPaymentID(paymentID).
		SetUnlockTime(unlockTime)

	signers := make(map[types.PublicKey]types.SecretKey)
	owners := make(map[types.KeyImage]types.PublicKey, len(inputs))
	keyImages := make([]types.KeyImage, 0, len(inputs))
	for _, in := range inputs {
		b.AddInput(in.KeyImage, in.Amount)
		signers[in.Owner] = in.PrivateSpendKey
		owners[in.KeyImage] = in.Owner
		keyImages = append(keyImages, in.KeyImage)
	}
	for _, o := range outs {
		b.AddOutput(o.amount, o.key)
	}
	if err := b.SignMulti(signers, owners); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	t := b.Build()
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("validate transaction: %w", err)
	}
	fee, err := t.Fee()
	if err != nil {
		return nil, fmt.Errorf("transaction fee: %w", err)
	}
	payload, err := t.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize transaction: %w", err)
	}

	hash := t.Hash()
	transfers := make(map[types.PublicKey]int64)
	incoming := make(map[types.PublicKey]uint64)
	for _, in := range inputs {
		transfers[in.Owner] -= int64(in.Amount)
	}
	for _, o := range outs {
		if p.wallets.HasPublicSpendKey(o.key) {
			transfers[o.key] += int64(o.amount)
			incoming[o.key] += o.amount
		}
	}

	return &PreparedTransaction{
		Hash:    hash,
		Tx:      t,
		Payload: payload,
		Inputs:  keyImages,
		Fee:     fee,
		record: subwallets.Transaction{
			Hash:       hash,
			Transfers:  transfers,
			Fee:        fee,
			PaymentID:  paymentID,
			UnlockTime: unlockTime,
		},
		incoming:     incoming,
		txPrivateKey: txKeys.SecretKey,
	}, nil
}
