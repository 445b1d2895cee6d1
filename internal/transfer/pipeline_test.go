package transfer

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/internal/guard"
	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

type fakeDaemon struct {
	mu        sync.Mutex
	height    uint64
	feeAddr   string
	feeAmount uint64
	sendErr   error
	sent      []*tx.Transaction
}

func (f *fakeDaemon) NetworkBlockCount() uint64 { return f.height }

func (f *fakeDaemon) NodeFee() (string, uint64) { return f.feeAddr, f.feeAmount }

func (f *fakeDaemon) SendTransaction(_ context.Context, t *tx.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, t)
	return nil
}

func (f *fakeDaemon) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type nopPauser struct{}

func (nopPauser) Pause()  {}
func (nopPauser) Resume() {}

func newTestPipeline(t *testing.T) (*Pipeline, *subwallets.Registry, *fakeDaemon) {
	t.Helper()
	spend, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys() error: %v", err)
	}
	r, err := subwallets.New(spend.SecretKey, crypto.ViewFromSpend(spend.SecretKey), 0, 0)
	if err != nil {
		t.Fatalf("subwallets.New() error: %v", err)
	}
	d := &fakeDaemon{height: 100}
	return New(r, d, guard.New(nopPauser{}), Params{MinFeeRate: 10}), r, d
}

func otherAddress(t *testing.T) (string, types.PublicKey) {
	t.Helper()
	kp, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys() error: %v", err)
	}
	addr, err := crypto.PrivateKeysToAddress(kp.SecretKey, crypto.ViewFromSpend(kp.SecretKey))
	if err != nil {
		t.Fatalf("PrivateKeysToAddress() error: %v", err)
	}
	return addr.String(), kp.PublicKey
}

func fund(r *subwallets.Registry, pub types.PublicKey, ki byte, amount, height uint64, coinbase bool) {
	r.ApplyBlock(subwallets.BlockResult{
		Height: height,
		Inputs: []subwallets.OwnedInput{{Owner: pub, Input: subwallets.Input{
			KeyImage:    types.KeyImage{ki},
			Amount:      amount,
			BlockHeight: height,
			Coinbase:    coinbase,
		}}},
		Transactions: []subwallets.Transaction{{
			Hash:        types.Hash{ki},
			BlockHeight: height,
			Coinbase:    coinbase,
			Transfers:   map[types.PublicKey]int64{pub: int64(amount)},
		}},
	})
}

func TestSendTransactionBasic_Sends(t *testing.T) {
	p, r, d := newTestPipeline(t)
	pub := r.PrimaryPublicSpendKey()
	for i := byte(1); i <= 3; i++ {
		fund(r, pub, i, 1_000_000, 1, false)
	}
	dest, destKey := otherAddress(t)

	pt, err := p.SendTransactionBasic(context.Background(), dest, 1_500_000, "", false, true)
	if err != nil {
		t.Fatalf("SendTransactionBasic() error: %v", err)
	}
	if d.sentCount() != 1 {
		t.Fatalf("sent = %d, want 1", d.sentCount())
	}
	if len(p.PreparedTransactions()) != 0 {
		t.Error("immediate send should not touch the cache")
	}

	sent := d.sent[0]
	if sent.Hash() != pt.Hash {
		t.Errorf("sent hash = %s, want %s", sent.Hash(), pt.Hash)
	}
	if err := sent.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error: %v", err)
	}
	if sent.Outputs[0].Key != destKey || sent.Outputs[0].Amount != 1_500_000 {
		t.Errorf("first output = %+v", sent.Outputs[0])
	}
	minFee := tx.EstimateTxFee(len(sent.Inputs), len(sent.Outputs), "", 10)
	if pt.Fee < minFee {
		t.Errorf("fee = %d, want >= %d", pt.Fee, minFee)
	}

	unconfirmed := r.UnconfirmedTransactions()
	if len(unconfirmed) != 1 {
		t.Fatalf("unconfirmed = %d, want 1", len(unconfirmed))
	}
	if got, want := unconfirmed[0].Transfers[pub], -int64(1_500_000+pt.Fee); got != want {
		t.Errorf("transfer = %d, want %d", got, want)
	}
	if _, err := r.TxPrivateKey(pt.Hash); err != nil {
		t.Errorf("TxPrivateKey() error: %v", err)
	}

	unlocked, locked := r.Balance(nil, 100, 0)
	if unlocked+locked != 3_000_000-1_500_000-pt.Fee {
		t.Errorf("balance = %d+%d, want %d", unlocked, locked, 3_000_000-1_500_000-pt.Fee)
	}
}

func TestSendPreparedTransaction_AtMostOnce(t *testing.T) {
	p, r, d := newTestPipeline(t)
	fund(r, r.PrimaryPublicSpendKey(), 1, 1_000_000, 1, false)
	dest, _ := otherAddress(t)
	ctx := context.Background()

	pt, err := p.SendTransactionBasic(ctx, dest, 500_000, "", false, false)
	if err != nil {
		t.Fatalf("SendTransactionBasic() error: %v", err)
	}
	if d.sentCount() != 0 {
		t.Fatal("deferred transaction was broadcast")
	}
	if got := p.PreparedTransactions(); len(got) != 1 || got[0].Hash != pt.Hash {
		t.Fatalf("PreparedTransactions() = %v", got)
	}

	if err := p.SendPreparedTransaction(ctx, pt.Hash); err != nil {
		t.Fatalf("SendPreparedTransaction() error: %v", err)
	}
	if err := p.SendPreparedTransaction(ctx, pt.Hash); !errors.Is(err, walleterr.PreparedTransactionNotFound) {
		t.Errorf("second send: got %v, want PreparedTransactionNotFound", err)
	}
	if d.sentCount() != 1 {
		t.Errorf("sent = %d, want 1", d.sentCount())
	}
}

func TestSendPreparedTransaction_Expired(t *testing.T) {
	p, r, d := newTestPipeline(t)
	fund(r, r.PrimaryPublicSpendKey(), 1, 1_000_000, 1, false)
	dest, _ := otherAddress(t)
	ctx := context.Background()

	// Both spend the only input.
	first, err := p.SendTransactionBasic(ctx, dest, 500_000, "", false, false)
	if err != nil {
		t.Fatalf("SendTransactionBasic() error: %v", err)
	}
	second, err := p.SendTransactionBasic(ctx, dest, 400_000, "", false, false)
	if err != nil {
		t.Fatalf("SendTransactionBasic() error: %v", err)
	}

	if err := p.SendPreparedTransaction(ctx, first.Hash); err != nil {
		t.Fatalf("SendPreparedTransaction(first) error: %v", err)
	}
	if err := p.SendPreparedTransaction(ctx, second.Hash); !errors.Is(err, walleterr.PreparedTransactionExpired) {
		t.Fatalf("SendPreparedTransaction(second) = %v, want PreparedTransactionExpired", err)
	}
	if p.RemovePreparedTransaction(second.Hash) {
		t.Error("expired transaction still cached")
	}
	if err := p.SendPreparedTransaction(ctx, second.Hash); !errors.Is(err, walleterr.PreparedTransactionNotFound) {
		t.Errorf("retry: got %v, want PreparedTransactionNotFound", err)
	}
	if d.sentCount() != 1 {
		t.Errorf("sent = %d, want 1", d.sentCount())
	}
}

func TestSendPreparedTransaction_DaemonFailureKeepsEntry(t *testing.T) {
	p, r, d := newTestPipeline(t)
	fund(r, r.PrimaryPublicSpendKey(), 1, 1_000_000, 1, false)
	dest, _ := otherAddress(t)
	ctx := context.Background()

	pt, err := p.SendTransactionBasic(ctx, dest, 500_000, "", false, false)
	if err != nil {
		t.Fatalf("SendTransactionBasic() error: %v", err)
	}

	d.sendErr = walleterr.DaemonOffline
	if err := p.SendPreparedTransaction(ctx, pt.Hash); !errors.Is(err, walleterr.DaemonOffline) {
		t.Fatalf("SendPreparedTransaction() = %v, want DaemonOffline", err)
	}
	if len(r.UnconfirmedTransactions()) != 0 {
		t.Error("failed send recorded as unconfirmed")
	}

	d.sendErr = nil
	if err := p.SendPreparedTransaction(ctx, pt.Hash); err != nil {
		t.Fatalf("retry error: %v", err)
	}
	if len(r.UnconfirmedTransactions()) != 1 {
		t.Error("sent transaction not recorded")
	}
}

func TestRemovePreparedTransaction(t *testing.T) {
	p, r, _ := newTestPipeline(t)
	fund(r, r.PrimaryPublicSpendKey(), 1, 1_000_000, 1, false)
	dest, _ := otherAddress(t)

	pt, err := p.SendTransactionBasic(context.Background(), dest, 500_000, "", false, false)
	if err != nil {
		t.Fatalf("SendTransactionBasic() error: %v", err)
	}
	if !p.RemovePreparedTransaction(pt.Hash) {
		t.Error("first remove = false, want true")
	}
	if p.RemovePreparedTransaction(pt.Hash) {
		t.Error("second remove = true, want false")
	}
}

func TestSendTransactionAdvanced_Validation(t *testing.T) {
	p, r, _ := newTestPipeline(t)
	fund(r, r.PrimaryPublicSpendKey(), 1, 1_000_000, 1, false)
	dest, _ := otherAddress(t)
	stranger, _ := otherAddress(t)

	tests := []struct {
		name   string
		params AdvancedParams
		want   error
	}{
		{"no destinations", AdvancedParams{}, walleterr.NoDestinationsGiven},
		{"zero amount", AdvancedParams{Destinations: []Destination{{dest, 0}}}, walleterr.AmountIsZero},
		{"bad address", AdvancedParams{Destinations: []Destination{{"kgw1nope", 10}}}, walleterr.InvalidAddress},
		{"bad payment id", AdvancedParams{Destinations: []Destination{{dest, 10}}, PaymentID: "abc"}, walleterr.InvalidPaymentID},
		{"not enough", AdvancedParams{Destinations: []Destination{{dest, 5_000_000}}}, walleterr.NotEnoughBalance},
		{"overflow", AdvancedParams{Destinations: []Destination{{dest, math.MaxUint64}, {dest, 1}}}, walleterr.InvalidAmount},
		{"above int64", AdvancedParams{Destinations: []Destination{{dest, math.MaxInt64 + 1}}}, walleterr.InvalidAmount},
		{"rate below minimum", AdvancedParams{Destinations: []Destination{{dest, 10}}, Fee: PerByteFee(1)}, walleterr.InvalidFeeType},
		{"fixed fee too small", AdvancedParams{Destinations: []Destination{{dest, 10}}, Fee: FixedFee(1)}, walleterr.InvalidFeeType},
		{"unknown fee kind", AdvancedParams{Destinations: []Destination{{dest, 10}}, Fee: FeeType{Kind: 9}}, walleterr.InvalidFeeType},
		{"foreign source", AdvancedParams{Destinations: []Destination{{dest, 10}}, SubWalletsToTakeFrom: []string{stranger}}, walleterr.AddressNotInWallet},
		{"foreign change", AdvancedParams{Destinations: []Destination{{dest, 10}}, ChangeAddress: stranger}, walleterr.AddressNotInWallet},
		{"send all to many", AdvancedParams{Destinations: []Destination{{dest, 0}, {dest, 0}}, SendAll: true}, walleterr.InvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.SendTransactionAdvanced(context.Background(), tt.params, true)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSendTransaction_ViewWallet(t *testing.T) {
	spend, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys() error: %v", err)
	}
	view := crypto.ViewFromSpend(spend.SecretKey)
	addr, err := crypto.PrivateKeysToAddress(spend.SecretKey, view)
	if err != nil {
		t.Fatalf("PrivateKeysToAddress() error: %v", err)
	}
	r, err := subwallets.NewView(view, addr, 0, 0)
	if err != nil {
		t.Fatalf("NewView() error: %v", err)
	}
	p := New(r, &fakeDaemon{height: 100}, guard.New(nopPauser{}), Params{})
	dest, _ := otherAddress(t)

	if _, err := p.SendTransactionBasic(context.Background(), dest, 10, "", false, true); !errors.Is(err, walleterr.IllegalViewWalletOperation) {
		t.Errorf("send: got %v", err)
	}
	if _, err := p.SendFusionTransactionBasic(context.Background()); !errors.Is(err, walleterr.IllegalViewWalletOperation) {
		t.Errorf("fusion: got %v", err)
	}
}

func TestSendTransaction_ImmatureCoinbase(t *testing.T) {
	p, r, _ := newTestPipeline(t)
	fund(r, r.PrimaryPublicSpendKey(), 1, 1_000_000, 90, true)
	dest, _ := otherAddress(t)

	_, err := p.SendTransactionBasic(context.Background(), dest, 10, "", false, true)
	if !errors.Is(err, walleterr.NotEnoughBalance) {
		t.Errorf("got %v, want NotEnoughBalance", err)
	}
}

func TestSendTransaction_NodeFee(t *testing.T) {
	p, r, d := newTestPipeline(t)
	fund(r, r.PrimaryPublicSpendKey(), 1, 1_000_000, 1, false)
	dest, _ := otherAddress(t)
	feeAddr, feeKey := otherAddress(t)
	d.feeAddr, d.feeAmount = feeAddr, 5000

	if _, err := p.SendTransactionBasic(context.Background(), dest, 100_000, "", false, true); err != nil {
		t.Fatalf("SendTransactionBasic() error: %v", err)
	}
	sent := d.sent[0]
	if len(sent.Outputs) != 3 {
		t.Fatalf("outputs = %d, want destination, node fee, change", len(sent.Outputs))
	}
	if sent.Outputs[1].Key != feeKey || sent.Outputs[1].Amount != 5000 {
		t.Errorf("node fee output = %+v", sent.Outputs[1])
	}
}

func TestSendTransaction_SendAllAboveInt64(t *testing.T) {
	p, r, d := newTestPipeline(t)
	pub := r.PrimaryPublicSpendKey()
	fund(r, pub, 1, 1<<62, 1, false)
	fund(r, pub, 2, 1<<62, 1, false)
	dest, _ := otherAddress(t)

	_, err := p.SendTransactionBasic(context.Background(), dest, 0, "", true, true)
	if !errors.Is(err, walleterr.InvalidAmount) {
		t.Fatalf("SendTransactionBasic() error = %v, want InvalidAmount", err)
	}
	if len(d.sent) != 0 {
		t.Errorf("sent %d transactions, want 0", len(d.sent))
	}
}

func TestSendTransaction_SendAll(t *testing.T) {
	p, r, d := newTestPipeline(t)
	pub := r.PrimaryPublicSpendKey()
	fund(r, pub, 1, 600_000, 1, false)
	fund(r, pub, 2, 400_000, 1, false)
	dest, destKey := otherAddress(t)

	pt, err := p.SendTransactionBasic(context.Background(), dest, 0, "", true, true)
	if err != nil {
		t.Fatalf("SendTransactionBasic() error: %v", err)
	}
	sent := d.sent[0]
	if len(sent.Outputs) != 1 || sent.Outputs[0].Key != destKey {
		t.Fatalf("outputs = %+v, want one output to destination", sent.Outputs)
	}
	if sent.Outputs[0].Amount+pt.Fee != 1_000_000 {
		t.Errorf("amount %d + fee %d != 1000000", sent.Outputs[0].Amount, pt.Fee)
	}
	if pt.Destinations[0].Amount != sent.Outputs[0].Amount {
		t.Errorf("Destinations[0].Amount = %d", pt.Destinations[0].Amount)
	}
	if pt.Change != 0 {
		t.Errorf("change = %d, want 0", pt.Change)
	}
	if unlocked, _ := r.Balance(nil, 100, 0); unlocked != 0 {
		t.Errorf("unlocked = %d, want 0", unlocked)
	}
}

func TestSendTransaction_ChangeToSource(t *testing.T) {
	p, r, d := newTestPipeline(t)
	addr, err := r.AddSubWallet(0)
	if err != nil {
		t.Fatalf("AddSubWallet() error: %v", err)
	}
	sub, err := r.ResolveAddress(addr)
	if err != nil {
		t.Fatalf("ResolveAddress() error: %v", err)
	}
	fund(r, r.PrimaryPublicSpendKey(), 1, 1_000_000, 1, false)
	fund(r, sub, 2, 1_000_000, 1, false)
	dest, _ := otherAddress(t)

	_, err = p.SendTransactionAdvanced(context.Background(), AdvancedParams{
		Destinations:         []Destination{{dest, 100_000}},
		SubWalletsToTakeFrom: []string{addr},
	}, true)
	if err != nil {
		t.Fatalf("SendTransactionAdvanced() error: %v", err)
	}
	sent := d.sent[0]
	if sent.Inputs[0].KeyImage != (types.KeyImage{2}) {
		t.Errorf("spent %s, want the sub-wallet input", sent.Inputs[0].KeyImage)
	}
	if change := sent.Outputs[len(sent.Outputs)-1]; change.Key != sub {
		t.Errorf("change went to %s, want the source sub-wallet", change.Key)
	}
}

func TestSendFusionTransaction(t *testing.T) {
	p, r, d := newTestPipeline(t)
	pub := r.PrimaryPublicSpendKey()
	for i := 1; i < MinFusionInputs; i++ {
		fund(r, pub, byte(i), 1000, 1, false)
	}

	if _, err := p.SendFusionTransactionBasic(context.Background()); !errors.Is(err, walleterr.FullyOptimized) {
		t.Fatalf("got %v, want FullyOptimized", err)
	}

	fund(r, pub, byte(MinFusionInputs), 1000, 1, false)
	pt, err := p.SendFusionTransactionBasic(context.Background())
	if err != nil {
		t.Fatalf("SendFusionTransactionBasic() error: %v", err)
	}
	sent := d.sent[0]
	if len(sent.Inputs) != MinFusionInputs || len(sent.Outputs) != 1 {
		t.Errorf("shape = %d in / %d out", len(sent.Inputs), len(sent.Outputs))
	}
	if sent.Outputs[0].Key != pub || sent.Outputs[0].Amount != 1000*MinFusionInputs {
		t.Errorf("output = %+v", sent.Outputs[0])
	}
	if pt.Fee != 0 {
		t.Errorf("fee = %d, want 0", pt.Fee)
	}
	unconfirmed := r.UnconfirmedTransactions()
	if len(unconfirmed) != 1 || !unconfirmed[0].IsFusion() {
		t.Errorf("unconfirmed = %+v, want one fusion", unconfirmed)
	}
}

func TestSendFusionTransactionAdvanced_Deferred(t *testing.T) {
	p, r, d := newTestPipeline(t)
	pub := r.PrimaryPublicSpendKey()
	for i := 1; i <= MinFusionInputs+3; i++ {
		fund(r, pub, byte(i), uint64(i)*100, 1, false)
	}
	stranger, _ := otherAddress(t)
	ctx := context.Background()

	if _, err := p.SendFusionTransactionAdvanced(ctx, FusionParams{Destination: stranger}, false); !errors.Is(err, walleterr.AddressNotInWallet) {
		t.Fatalf("foreign destination: got %v", err)
	}

	pt, err := p.SendFusionTransactionAdvanced(ctx, FusionParams{Destination: r.PrimaryAddress()}, false)
	if err != nil {
		t.Fatalf("SendFusionTransactionAdvanced() error: %v", err)
	}
	if d.sentCount() != 0 {
		t.Fatal("deferred fusion was broadcast")
	}
	if err := p.SendPreparedTransaction(ctx, pt.Hash); err != nil {
		t.Fatalf("SendPreparedTransaction() error: %v", err)
	}
	if d.sentCount() != 1 {
		t.Errorf("sent = %d, want 1", d.sentCount())
	}
}

func TestFusionCandidates(t *testing.T) {
	inputs := makeInputs(5, 50, 500, 0, 1)
	got := fusionCandidates(inputs, 100)
	if len(got) != 3 {
		t.Fatalf("candidates = %d, want 3", len(got))
	}
	for i, want := range []uint64{1, 5, 50} {
		if got[i].Amount != want {
			t.Errorf("candidate %d = %d, want %d", i, got[i].Amount, want)
		}
	}
	if n := len(fusionCandidates(inputs, 0)); n != 4 {
		t.Errorf("no threshold: %d candidates, want 4", n)
	}
}
