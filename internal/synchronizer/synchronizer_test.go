package synchronizer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/daemon"
	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

type fakeSource struct {
	mu     sync.Mutex
	blocks []daemon.Block
	reqs   []daemon.SyncRequest
	err    error
}

func (f *fakeSource) GetWalletSyncData(_ context.Context, req daemon.SyncRequest) (*daemon.SyncData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}

	var out []daemon.Block
	for _, b := range f.blocks {
		if req.StartHeight == 0 && req.StartTimestamp != 0 && b.Timestamp < req.StartTimestamp {
			continue
		}
		if b.Height >= req.StartHeight && len(out) < req.BlockCount {
			out = append(out, b)
		}
	}
	top := uint64(len(f.blocks))
	synced := len(out) == 0 || out[len(out)-1].Height+1 >= top
	return &daemon.SyncData{Blocks: out, Synced: synced, TopHeight: top}, nil
}

func (f *fakeSource) requests() []daemon.SyncRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]daemon.SyncRequest(nil), f.reqs...)
}

// chain builds n empty blocks, one second apart from timestamp 1000.
func chain(n int) []daemon.Block {
	blocks := make([]daemon.Block, n)
	for i := range blocks {
		blocks[i] = daemon.Block{
			Height:    uint64(i),
			Hash:      crypto.Hash([]byte{byte(i), byte(i >> 8)}),
			Timestamp: 1000 + uint64(i),
		}
	}
	return blocks
}

func newStore(t *testing.T) (*subwallets.Registry, crypto.KeyPair) {
	t.Helper()
	spend, err := crypto.GenerateKeys()
	if err != nil {
		t.Fatalf("GenerateKeys() error: %v", err)
	}
	r, err := subwallets.New(spend.SecretKey, crypto.ViewFromSpend(spend.SecretKey), 0, 0)
	if err != nil {
		t.Fatalf("subwallets.New() error: %v", err)
	}
	return r, spend
}

func payTo(key types.PublicKey, amount uint64, height uint64) *tx.Transaction {
	return &tx.Transaction{
		Version:    tx.Version,
		UnlockTime: height, // makes each coinbase hash unique
		Outputs:    []tx.Output{{Amount: amount, Key: key}},
	}
}

func newTestSync(src Source, store Store, start uint64) *Synchronizer {
	s := New(start, 0, Options{})
	s.InitializeAfterLoad(src, store, Options{BlockCount: 4, Interval: 5 * time.Millisecond, Threads: 2})
	return s
}

func TestStep_ScansOutputsAndSpends(t *testing.T) {
	store, spend := newStore(t)
	other, _ := crypto.GenerateKeys()

	blocks := chain(6)
	blocks[1].Coinbase = payTo(spend.PublicKey, 500, 1)
	blocks[2].Coinbase = payTo(other.PublicKey, 700, 2) // not ours

	cb := blocks[1].Coinbase
	ki := crypto.DeriveKeyImage(cb.Hash(), 0, spend.PublicKey)
	blocks[4].Transactions = []tx.Transaction{{
		Version: tx.Version,
		Inputs:  []tx.Input{{KeyImage: ki, Amount: 500}},
		Outputs: []tx.Output{{Amount: 300, Key: other.PublicKey}, {Amount: 190, Key: spend.PublicKey}},
	}}

	src := &fakeSource{blocks: blocks}
	s := newTestSync(src, store, 0)

	for i := 0; i < 3 && s.CurrentScanHeight() < 6; i++ {
		s.step(context.Background())
	}
	if got := s.CurrentScanHeight(); got != 6 {
		t.Fatalf("CurrentScanHeight() = %d, want 6", got)
	}

	txs := store.Transactions()
	if len(txs) != 2 {
		t.Fatalf("transactions = %d, want 2", len(txs))
	}
	if !txs[0].Coinbase || txs[0].Transfers[spend.PublicKey] != 500 {
		t.Errorf("coinbase = %+v", txs[0])
	}
	if txs[1].Transfers[spend.PublicKey] != -310 || txs[1].Fee != 10 {
		t.Errorf("spend = %+v", txs[1])
	}

	// Only the 190 change remains; it is not a coinbase so it is unlocked.
	if u, l := store.Balance(nil, 6, 0); u != 190 || l != 0 {
		t.Errorf("Balance() = %d/%d, want 190/0", u, l)
	}
}

func TestScanner_SpendInSameBlock(t *testing.T) {
	store, spend := newStore(t)
	other, _ := crypto.GenerateKeys()

	funding := tx.Transaction{Version: tx.Version, Outputs: []tx.Output{{Amount: 100, Key: spend.PublicKey}}}
	ki := crypto.DeriveKeyImage(funding.Hash(), 0, spend.PublicKey)
	spending := tx.Transaction{
		Version: tx.Version,
		Inputs:  []tx.Input{{KeyImage: ki, Amount: 100}},
		Outputs: []tx.Output{{Amount: 100, Key: other.PublicKey}},
	}
	b := daemon.Block{Height: 3, Transactions: []tx.Transaction{funding, spending}}

	var sc TransparentScanner
	res := sc.Resolve(b, sc.ScanOutputs(b, store), store)
	if len(res.Transactions) != 2 || len(res.Spent) != 1 {
		t.Fatalf("result = %+v", res)
	}
	store.ApplyBlock(res)
	if u, _ := store.Balance(nil, 10, 0); u != 0 {
		t.Errorf("balance = %d, want 0", u)
	}
}

func TestStep_StartTimestamp(t *testing.T) {
	store, _ := newStore(t)
	src := &fakeSource{blocks: chain(10)}

	s := New(0, 1005, Options{})
	s.InitializeAfterLoad(src, store, Options{BlockCount: 100})
	s.step(context.Background())

	reqs := src.requests()
	if reqs[0].StartTimestamp != 1005 {
		t.Errorf("first request timestamp = %d, want 1005", reqs[0].StartTimestamp)
	}
	if s.CurrentScanHeight() != 10 {
		t.Errorf("CurrentScanHeight() = %d, want 10", s.CurrentScanHeight())
	}
	s.step(context.Background())
	if reqs = src.requests(); reqs[1].StartTimestamp != 0 || reqs[1].StartHeight != 10 {
		t.Errorf("second request = %+v", reqs[1])
	}
}

func TestStep_DaemonError(t *testing.T) {
	store, _ := newStore(t)
	src := &fakeSource{blocks: chain(3), err: errors.New("offline")}
	s := newTestSync(src, store, 0)

	if caughtUp := s.step(context.Background()); !caughtUp {
		t.Error("step() should back off on error")
	}
	if s.CurrentScanHeight() != 0 {
		t.Error("checkpoint advanced on error")
	}
}

func TestResetRewind(t *testing.T) {
	store, _ := newStore(t)
	s := newTestSync(&fakeSource{blocks: chain(20)}, store, 5)

	s.Pause()
	s.Rewind(2)
	s.Resume()
	if s.CurrentScanHeight() != 2 || s.startHeight != 2 {
		t.Errorf("after Rewind(2): height %d start %d", s.CurrentScanHeight(), s.startHeight)
	}

	s.Pause()
	s.Reset(7)
	s.Resume()
	if s.CurrentScanHeight() != 7 || s.startHeight != 7 {
		t.Errorf("after Reset(7): height %d start %d", s.CurrentScanHeight(), s.startHeight)
	}
}

func TestSetEndScanHeight_JumpsToTip(t *testing.T) {
	store, _ := newStore(t)
	src := &fakeSource{blocks: chain(40)}
	s := newTestSync(src, store, 0)

	s.Pause()
	s.Rewind(10)
	s.SetEndScanHeight(16)
	s.Resume()

	for i := 0; i < 5; i++ {
		s.step(context.Background())
	}
	for _, req := range src.requests() {
		if req.StartHeight >= 16 && req.StartHeight < 40 {
			t.Fatalf("scanned past the range end: %+v", req)
		}
		if req.StartHeight < 16 && req.StartHeight+uint64(req.BlockCount) > 16 {
			t.Fatalf("request crosses the range end: %+v", req)
		}
	}
	if s.CurrentScanHeight() != 40 {
		t.Errorf("CurrentScanHeight() = %d, want the tip 40", s.CurrentScanHeight())
	}
}

func TestStep_DiscardsBatchAcrossPause(t *testing.T) {
	store, _ := newStore(t)
	s := newTestSync(&fakeSource{blocks: chain(10)}, store, 0)

	src := &pausingSource{fakeSource: fakeSource{blocks: chain(10)}, s: s}
	s.InitializeAfterLoad(src, store, Options{BlockCount: 4})

	s.step(context.Background())
	if s.CurrentScanHeight() != 3 {
		t.Errorf("CurrentScanHeight() = %d, want 3 from the reset", s.CurrentScanHeight())
	}
}

// pausingSource resets the synchronizer while a fetch is in flight.
type pausingSource struct {
	fakeSource
	s *Synchronizer
}

func (p *pausingSource) GetWalletSyncData(ctx context.Context, req daemon.SyncRequest) (*daemon.SyncData, error) {
	p.s.Pause()
	p.s.Reset(3)
	p.s.Resume()
	return p.fakeSource.GetWalletSyncData(ctx, req)
}

func TestStartStop_PauseHoldsCheckpoint(t *testing.T) {
	store, _ := newStore(t)
	s := newTestSync(&fakeSource{blocks: chain(200)}, store, 0)

	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for s.CurrentScanHeight() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("synchronizer made no progress")
		}
		time.Sleep(time.Millisecond)
	}

	s.Pause()
	held := s.CurrentScanHeight()
	time.Sleep(30 * time.Millisecond)
	if got := s.CurrentScanHeight(); got != held {
		t.Errorf("checkpoint moved while paused: %d -> %d", held, got)
	}
	s.Resume()

	for s.CurrentScanHeight() < 200 {
		if time.Now().After(deadline) {
			t.Fatalf("synchronizer stuck at %d", s.CurrentScanHeight())
		}
		time.Sleep(time.Millisecond)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
}

func TestStart_WithoutCollaboratorsPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	New(0, 0, Options{}).Start()
}

func TestJSON_RoundTrip(t *testing.T) {
	s := New(4, 1234, Options{})
	s.nextHeight.Store(99)

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}
	restored, err := FromJSON(data)
	if err != nil {
		t.Fatalf("FromJSON() error: %v", err)
	}
	if restored.CurrentScanHeight() != 99 || restored.startHeight != 4 || restored.startTimestamp != 1234 {
		t.Errorf("restored = height %d start %d ts %d", restored.CurrentScanHeight(), restored.startHeight, restored.startTimestamp)
	}

	if _, err := FromJSON([]byte(`{"startHeight":10,"transactionSynchronizerStatus":2}`)); err == nil {
		t.Error("expected error for scan height below start")
	}
	if _, err := FromJSON([]byte(`[`)); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestTimestampToScanHeight(t *testing.T) {
	tests := []struct {
		ts, genesis, blockTime, want uint64
	}{
		{0, 1000, 3, 0},
		{999, 1000, 3, 0},
		{1000, 1000, 3, 0},
		{1030, 1000, 3, 10},
		{1031, 1000, 3, 10},
		{5000, 1000, 0, 0},
	}
	for _, tt := range tests {
		if got := TimestampToScanHeight(tt.ts, tt.genesis, tt.blockTime); got != tt.want {
			t.Errorf("TimestampToScanHeight(%d, %d, %d) = %d, want %d", tt.ts, tt.genesis, tt.blockTime, got, tt.want)
		}
	}
}

func TestCurrentTimestampAdjusted(t *testing.T) {
	orig := Now
	defer func() { Now = orig }()

	Now = func() uint64 { return 10_000 }
	if got := CurrentTimestampAdjusted(3); got != 9_700 {
		t.Errorf("CurrentTimestampAdjusted() = %d, want 9700", got)
	}
	Now = func() uint64 { return 10 }
	if got := CurrentTimestampAdjusted(3); got != 0 {
		t.Errorf("CurrentTimestampAdjusted() = %d, want 0", got)
	}
}
