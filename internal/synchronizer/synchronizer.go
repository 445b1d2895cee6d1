// Package synchronizer keeps a container's sub-wallets in step with the
// chain by scanning blocks fetched from the daemon in the background.
package synchronizer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/daemon"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
	"golang.org/x/sync/errgroup"
)

// Defaults.
const (
	DefaultBlockCount = 100
	DefaultInterval   = 5 * time.Second
	DefaultThreads    = 4
)

// Source supplies blocks to scan.
type Source interface {
	GetWalletSyncData(ctx context.Context, req daemon.SyncRequest) (*daemon.SyncData, error)
}

// Options tune the synchronizer.
type Options struct {
	// Threads bounds how many blocks of a batch are scanned at once.
	Threads int
	// Interval is the pause between polls once the chain tip is reached.
	Interval   time.Duration
	BlockCount int
	Scanner    Scanner
}

func (o Options) withDefaults() Options {
	if o.Threads <= 0 {
		o.Threads = DefaultThreads
	}
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.BlockCount <= 0 {
		o.BlockCount = DefaultBlockCount
	}
	if o.Scanner == nil {
		o.Scanner = TransparentScanner{}
	}
	return o
}

// Synchronizer scans the chain for a container.
//
// Every loop iteration takes the work lock before touching the checkpoint or
// the store, so holding it (Pause) guarantees the loop is between units of
// work and stays there until Resume.
type Synchronizer struct {
	work sync.Mutex

	// Checkpoint state, guarded by work.
	startHeight    uint64
	startTimestamp uint64
	endScanHeight  uint64
	topHeight      uint64
	// generation changes on every Resume, so a batch fetched across a
	// pause is discarded.
	generation uint64

	// nextHeight is written under work but may be read at any time.
	nextHeight atomic.Uint64

	store  Store
	source Source
	opts   Options

	mu      sync.Mutex // guards the fields below
	cancel  context.CancelFunc
	group   *errgroup.Group
	running bool
}

// New creates a synchronizer that starts scanning at startHeight, or at
// startTimestamp when startHeight is zero and startTimestamp is not.
func New(startHeight, startTimestamp uint64, opts Options) *Synchronizer {
	s := &Synchronizer{
		startHeight:    startHeight,
		startTimestamp: startTimestamp,
		opts:           opts.withDefaults(),
	}
	s.nextHeight.Store(startHeight)
	return s
}

// InitializeAfterLoad attaches the runtime collaborators, which are never
// serialized. It must be called before Start.
func (s *Synchronizer) InitializeAfterLoad(source Source, store Store, opts Options) {
	s.work.Lock()
	defer s.work.Unlock()
	s.source = source
	s.store = store
	s.opts = opts.withDefaults()
}

// Start launches the background loop.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	if s.source == nil || s.store == nil {
		panic("synchronizer: Start called before InitializeAfterLoad")
	}

	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.run(gctx) })

	s.cancel = cancel
	s.group = g
	s.running = true
}

// Stop ends the background loop and waits for the current iteration.
func (s *Synchronizer) Stop() error {
	s.mu.Lock()
	cancel, g := s.cancel, s.group
	s.cancel, s.group, s.running = nil, nil, false
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	return g.Wait()
}

// Pause blocks until the loop is between iterations and keeps it there.
// Every Pause must be followed by exactly one Resume.
func (s *Synchronizer) Pause() {
	s.work.Lock()
}

// Resume lets the loop continue after Pause. A batch fetched before the
// pause is discarded.
func (s *Synchronizer) Resume() {
	s.generation++
	s.work.Unlock()
}

func (s *Synchronizer) run(ctx context.Context) error {
	for {
		caughtUp := s.step(ctx)

		wait := time.Duration(0)
		if caughtUp {
			wait = s.opts.Interval
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// step fetches and applies one batch, returning true once at the chain tip
// or when the daemon could not be reached.
func (s *Synchronizer) step(ctx context.Context) bool {
	s.work.Lock()
	next := s.nextHeight.Load()
	if s.endScanHeight != 0 && next >= s.endScanHeight {
		s.finishRange()
		s.work.Unlock()
		return false
	}
	req := daemon.SyncRequest{
		StartHeight: next,
		BlockCount:  s.opts.BlockCount,
	}
	if next == 0 {
		req.StartTimestamp = s.startTimestamp
	}
	if s.endScanHeight != 0 && next+uint64(req.BlockCount) > s.endScanHeight {
		req.BlockCount = int(s.endScanHeight - next)
	}
	gen := s.generation
	source := s.source
	s.work.Unlock()

	data, err := source.GetWalletSyncData(ctx, req)
	if err != nil {
		if ctx.Err() == nil {
			log.Sync.Debug().Err(err).Uint64("height", req.StartHeight).Msg("fetch sync data failed")
		}
		return true
	}

	outputs, err := s.scanOutputs(ctx, data.Blocks)
	if err != nil {
		return true
	}

	s.work.Lock()
	defer s.work.Unlock()

	if s.generation != gen {
		// Paused while fetching; the checkpoint or the store may have
		// changed under the batch.
		return false
	}
	s.topHeight = data.TopHeight
	for i, b := range data.Blocks {
		if b.Height < s.nextHeight.Load() {
			continue
		}
		s.store.ApplyBlock(s.opts.Scanner.Resolve(b, outputs[i], s.store))
		s.nextHeight.Store(b.Height + 1)
		s.startTimestamp = 0
	}
	if len(data.Blocks) > 0 {
		log.Sync.Debug().Uint64("height", s.nextHeight.Load()).Int("blocks", len(data.Blocks)).Msg("scanned blocks")
	}
	if s.endScanHeight != 0 && s.nextHeight.Load() >= s.endScanHeight {
		s.finishRange()
		return false
	}
	return data.Synced || len(data.Blocks) == 0
}

// finishRange ends a bounded re-scan and jumps to the chain tip. work must
// be held.
func (s *Synchronizer) finishRange() {
	log.Sync.Info().Uint64("end", s.endScanHeight).Uint64("resume", s.topHeight).Msg("range scan complete")
	if s.topHeight > s.nextHeight.Load() {
		s.nextHeight.Store(s.topHeight)
	}
	s.endScanHeight = 0
}

func (s *Synchronizer) scanOutputs(ctx context.Context, blocks []daemon.Block) ([][]subwallets.OwnedInput, error) {
	outputs := make([][]subwallets.OwnedInput, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Threads)
	for i := range blocks {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outputs[i] = s.opts.Scanner.ScanOutputs(blocks[i], s.store)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// Reset restarts scanning from scanHeight, forgetting the start timestamp.
// The caller must hold the synchronizer paused.
func (s *Synchronizer) Reset(scanHeight uint64) {
	s.startHeight = scanHeight
	s.startTimestamp = 0
	s.nextHeight.Store(scanHeight)
	s.endScanHeight = 0
}

// Rewind moves the checkpoint back to scanHeight, keeping the original
// start. The caller must hold the synchronizer paused.
func (s *Synchronizer) Rewind(scanHeight uint64) {
	if scanHeight < s.startHeight {
		s.startHeight = scanHeight
	}
	s.startTimestamp = 0
	s.nextHeight.Store(scanHeight)
	s.endScanHeight = 0
}

// SetEndScanHeight bounds the scan: on reaching height the synchronizer
// jumps to the chain tip. The caller must hold the synchronizer paused.
func (s *Synchronizer) SetEndScanHeight(height uint64) {
	s.endScanHeight = height
}

// CurrentScanHeight is the height of the next block to scan; every block
// below it has been scanned.
func (s *Synchronizer) CurrentScanHeight() uint64 {
	return s.nextHeight.Load()
}

// SwapNode points the synchronizer at a new source. Blocks already scanned
// are kept. The caller must hold the synchronizer paused.
func (s *Synchronizer) SwapNode(source Source) {
	s.source = source
}

// synchronizerJSON is the serialized checkpoint.
type synchronizerJSON struct {
	StartHeight    uint64 `json:"startHeight"`
	StartTimestamp uint64 `json:"startTimestamp"`
	NextHeight     uint64 `json:"transactionSynchronizerStatus"`
}

// MarshalJSON encodes the checkpoint. The caller must hold the synchronizer
// paused.
func (s *Synchronizer) MarshalJSON() ([]byte, error) {
	return json.Marshal(synchronizerJSON{
		StartHeight:    s.startHeight,
		StartTimestamp: s.startTimestamp,
		NextHeight:     s.nextHeight.Load(),
	})
}

// FromJSON restores a checkpoint encoded by MarshalJSON.
func FromJSON(data []byte) (*Synchronizer, error) {
	var j synchronizerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("decode synchronizer: %w", err)
	}
	if j.NextHeight < j.StartHeight {
		return nil, fmt.Errorf("decode synchronizer: scan height %d below start %d", j.NextHeight, j.StartHeight)
	}
	s := New(j.StartHeight, j.StartTimestamp, Options{})
	s.nextHeight.Store(j.NextHeight)
	return s, nil
}

// Now returns the current unix time in seconds; variable for tests.
var Now = func() uint64 {
	return uint64(time.Now().Unix())
}

// TimestampToScanHeight estimates the height of the first block produced at
// or after timestamp, from the genesis timestamp and the block target time.
func TimestampToScanHeight(timestamp, genesisTimestamp, blockTime uint64) uint64 {
	if timestamp <= genesisTimestamp || blockTime == 0 {
		return 0
	}
	return (timestamp - genesisTimestamp) / blockTime
}

// CurrentTimestampAdjusted is the start timestamp given to a freshly created
// wallet: now, minus a margin so blocks mined while the wallet was being
// created are not missed.
func CurrentTimestampAdjusted(blockTime uint64) uint64 {
	margin := 100 * blockTime
	now := Now()
	if now < margin {
		return 0
	}
	return now - margin
}
