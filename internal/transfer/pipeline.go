package transfer

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/guard"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/subwallets"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// Defaults for Params.
const (
	DefaultMinFeeRate      = 10
	DefaultFusionThreshold = 0
	MinFusionInputs        = 12
	MaxFusionInputs        = 500
)

// now returns the current unix time. Replaced in tests.
var now = func() uint64 { return uint64(time.Now().Unix()) }

// Params are the network rules the pipeline builds against.
type Params struct {
	// MinFeeRate is the lowest fee the network relays, in base units per byte.
	MinFeeRate uint64
	// FusionThreshold is the largest input amount a fusion transaction
	// consolidates. Zero means every input qualifies.
	FusionThreshold uint64
}

// Pipeline prepares transactions against the registry, caches the ones that
// are not sent straight away and submits them to the daemon.
//
// txMu serializes building and sending. Neither pauses the synchronizer;
// only committing a sent transaction to the registry runs under the guard.
type Pipeline struct {
	txMu     sync.Mutex
	prepared map[types.Hash]*PreparedTransaction

	wallets *subwallets.Registry
	daemon  Daemon
	guard   *guard.Guard
	params  Params
}

// New creates a pipeline.
func New(wallets *subwallets.Registry, d Daemon, g *guard.Guard, params Params) *Pipeline {
	if params.MinFeeRate == 0 {
		params.MinFeeRate = DefaultMinFeeRate
	}
	return &Pipeline{
		prepared: make(map[types.Hash]*PreparedTransaction),
		wallets:  wallets,
		daemon:   d,
		guard:    g,
		params:   params,
	}
}

// SendTransactionBasic pays amount to destination from any sub-wallet at the
// minimum fee, with change to the primary address. With send false the
// transaction is cached for SendPreparedTransaction instead.
func (p *Pipeline) SendTransactionBasic(ctx context.Context, destination string, amount uint64, paymentID string, sendAll, send bool) (*PreparedTransaction, error) {
	return p.SendTransactionAdvanced(ctx, AdvancedParams{
		Destinations: []Destination{{Address: destination, Amount: amount}},
		PaymentID:    paymentID,
		SendAll:      sendAll,
	}, send)
}

// SendTransactionAdvanced builds a transaction from params and either sends
// it or caches it.
func (p *Pipeline) SendTransactionAdvanced(ctx context.Context, params AdvancedParams, send bool) (*PreparedTransaction, error) {
	p.txMu.Lock()
	defer p.txMu.Unlock()

	pt, err := p.prepare(params)
	if err != nil {
		return nil, err
	}
	return p.finish(ctx, pt, send)
}

// SendFusionTransactionBasic consolidates small inputs of every sub-wallet
// into the primary address and sends the result.
func (p *Pipeline) SendFusionTransactionBasic(ctx context.Context) (*PreparedTransaction, error) {
	return p.SendFusionTransactionAdvanced(ctx, FusionParams{}, true)
}

// SendFusionTransactionAdvanced builds a fusion transaction from params and
// either sends it or caches it.
func (p *Pipeline) SendFusionTransactionAdvanced(ctx context.Context, params FusionParams, send bool) (*PreparedTransaction, error) {
	p.txMu.Lock()
	defer p.txMu.Unlock()

	pt, err := p.prepareFusion(params)
	if err != nil {
		return nil, err
	}
	return p.finish(ctx, pt, send)
}

func (p *Pipeline) finish(ctx context.Context, pt *PreparedTransaction, send bool) (*PreparedTransaction, error) {
	if !send {
		p.prepared[pt.Hash] = pt
		log.Transfer.Debug().Str("hash", pt.Hash.String()).Msg("Cached prepared transaction")
		return pt, nil
	}
	if err := p.submit(ctx, pt); err != nil {
		return nil, err
	}
	return pt, nil
}

// SendPreparedTransaction sends a cached transaction. The entry is removed
// once it is sent or found expired, so a prepared transaction reaches the
// daemon at most once.
func (p *Pipeline) SendPreparedTransaction(ctx context.Context, hash types.Hash) error {
	p.txMu.Lock()
	defer p.txMu.Unlock()

	pt, ok := p.prepared[hash]
	if !ok {
		return walleterr.PreparedTransactionNotFound
	}

	err := p.submit(ctx, pt)
	if errors.Is(err, walleterr.PreparedTransactionExpired) {
		p.removeLocked(hash)
		return err
	}
	if err != nil {
		return err
	}
	p.removeLocked(hash)
	return nil
}

// RemovePreparedTransaction drops a cached transaction and reports whether
// it was there.
func (p *Pipeline) RemovePreparedTransaction(hash types.Hash) bool {
	p.txMu.Lock()
	defer p.txMu.Unlock()
	return p.removeLocked(hash)
}

func (p *Pipeline) removeLocked(hash types.Hash) bool {
	if _, ok := p.prepared[hash]; !ok {
		log.Transfer.Info().Str("hash", hash.String()).Msg("Could not remove prepared transaction, not found")
		return false
	}
	delete(p.prepared, hash)
	log.Transfer.Info().Str("hash", hash.String()).Msg("Removed prepared transaction")
	return true
}

// PreparedTransactions returns the cached transactions ordered by hash.
func (p *Pipeline) PreparedTransactions() []*PreparedTransaction {
	p.txMu.Lock()
	defer p.txMu.Unlock()

	out := make([]*PreparedTransaction, 0, len(p.prepared))
	for _, pt := range p.prepared {
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hash.String() < out[j].Hash.String()
	})
	return out
}

// submit sends pt and records it as an unconfirmed outgoing transaction. It
// fails with PreparedTransactionExpired when an input was spent or locked
// since pt was built. Only the registry commit pauses the synchronizer.
func (p *Pipeline) submit(ctx context.Context, pt *PreparedTransaction) error {
	if !p.wallets.AllUnspent(pt.Inputs) {
		return walleterr.PreparedTransactionExpired
	}
	if err := p.daemon.SendTransaction(ctx, pt.Tx); err != nil {
		log.Transfer.Warn().Err(err).Str("hash", pt.Hash.String()).Msg("Daemon did not accept transaction")
		return err
	}

	err := p.guard.PauseAndRun(ctx, func(context.Context) error {
		p.wallets.MarkSent(pt.record, pt.Inputs, pt.incoming)
		p.wallets.StoreTxPrivateKey(pt.Hash, pt.txPrivateKey)
		return nil
	})
	if err != nil {
		return err
	}
	log.Transfer.Info().
		Str("hash", pt.Hash.String()).
		Uint64("fee", pt.Fee).
		Int("inputs", len(pt.Inputs)).
		Msg("Transaction sent")
	return nil
}
