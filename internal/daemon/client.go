// Package daemon is the wallet's client for a klingnet daemon.
package daemon

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/rpcclient"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
	"github.com/sony/gobreaker"
	"go.uber.org/ratelimit"
	"golang.org/x/sync/errgroup"
)

// Breaker tuning.
var (
	// MaxConsecutiveFailures trips the breaker and marks the daemon offline.
	MaxConsecutiveFailures uint32 = 3
	// RetryAfter is how long the breaker stays open before probing again.
	RetryAfter = 10 * time.Second
)

// Config describes the daemon to connect to.
type Config struct {
	Host    string
	Port    uint16
	SSL     bool
	Timeout time.Duration
	// RequestsPerSecond caps sync-data requests; zero means unlimited.
	RequestsPerSecond int
	// RefreshInterval is how often cached daemon info is refreshed.
	RefreshInterval time.Duration
}

// Endpoint returns the JSON-RPC URL for the config.
func (c Config) Endpoint() string {
	scheme := "http"
	if c.SSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Client talks to one daemon and caches its height, peer and fee info.
type Client struct {
	mu      sync.RWMutex
	cfg     Config
	rpc     *rpcclient.Client
	breaker *gobreaker.CircuitBreaker
	limiter ratelimit.Limiter
	info    Info
	fee     NodeFee
	online  bool

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New creates a client. Nothing is contacted until Init.
func New(cfg Config) *Client {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 10 * time.Second
	}
	c := &Client{}
	c.configure(cfg)
	return c
}

// configure must be called with mu held or before the client is shared.
func (c *Client) configure(cfg Config) {
	c.cfg = cfg
	c.rpc = rpcclient.New(cfg.Endpoint(), cfg.Timeout)
	c.breaker = newBreaker(cfg.Endpoint())
	if cfg.RequestsPerSecond > 0 {
		c.limiter = ratelimit.New(cfg.RequestsPerSecond)
	} else {
		c.limiter = ratelimit.NewUnlimited()
	}
	c.info = Info{}
	c.fee = NodeFee{}
	c.online = false
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: RetryAfter,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= MaxConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Daemon.Info().Str("daemon", name).Str("from", from.String()).Str("to", to.String()).Msg("daemon state changed")
		},
	})
}

// Init fetches the daemon info and node fee once, then keeps them fresh in
// the background until Stop. An unreachable daemon is not an error: the
// wallet works offline and reconnects when the daemon comes back.
func (c *Client) Init(ctx context.Context) error {
	c.refresh(ctx)
	c.refreshFee(ctx)
	c.start()
	return nil
}

func (c *Client) start() {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	c.mu.Lock()
	c.cancel = cancel
	c.group = g
	interval := c.cfg.RefreshInterval
	c.mu.Unlock()

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				c.refresh(gctx)
			}
		}
	})
}

// Stop ends the background refresh and waits for it to exit.
func (c *Client) Stop() error {
	c.mu.Lock()
	cancel, g := c.cancel, c.group
	c.cancel, c.group = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	return g.Wait()
}

// SwapNode points the client at a different daemon.
func (c *Client) SwapNode(ctx context.Context, host string, port uint16, ssl bool) error {
	if err := c.Stop(); err != nil {
		return err
	}

	c.mu.Lock()
	cfg := c.cfg
	cfg.Host, cfg.Port, cfg.SSL = host, port, ssl
	c.configure(cfg)
	c.mu.Unlock()

	log.Daemon.Info().Str("daemon", cfg.Endpoint()).Msg("swapped node")
	return c.Init(ctx)
}

func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	c.mu.RLock()
	rpc, breaker := c.rpc, c.breaker
	c.mu.RUnlock()

	res, err := breaker.Execute(func() (interface{}, error) {
		err := rpc.Call(ctx, method, params, result)
		var rpcErr *rpcclient.RPCError
		if errors.As(err, &rpcErr) {
			// The daemon answered, so a refusal does not count against it.
			return rpcErr, nil
		}
		return nil, err
	})
	if err != nil {
		return walleterr.Wrap(walleterr.DaemonOffline, err)
	}
	if rpcErr, ok := res.(*rpcclient.RPCError); ok {
		return walleterr.Wrap(walleterr.DaemonError, rpcErr)
	}
	return nil
}

func (c *Client) refresh(ctx context.Context) {
	var info Info
	err := c.call(ctx, MethodGetInfo, nil, &info)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.online {
			log.Daemon.Warn().Err(err).Msg("daemon info refresh failed")
		}
		c.online = false
		return
	}
	c.info = info
	c.online = true
}

func (c *Client) refreshFee(ctx context.Context) {
	var fee NodeFee
	if err := c.call(ctx, MethodGetFee, nil, &fee); err != nil {
		log.Daemon.Debug().Err(err).Msg("node fee unavailable")
		return
	}
	if fee.Address != "" {
		if _, err := types.ParseAddress(fee.Address); err != nil {
			log.Daemon.Warn().Str("address", fee.Address).Msg("ignoring node fee with invalid address")
			return
		}
	}
	c.mu.Lock()
	c.fee = fee
	c.mu.Unlock()
}

// NetworkBlockCount is the height of the network as seen by the daemon.
func (c *Client) NetworkBlockCount() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.NetworkHeight
}

// LocalDaemonBlockCount is the height the daemon has synced to.
func (c *Client) LocalDaemonBlockCount() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.Height
}

// PeerCount is the daemon's peer count.
func (c *Client) PeerCount() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.PeerCount
}

// Hashrate is the network hashrate estimated by the daemon.
func (c *Client) Hashrate() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info.Hashrate
}

// NodeFee returns the node's fee address and amount; zero when it asks none.
func (c *Client) NodeFee() (string, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fee.Address, c.fee.Amount
}

// NodeAddress returns the daemon host and port.
func (c *Client) NodeAddress() (string, uint16) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Host, c.cfg.Port
}

// IsOnline reports whether the last refresh succeeded and the breaker is not
// open.
func (c *Client) IsOnline() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.online && c.breaker.State() != gobreaker.StateOpen
}

// GetWalletSyncData fetches the next batch of blocks for the synchronizer.
func (c *Client) GetWalletSyncData(ctx context.Context, req SyncRequest) (*SyncData, error) {
	c.mu.RLock()
	limiter := c.limiter
	c.mu.RUnlock()
	limiter.Take()

	var data SyncData
	if err := c.call(ctx, MethodGetSyncData, req, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// SendTransaction submits a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, t *tx.Transaction) error {
	payload, err := t.Serialize()
	if err != nil {
		return fmt.Errorf("serialize transaction: %w", err)
	}
	var res submitResult
	if err := c.call(ctx, MethodSubmitTx, submitParams{Hex: hex.EncodeToString(payload)}, &res); err != nil {
		return err
	}
	// The daemon took the transaction; a differing hash is its bookkeeping,
	// not a failed send.
	if want := t.Hash(); !res.Hash.IsZero() && res.Hash != want {
		log.Daemon.Warn().
			Str("hash", want.String()).
			Str("reported", res.Hash.String()).
			Msg("Daemon accepted transaction under a different hash")
	}
	return nil
}
