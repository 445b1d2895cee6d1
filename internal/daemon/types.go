package daemon

import (
	"github.com/Klingon-tech/klingnet-wallet/pkg/tx"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// JSON-RPC methods served by the daemon.
const (
	MethodGetInfo     = "chain_getInfo"
	MethodGetFee      = "node_getFee"
	MethodGetSyncData = "wallet_getSyncData"
	MethodSubmitTx    = "tx_submit"
)

// Info is the daemon state the wallet caches.
type Info struct {
	Height        uint64 `json:"height"`
	NetworkHeight uint64 `json:"network_height"`
	PeerCount     uint64 `json:"peer_count"`
	Hashrate      uint64 `json:"hashrate"`
}

// NodeFee is the fee a public node asks every transaction to pay it.
type NodeFee struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

// Block is one block of wallet sync data: the block's transactions with
// their outputs and key images, nothing else.
type Block struct {
	Height       uint64           `json:"height"`
	Hash         types.Hash       `json:"hash"`
	Timestamp    uint64           `json:"timestamp"`
	Coinbase     *tx.Transaction  `json:"coinbase,omitempty"`
	Transactions []tx.Transaction `json:"transactions"`
}

// SyncRequest asks for blocks starting at StartHeight, or at the first block
// with a timestamp at or after StartTimestamp when StartHeight is zero.
type SyncRequest struct {
	StartHeight    uint64 `json:"start_height"`
	StartTimestamp uint64 `json:"start_timestamp"`
	BlockCount     int    `json:"block_count"`
}

// SyncData is the daemon's answer to a SyncRequest.
type SyncData struct {
	Blocks []Block `json:"blocks"`
	// Synced is set when the request reached the top of the chain.
	Synced    bool   `json:"synced"`
	TopHeight uint64 `json:"top_height"`
}

type submitParams struct {
	Hex string `json:"hex"`
}

type submitResult struct {
	Hash types.Hash `json:"hash"`
}
