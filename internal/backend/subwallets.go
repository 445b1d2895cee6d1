package backend

import (
	"context"

	"github.com/Klingon-tech/klingnet-wallet/internal/guard"
	"github.com/Klingon-tech/klingnet-wallet/internal/log"
	"github.com/Klingon-tech/klingnet-wallet/internal/synchronizer"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// AddSubWallet derives the next deterministic sub-wallet and returns its
// address. It has no history, so scanning continues where it is.
func (b *Backend) AddSubWallet() (string, error) {
	b.mustInit()
	ts := synchronizer.CurrentTimestampAdjusted(b.chain.BlockTime)
	address, err := guard.Run(context.Background(), b.guard, func(context.Context) (string, error) {
		return b.wallets.AddSubWallet(ts)
	})
	if err != nil {
		return "", err
	}
	log.Wallet.Info().Str("address", address).Msg("added sub-wallet")
	return address, nil
}

// ImportSubWallet adds the sub-wallet of spend, scanning for it from
// scanHeight.
func (b *Backend) ImportSubWallet(spend types.SecretKey, scanHeight uint64) (string, error) {
	return b.importSubWallet(scanHeight, func() (string, error) {
		return b.wallets.ImportSubWallet(spend, scanHeight)
	})
}

// ImportSubWalletByIndex adds the deterministic sub-wallet at index,
// scanning for it from scanHeight.
func (b *Backend) ImportSubWalletByIndex(index, scanHeight uint64) (string, error) {
	return b.importSubWallet(scanHeight, func() (string, error) {
		return b.wallets.ImportSubWalletByIndex(index, scanHeight)
	})
}

// ImportViewSubWallet adds a view-only sub-wallet for the public spend key
// pub, scanning for it from scanHeight.
func (b *Backend) ImportViewSubWallet(pub types.PublicKey, scanHeight uint64) (string, error) {
	return b.importSubWallet(scanHeight, func() (string, error) {
		return b.wallets.ImportViewSubWallet(pub, scanHeight)
	})
}

// importSubWallet runs add with the synchronizer paused. If blocks at or
// above scanHeight were already scanned, the wallet is rewound so the new
// sub-wallet's history is picked up.
func (b *Backend) importSubWallet(scanHeight uint64, add func() (string, error)) (string, error) {
	b.mustInit()
	address, err := guard.Run(context.Background(), b.guard, func(context.Context) (string, error) {
		address, err := add()
		if err != nil {
			return "", err
		}
		if scanHeight <= b.sync.CurrentScanHeight() {
			b.rewind(scanHeight)
			log.Wallet.Info().Uint64("height", scanHeight).Msg("rescanning for imported sub-wallet")
		}
		return address, nil
	})
	if err != nil {
		return "", err
	}
	log.Wallet.Info().Str("address", address).Uint64("scan_height", scanHeight).Msg("imported sub-wallet")
	return address, nil
}

// DeleteSubWallet removes the sub-wallet at address and its transfers. The
// primary address cannot be deleted.
func (b *Backend) DeleteSubWallet(address string) error {
	b.mustInit()
	err := b.guard.PauseAndRun(context.Background(), func(context.Context) error {
		pub, err := b.wallets.ResolveAddress(address)
		if err != nil {
			return err
		}
		return b.wallets.DeleteSubWallet(pub)
	})
	if err != nil {
		return err
	}
	log.Wallet.Info().Str("address", address).Msg("deleted sub-wallet")
	return nil
}

