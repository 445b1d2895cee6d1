package backend

import (
	"github.com/Klingon-tech/klingnet-wallet/internal/wallet"
	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"github.com/Klingon-tech/klingnet-wallet/pkg/crypto"
	"github.com/Klingon-tech/klingnet-wallet/pkg/types"
)

// GetSpendKeys returns the public and private spend key of the sub-wallet
// at address.
func (b *Backend) GetSpendKeys(address string) (types.PublicKey, types.SecretKey, error) {
	pub, err := b.wallets.ResolveAddress(address)
	if err != nil {
		return types.PublicKey{}, types.SecretKey{}, err
	}
	return b.wallets.SpendKeys(pub)
}

// GetMnemonicSeedForAddress returns the mnemonic seed of the sub-wallet at
// address. Only wallets whose view key derives from the spend key have one.
func (b *Backend) GetMnemonicSeedForAddress(address string) (string, error) {
	_, spend, err := b.GetSpendKeys(address)
	if err != nil {
		return "", err
	}
	return b.mnemonic(spend)
}

// GetMnemonicSeed returns the mnemonic seed of the primary address.
func (b *Backend) GetMnemonicSeed() (string, error) {
	spend, err := b.wallets.PrimaryPrivateSpendKey()
	if err != nil {
		return "", err
	}
	return b.mnemonic(spend)
}

func (b *Backend) mnemonic(spend types.SecretKey) (string, error) {
	if crypto.ViewFromSpend(spend) != b.wallets.PrivateViewKey() {
		return "", walleterr.KeysNotDeterministic
	}
	return wallet.PrivateKeyToMnemonic(spend)
}

// GetPrimaryAddressPrivateKeys returns the private spend and view key of the
// primary address.
func (b *Backend) GetPrimaryAddressPrivateKeys() (spend, view types.SecretKey, err error) {
	spend, err = b.wallets.PrimaryPrivateSpendKey()
	if err != nil {
		return types.SecretKey{}, types.SecretKey{}, err
	}
	return spend, b.wallets.PrivateViewKey(), nil
}

// GetPrivateViewKey returns the private view key shared by every
// sub-wallet.
func (b *Backend) GetPrivateViewKey() types.SecretKey {
	return b.wallets.PrivateViewKey()
}
