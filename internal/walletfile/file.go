package walletfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
)

// CheckNewFilename verifies a new wallet can be created at filename: the
// file must not exist and must be creatable. The probe file is removed again.
func CheckNewFilename(filename string) error {
	if _, err := os.Stat(filename); err == nil {
		return walleterr.WalletFileAlreadyExists
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return walleterr.WalletFileAlreadyExists
		}
		return walleterr.Wrap(walleterr.InvalidWalletFilename, err)
	}
	f.Close()

	// Don't leave stray files around if creation fails later on.
	if err := os.Remove(filename); err != nil {
		return walleterr.Wrap(walleterr.InvalidWalletFilename, err)
	}
	return nil
}

// ReadFile reads and decodes the wallet file at filename.
func (c Codec) ReadFile(filename, password string) (*Document, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, walleterr.Wrap(walleterr.FilenameNonExistent, err)
	}
	return c.Decode(raw, password)
}

// WriteFile encodes doc and replaces filename with it. The new contents are
// staged in a temp file in the same directory, synced and renamed over the
// old file, so a crash mid-save leaves either the old or the new wallet.
func (c Codec) WriteFile(filename string, doc *Document, password string) error {
	data, err := c.Encode(doc, password)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filename)
	tmp, err := os.CreateTemp(dir, filepath.Base(filename)+".tmp-*")
	if err != nil {
		return walleterr.Wrap(walleterr.InvalidWalletFilename, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := writeAndSync(tmp, data); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("chmod wallet: %w", err)
	}
	if err := os.Rename(tmpName, filename); err != nil {
		return walleterr.Wrap(walleterr.InvalidWalletFilename, err)
	}
	return nil
}

func writeAndSync(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
