// Package walletfile encodes and decodes the encrypted wallet container.
//
// On-disk layout:
//
//	IsAWalletIdentifier | salt(16) | AES-128-CBC(key, iv=salt, IsCorrectPasswordIdentifier | json)
//
// where key = PBKDF2-HMAC-SHA256(password, salt, PBKDF2Iterations, 16).
package walletfile

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"github.com/Klingon-tech/klingnet-wallet/internal/walleterr"
	"golang.org/x/crypto/pbkdf2"
)

// Format constants.
const (
	SaltSize = 16
	KeySize  = 16 // AES-128

	// PBKDF2Iterations is the work factor used for every wallet file.
	PBKDF2Iterations = 500_000

	// FormatVersion is the only walletFileFormatVersion this package loads.
	FormatVersion = 1
)

var (
	// IsAWalletIdentifier prefixes every wallet file in cleartext.
	IsAWalletIdentifier = []byte{
		0x6b, 0x6c, 0x69, 0x6e, 0x67, 0x6e, 0x65, 0x74, // "klingnet"
		0x2d, 0x77, 0x61, 0x6c, 0x6c, 0x65, 0x74, 0x00, // "-wallet\0"
	}

	// IsCorrectPasswordIdentifier prefixes the plaintext. Finding it after
	// decryption proves the password was right.
	IsCorrectPasswordIdentifier = []byte{
		0x70, 0x61, 0x73, 0x73, 0x77, 0x6f, 0x72, 0x64, // "password"
		0x2d, 0x6f, 0x6b, 0x00, 0xc0, 0xff, 0xee, 0x01, // "-ok\0" + tag
	}
)

// Document is the JSON body of a wallet file. The sub-wallet and synchronizer
// sections are opaque to this package.
type Document struct {
	WalletFileFormatVersion int             `json:"walletFileFormatVersion"`
	SubWallets              json.RawMessage `json:"subWallets"`
	WalletSynchronizer      json.RawMessage `json:"walletSynchronizer"`
}

// Codec encodes and decodes wallet files with a fixed PBKDF2 work factor.
type Codec struct {
	Iterations int
}

// DefaultCodec uses PBKDF2Iterations.
var DefaultCodec = Codec{Iterations: PBKDF2Iterations}

// Encode encrypts doc with DefaultCodec.
func Encode(doc *Document, password string) ([]byte, error) {
	return DefaultCodec.Encode(doc, password)
}

// Decode decrypts raw with DefaultCodec.
func Decode(raw []byte, password string) (*Document, error) {
	return DefaultCodec.Decode(raw, password)
}

func (c Codec) iterations() int {
	if c.Iterations <= 0 {
		return PBKDF2Iterations
	}
	return c.Iterations
}

// deriveKey derives the 16-byte AES key from password and salt.
func (c Codec) deriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, c.iterations(), KeySize, sha256.New)
}

// Encode serializes doc and encrypts it with a fresh random salt. The version
// field is always written as FormatVersion.
func (c Codec) Encode(doc *Document, password string) ([]byte, error) {
	body := *doc
	body.WalletFileFormatVersion = FormatVersion
	jsonData, err := json.Marshal(&body)
	if err != nil {
		return nil, fmt.Errorf("marshal wallet: %w", err)
	}

	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := c.deriveKey(password, salt)
	defer zero(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	plaintext := make([]byte, 0, len(IsCorrectPasswordIdentifier)+len(jsonData))
	plaintext = append(plaintext, IsCorrectPasswordIdentifier...)
	plaintext = append(plaintext, jsonData...)
	plaintext = pkcs7Pad(plaintext, aes.BlockSize)
	defer zero(plaintext)

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, salt).CryptBlocks(ciphertext, plaintext)

	out := make([]byte, 0, len(IsAWalletIdentifier)+SaltSize+len(ciphertext))
	out = append(out, IsAWalletIdentifier...)
	out = append(out, salt...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decode verifies and decrypts a wallet file.
//
// A failed decryption and a bad padding both report WrongPassword so that an
// attacker cannot use the error as a padding oracle.
func (c Codec) Decode(raw []byte, password string) (*Document, error) {
	data, err := stripIdentifier(raw, IsAWalletIdentifier, walleterr.NotAWalletFile, walleterr.NotAWalletFile)
	if err != nil {
		return nil, err
	}

	if len(data) < SaltSize {
		return nil, walleterr.WalletFileCorrupted
	}
	salt := data[:SaltSize]
	ciphertext := data[SaltSize:]

	key := c.deriveKey(password, salt)
	defer zero(key)

	plaintext, err := decryptCBC(key, salt, ciphertext)
	if err != nil {
		return nil, walleterr.WrongPassword
	}
	defer zero(plaintext)

	// TODO: the two failure kinds here differ (short buffer vs wrong prefix)
	// while the padding failure above collapses to WrongPassword; re-audit
	// whether the short-buffer case should collapse too.
	jsonData, err := stripIdentifier(plaintext, IsCorrectPasswordIdentifier,
		walleterr.WalletFileCorrupted, walleterr.WrongPassword)
	if err != nil {
		return nil, err
	}

	return parseDocument(jsonData)
}

// parseDocument decodes the JSON body and checks the format version.
func parseDocument(jsonData []byte) (*Document, error) {
	var header struct {
		Version *int `json:"walletFileFormatVersion"`
	}
	if err := json.Unmarshal(jsonData, &header); err != nil {
		return nil, walleterr.Wrap(walleterr.WalletFileCorrupted, err)
	}
	if header.Version == nil {
		return nil, walleterr.WithMessage(walleterr.WalletFileCorrupted,
			"%s: missing walletFileFormatVersion", walleterr.WalletFileCorrupted.Message)
	}
	if *header.Version != FormatVersion {
		return nil, walleterr.WithMessage(walleterr.UnsupportedWalletFileFormatVersion,
			"%s: got %d, want %d", walleterr.UnsupportedWalletFileFormatVersion.Message,
			*header.Version, FormatVersion)
	}

	var doc Document
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, walleterr.Wrap(walleterr.WalletFileCorrupted, err)
	}
	if isEmptyObject(doc.SubWallets) || isEmptyObject(doc.WalletSynchronizer) {
		return nil, walleterr.WithMessage(walleterr.WalletFileCorrupted,
			"%s: missing subWallets or walletSynchronizer", walleterr.WalletFileCorrupted.Message)
	}
	return &doc, nil
}

func isEmptyObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// stripIdentifier checks data starts with identifier and returns the rest.
func stripIdentifier(data, identifier []byte, tooSmall, wrongIdentifier error) ([]byte, error) {
	if len(data) < len(identifier) {
		return nil, tooSmall
	}
	if subtle.ConstantTimeCompare(data[:len(identifier)], identifier) != 1 {
		return nil, wrongIdentifier
	}
	return data[len(identifier):], nil
}

func decryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext is not a whole number of blocks")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext, aes.BlockSize)
}

// pkcs7Pad appends PKCS#7 padding. A full block is added when data is
// already aligned.
func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("invalid padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("invalid padding")
		}
	}
	return data[:len(data)-n], nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
