// Package walleterr defines the named error kinds returned by the wallet
// backend. Every kind is a sentinel *Error; errors carrying extra detail still
// match their kind with errors.Is.
package walleterr

import "fmt"

// Code identifies an error kind.
type Code int

// Error codes. Values are stable: they are exposed to API clients.
const (
	CodeWalletFileAlreadyExists Code = iota + 1
	CodeInvalidWalletFilename
	CodeFilenameNonExistent
	CodeNotAWalletFile
	CodeWalletFileCorrupted
	CodeWrongPassword
	CodeUnsupportedWalletFileFormatVersion
	CodeKeysNotDeterministic
	CodePreparedTransactionNotFound
	CodePreparedTransactionExpired
	CodeInvalidPrivateKey
	CodeInvalidPublicKey
	CodeInvalidAddress
	CodeAddressNotInWallet
	CodeInvalidPaymentID
	CodeInvalidMnemonic
	CodeCannotDeletePrimaryAddress
	CodeSubWalletAlreadyExists
	CodeIllegalViewWalletOperation
	CodeTxPrivateKeyNotFound
	CodeNotEnoughBalance
	CodeAmountIsZero
	CodeNoDestinationsGiven
	CodeFullyOptimized
	CodeDaemonOffline
	CodeDaemonError
	CodeInvalidScanRange
	CodeIllegalNonViewWalletOperation
	CodeInvalidAmount
	CodeInvalidFeeType
)

// Error is a wallet error kind with an optional detail message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMessage returns a copy of kind carrying a more specific message.
func WithMessage(kind *Error, format string, args ...interface{}) *Error {
	return &Error{Code: kind.Code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns kind with the message of err appended.
func Wrap(kind *Error, err error) *Error {
	if err == nil {
		return kind
	}
	return &Error{Code: kind.Code, Message: kind.Message + ": " + err.Error()}
}

// CodeOf returns the code of the first *Error in err's chain, or 0.
func CodeOf(err error) Code {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}

func newKind(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Error kinds.
var (
	WalletFileAlreadyExists = newKind(CodeWalletFileAlreadyExists,
		"the wallet file you are attempting to create already exists")
	InvalidWalletFilename = newKind(CodeInvalidWalletFilename,
		"the wallet filename is invalid or the wallet does not have permission to write it")
	FilenameNonExistent = newKind(CodeFilenameNonExistent,
		"the wallet file you are attempting to open does not exist")
	NotAWalletFile = newKind(CodeNotAWalletFile,
		"the file is not a wallet file")
	WalletFileCorrupted = newKind(CodeWalletFileCorrupted,
		"the wallet file is corrupted")
	WrongPassword = newKind(CodeWrongPassword,
		"the password is incorrect")
	UnsupportedWalletFileFormatVersion = newKind(CodeUnsupportedWalletFileFormatVersion,
		"the wallet file format version is not supported by this software")
	KeysNotDeterministic = newKind(CodeKeysNotDeterministic,
		"the private view key is not derived from the private spend key, so no mnemonic seed exists")
	PreparedTransactionNotFound = newKind(CodePreparedTransactionNotFound,
		"the prepared transaction could not be found")
	PreparedTransactionExpired = newKind(CodePreparedTransactionExpired,
		"the prepared transaction spends inputs that are no longer available")
	InvalidPrivateKey = newKind(CodeInvalidPrivateKey,
		"the private key is not valid")
	InvalidPublicKey = newKind(CodeInvalidPublicKey,
		"the public key is not valid")
	InvalidAddress = newKind(CodeInvalidAddress,
		"the address is not valid")
	AddressNotInWallet = newKind(CodeAddressNotInWallet,
		"the address does not belong to this wallet container")
	InvalidPaymentID = newKind(CodeInvalidPaymentID,
		"the payment ID is not valid")
	InvalidMnemonic = newKind(CodeInvalidMnemonic,
		"the mnemonic seed is not valid")
	CannotDeletePrimaryAddress = newKind(CodeCannotDeletePrimaryAddress,
		"the primary address of a container cannot be deleted")
	SubWalletAlreadyExists = newKind(CodeSubWalletAlreadyExists,
		"the sub-wallet already exists in this container")
	IllegalViewWalletOperation = newKind(CodeIllegalViewWalletOperation,
		"the operation needs a private spend key, but this is a view-only wallet")
	TxPrivateKeyNotFound = newKind(CodeTxPrivateKeyNotFound,
		"no transaction private key is stored for this transaction")
	NotEnoughBalance = newKind(CodeNotEnoughBalance,
		"not enough unlocked balance to cover the transaction")
	AmountIsZero = newKind(CodeAmountIsZero,
		"the amount to send must be positive")
	NoDestinationsGiven = newKind(CodeNoDestinationsGiven,
		"no destinations were given")
	FullyOptimized = newKind(CodeFullyOptimized,
		"the wallet is fully optimized, there is nothing to fuse")
	DaemonOffline = newKind(CodeDaemonOffline,
		"the daemon is offline")
	DaemonError = newKind(CodeDaemonError,
		"the daemon rejected the request")
	InvalidScanRange = newKind(CodeInvalidScanRange,
		"the end scan height must be greater than the start scan height")
	IllegalNonViewWalletOperation = newKind(CodeIllegalNonViewWalletOperation,
		"the operation is only allowed on a view-only wallet")
	InvalidAmount = newKind(CodeInvalidAmount,
		"the amounts do not add up without overflowing")
	InvalidFeeType = newKind(CodeInvalidFeeType,
		"the fee type is not valid for this transaction")
)
