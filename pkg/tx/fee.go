package tx

// Sizes of the fixed parts of SigningBytes.
const (
	overheadSize = 4 + 8 + 1 + 33 + 4 + 4 // version + unlock + pid len + tx key + counts
	inputSize    = 32 + 8                 // key image + amount
	outputSize   = 8 + 33                 // amount + key
	signedSize   = 64 + 33                // schnorr signature + pubkey
)

// EstimateSize returns the serialized size of a signed transaction with the
// given shape, used to price per-byte fees before the transaction exists.
func EstimateSize(numInputs, numOutputs int, paymentID string) int {
	return overheadSize + len(paymentID) + (inputSize+signedSize)*numInputs + outputSize*numOutputs
}

// EstimateTxFee returns the fee for a transaction of the given shape at
// feeRate base units per byte.
func EstimateTxFee(numInputs, numOutputs int, paymentID string, feeRate uint64) uint64 {
	return uint64(EstimateSize(numInputs, numOutputs, paymentID)) * feeRate
}
