// Package feeoracle derives blob-gas and execution-gas fee suggestions from
// chain state, following the EIP-4844 fake-exponential base-fee update rule
// and the EIP-7918 reserve-price alternative.
package feeoracle

import "math/big"

// MinBaseFeePerBlobGas is the EIP-4844 floor for blob base fee.
var MinBaseFeePerBlobGas = big.NewInt(1)

// BlobBaseFeeUpdateFraction controls how fast blob base fee reacts to excess
// blob gas; this is the mainnet Cancun value.
var BlobBaseFeeUpdateFraction = big.NewInt(3338477)

// BytesPerBlob is the fixed size of one EIP-4844 blob.
const BytesPerBlob = 131072

// fakeExponential computes the integer approximation of
// factor * e^(numerator/denominator), using the iterative series the
// Ethereum execution-layer spec defines for blob base fee pricing. It is
// monotonically non-decreasing in numerator.
func fakeExponential(factor, numerator, denominator *big.Int) *big.Int {
	i := big.NewInt(1)
	out := big.NewInt(0)
	term := new(big.Int).Mul(factor, denominator)

	for term.Sign() > 0 {
		out.Add(out, term)

		term.Mul(term, numerator)
		denom := new(big.Int).Mul(denominator, i)
		term.Div(term, denom)

		i.Add(i, big.NewInt(1))
	}

	return out.Div(out, denominator)
}

// FakeExponential exposes fakeExponential for callers (tests, diagnostics)
// that need the raw primitive outside of a full SuggestFees call.
func FakeExponential(factor, numerator, denominator *big.Int) *big.Int {
	return fakeExponential(factor, numerator, denominator)
}
