package handlers

import "math/big"

const (
	// hundredthPipsDenominator converts a fee rate expressed in hundredths
	// of a pip into a fraction: rate / 1_000_000.
	hundredthPipsDenominator = 1_000_000

	// networkFeeHundredthPips is the protocol network fee, levied once per
	// swap on the stable-asset leg.
	networkFeeHundredthPips = 1000

	// basisPointsDenominator converts broker commission basis points.
	basisPointsDenominator = 10_000
)

// feeFromHundredthPips applies a hundredth-pip rate to an amount, truncating
// toward zero.
func feeFromHundredthPips(amount *big.Int, rate uint32) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(rate)))
	return fee.Div(fee, big.NewInt(hundredthPipsDenominator))
}

// brokerFee applies a basis-point commission to an amount.
func brokerFee(amount *big.Int, bps uint32) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(amount, big.NewInt(int64(bps)))
	return fee.Div(fee, big.NewInt(basisPointsDenominator))
}

// clampFee bounds a fee to [0, available] so an egress amount can never go
// negative.
func clampFee(fee, available *big.Int) *big.Int {
	if fee == nil || fee.Sign() < 0 {
		return big.NewInt(0)
	}
	if available != nil && fee.Cmp(available) > 0 {
		return new(big.Int).Set(available)
	}
	return new(big.Int).Set(fee)
}
