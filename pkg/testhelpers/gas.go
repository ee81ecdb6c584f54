package testhelpers

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
)

// GasOutputs splits the gas fee of a message the fake executor applied.
type GasOutputs struct {
	BaseFeeBurn abi.TokenAmount
	MinerTip    abi.TokenAmount
	Refund      abi.TokenAmount
	GasCost     abi.TokenAmount
}

// ComputeGasOutputs charges gasUsed at the base fee, capped by feeCap, plus
// the premium paid to the block producer. The sender pre-pays
// feeCap*gasLimit and receives the difference back as Refund.
func ComputeGasOutputs(gasUsed, gasLimit int64, baseFee, feeCap, gasPremium abi.TokenAmount) GasOutputs {
	var out GasOutputs

	baseFeeToPay := baseFee
	if baseFee.GreaterThan(feeCap) {
		baseFeeToPay = feeCap
	}
	out.BaseFeeBurn = big.Mul(baseFeeToPay, big.NewInt(gasUsed))

	tip := big.Sub(feeCap, baseFee)
	if big.Cmp(gasPremium, tip) < 0 {
		tip = gasPremium
	}
	if tip.LessThan(big.Zero()) {
		tip = big.Zero()
	}
	out.MinerTip = big.Mul(tip, big.NewInt(gasLimit))

	out.GasCost = big.Add(out.BaseFeeBurn, out.MinerTip)
	out.Refund = big.Sub(big.Mul(feeCap, big.NewInt(gasLimit)), out.GasCost)
	if out.Refund.LessThan(big.Zero()) {
		out.Refund = big.Zero()
	}
	return out
}
