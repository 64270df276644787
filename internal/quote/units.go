package quote

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// LamportsExponent is the fixed decimal exponent of SOL, the base asset.
const LamportsExponent = 9

// ToMinorUnits scales a human amount by 10^exp and floors the result; it never
// rounds up. Non-positive amounts and amounts that overflow a uint64 yield 0.
func ToMinorUnits(amount decimal.Decimal, exp int32) uint64 {
	scaled := amount.Shift(exp).Floor()
	if !scaled.IsPositive() || scaled.BigInt().BitLen() > 64 {
		return 0
	}
	return scaled.BigInt().Uint64()
}

// FromMinorUnits converts an integer minor-unit amount to its human value.
func FromMinorUnits(amount uint64, exp int32) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -exp)
}

// LamportsFromSOL converts a SOL amount to lamports using ToMinorUnits.
func LamportsFromSOL(sol decimal.Decimal) uint64 {
	return ToMinorUnits(sol, LamportsExponent)
}

// SOLFromLamports converts lamports to SOL.
func SOLFromLamports(lamports uint64) decimal.Decimal {
	return FromMinorUnits(lamports, LamportsExponent)
}
