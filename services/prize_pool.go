package services

import (
	"strconv"

	"github.com/shopspring/decimal"
)

var (
	baselinePoolShare  = decimal.RequireFromString("0.7")
	hostAllocationBand = decimal.RequireFromString("0.15")
	sponsorPoolShare   = decimal.RequireFromString("0.9")
)

const maxPrizedPositions = 3

// FinalPrizePool computes the pool locked in shortly before match start:
//
//	ceil(count * fee * (0.7 + (0.15 - hostPct)) + hostContribution * 0.9)
//
// hostPct above 0.15 is deliberately not clamped. A negative result is floored at 0.
func FinalPrizePool(participants int64, joiningFee int64, hostPct decimal.Decimal, hostContribution int64) int64 {
	share := baselinePoolShare.Add(hostAllocationBand.Sub(hostPct))
	base := decimal.NewFromInt(participants).Mul(decimal.NewFromInt(joiningFee)).Mul(share)
	sponsor := decimal.NewFromInt(hostContribution).Mul(sponsorPoolShare)

	pool := base.Add(sponsor).Ceil()
	if pool.IsNegative() {
		return 0
	}
	return pool.IntPart()
}

// PrizeAmount is floor(pct * pool) for a single position.
func PrizeAmount(pct decimal.Decimal, pool int64) int64 {
	amount := pct.Mul(decimal.NewFromInt(pool)).Floor()
	if amount.IsNegative() {
		return 0
	}
	return amount.IntPart()
}

// PrizeAmounts returns the floored payout for positions 1..3, each floored independently,
// so their sum never exceeds the pool when the percentages sum to at most 1.
func PrizeAmounts(pcts [maxPrizedPositions]decimal.Decimal, pool int64) [maxPrizedPositions]int64 {
	var out [maxPrizedPositions]int64
	for i, pct := range pcts {
		out[i] = PrizeAmount(pct, pool)
	}
	return out
}

// Ordinal renders 1 -> "1st", 2 -> "2nd", 11 -> "11th".
func Ordinal(n int) string {
	suffix := "th"
	switch {
	case n%10 == 1 && n%100 != 11:
		suffix = "st"
	case n%10 == 2 && n%100 != 12:
		suffix = "nd"
	case n%10 == 3 && n%100 != 13:
		suffix = "rd"
	}
	return strconv.Itoa(n) + suffix
}
