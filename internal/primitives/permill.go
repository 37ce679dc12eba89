package primitives

import (
	"math"
	"math/bits"
)

// PermillDenominator is the fixed point scale of Permill, one part per million.
const PermillDenominator = 1_000_000

// Permill is a fixed point fraction in parts per million. Values above
// one (PermillDenominator) are representable so that corrupted schedules
// can be detected rather than silently wrapped.
type Permill uint32

func PermillFromParts(parts uint32) Permill {
	return Permill(parts)
}

func PermillFromPercent(pct uint32) Permill {
	return Permill(pct * (PermillDenominator / 100))
}

func PermillFromFloat(f float64) Permill {
	return Permill(math.Round(f * PermillDenominator))
}

// One is the Permill encoding of 100%.
func PermillOne() Permill {
	return Permill(PermillDenominator)
}

// Mul computes p * amount / 10^6 with a 128 bit intermediate so the
// product cannot wrap. Saturates on the (invalid schedule) p > 100% case.
func (p Permill) Mul(amount Balance) Balance {
	hi, lo := bits.Mul64(uint64(p), uint64(amount))
	if hi >= PermillDenominator {
		return Balance(math.MaxUint64)
	}
	quot, _ := bits.Div64(hi, lo, PermillDenominator)
	return Balance(quot)
}

// Add saturates at the maximum representable fraction.
func (p Permill) Add(q Permill) Permill {
	sum := uint64(p) + uint64(q)
	if sum > math.MaxUint32 {
		return Permill(math.MaxUint32)
	}
	return Permill(sum)
}
