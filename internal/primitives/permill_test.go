package primitives

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermillMul(t *testing.T) {
	tests := []struct {
		name   string
		p      Permill
		amount Balance
		want   Balance
	}{
		{"zero fraction", PermillFromParts(0), 1_000_000, 0},
		{"one hundred percent", PermillOne(), 1_000_000, 1_000_000},
		{"ten percent", PermillFromPercent(10), 1_000, 100},
		{"fractional percent", PermillFromFloat(0.1111), 1_000_008, 111_100},
		{"truncates remainder", PermillFromPercent(33), 10, 3},
		{"large amount no wrap", PermillFromPercent(50), math.MaxUint64 / 2, math.MaxUint64 / 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.p.Mul(tt.amount))
		})
	}
}

func TestPermillMulSaturatesAboveOne(t *testing.T) {
	// 330% of the max balance cannot be represented, expect saturation
	// rather than a wrapped product.
	p := PermillFromFloat(3.3)
	require.Equal(t, Balance(math.MaxUint64), p.Mul(math.MaxUint64))
}

func TestPermillFromFloat(t *testing.T) {
	require.Equal(t, PermillFromParts(111_100), PermillFromFloat(0.1111))
	require.Equal(t, PermillFromParts(1_200_000), PermillFromFloat(1.2))
}

func TestPermillAddSaturates(t *testing.T) {
	p := Permill(math.MaxUint32)
	require.Equal(t, Permill(math.MaxUint32), p.Add(PermillOne()))
}
