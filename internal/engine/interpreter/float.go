package interpreter

import (
	"math"

	"github.com/wavmgo/wavm/internal/trap"
)

// wasmCompatMin and wasmCompatMax implement float32.min/max and
// float64.min/max's NaN- and signed-zero-propagating semantics, which
// differ from math.Min/Max: either operand being NaN must produce NaN
// (not just one, as math.Min does for -Inf), and -0 is strictly less than
// +0.
func wasmCompatMin(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, -1) || math.IsInf(y, -1):
		return math.Inf(-1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return x
		}
		return y
	}
	if x < y {
		return x
	}
	return y
}

func wasmCompatMax(x, y float64) float64 {
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return math.NaN()
	case math.IsInf(x, 1) || math.IsInf(y, 1):
		return math.Inf(1)
	case x == 0 && x == y:
		if math.Signbit(x) {
			return y
		}
		return x
	}
	if x > y {
		return x
	}
	return y
}

// wasmCompatNearestF32/F64 implement float.nearest's round-half-to-even,
// which differs from math.Round's round-half-away-from-zero.
func wasmCompatNearestF32(f float32) float32 {
	return float32(wasmCompatNearestF64(float64(f)))
}

func wasmCompatNearestF64(f float64) float64 {
	if f != math.Trunc(f) {
		r := math.Round(f)
		if math.Abs(f-math.Trunc(f)) == 0.5 && math.Mod(r, 2) != 0 {
			r -= math.Copysign(1, f)
		}
		return r
	}
	return f
}

// truncSatS/U saturate an out-of-range or NaN float to the target signed
// or unsigned integer range instead of trapping, per the saturating
// truncation instructions (spec.md §6).
func truncSatS(f float64, bitSize int) int64 {
	if math.IsNaN(f) {
		return 0
	}
	var min, max float64
	if bitSize == 32 {
		min, max = math.MinInt32, math.MaxInt32
	} else {
		min, max = math.MinInt64, math.MaxInt64
	}
	switch {
	case f <= min:
		return int64(min)
	case f >= max:
		if bitSize == 32 {
			return math.MaxInt32
		}
		return math.MaxInt64
	default:
		return int64(f)
	}
}

func truncSatU(f float64, bitSize int) uint64 {
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	var max float64
	if bitSize == 32 {
		max = math.MaxUint32
	} else {
		max = math.MaxUint64
	}
	if f >= max {
		if bitSize == 32 {
			return math.MaxUint32
		}
		return math.MaxUint64
	}
	return uint64(f)
}

// truncChecked/truncCheckedU implement the (non-saturating) Ixx.trunc_fxx_*
// instructions: NaN operands trap with KindInvalidConversionToInteger and
// infinite or out-of-range operands with KindIntegerOverflow (spec.md
// §4.12), rather than clamping like the 0xfc trunc_sat variants above.
func truncChecked(f float64, bitSize int, _ bool) int64 {
	if math.IsNaN(f) {
		trap.New(trap.KindInvalidConversionToInteger)
	}
	var min, max float64
	if bitSize == 32 {
		min, max = math.MinInt32, math.MaxInt32
	} else {
		min, max = math.MinInt64, math.MaxInt64
	}
	if t := math.Trunc(f); t < min || t >= max+1 {
		trap.New(trap.KindIntegerOverflow)
	}
	return int64(f)
}

func truncCheckedU(f float64, bitSize int) uint64 {
	if math.IsNaN(f) {
		trap.New(trap.KindInvalidConversionToInteger)
	}
	if f < 0 {
		trap.New(trap.KindIntegerOverflow)
	}
	var max float64
	if bitSize == 32 {
		max = math.MaxUint32
	} else {
		max = math.MaxUint64
	}
	if f >= max+1 {
		trap.New(trap.KindIntegerOverflow)
	}
	return uint64(f)
}
