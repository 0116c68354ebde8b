package utils

import "math"

// NormalizeL2 normalizes the slice in place to unit L2 norm.
// If the norm is zero, the slice is unchanged.
func NormalizeL2(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	norm := float32(1.0 / math.Sqrt(sum))
	for i := range x {
		x[i] *= norm
	}
}

// CloneFloat32 returns a copy of x that does not share its backing array.
func CloneFloat32(x []float32) []float32 {
	if x == nil {
		return nil
	}
	out := make([]float32, len(x))
	copy(out, x)
	return out
}
