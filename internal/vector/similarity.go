// Package vector provides similarity helpers for normalized embedding vectors.
package vector

import "math"

// Dot returns the inner product of a and b. For unit vectors this is the cosine similarity.
// Both vectors must have the same length; Dot does not check norms or dimensions.
func Dot(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// SameDimension reports whether a and b can be compared.
func SameDimension(a, b []float32) bool {
	return len(a) == len(b)
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// NormalizeL2 scales x in place to unit L2 norm. A zero vector is left unchanged.
func NormalizeL2(x []float32) {
	norm := L2Norm(x)
	if norm == 0 {
		return
	}
	for i := range x {
		x[i] = float32(float64(x[i]) / norm)
	}
}

// Clone returns a copy of x.
func Clone(x []float32) []float32 {
	out := make([]float32, len(x))
	copy(out, x)
	return out
}
