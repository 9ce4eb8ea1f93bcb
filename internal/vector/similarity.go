package vector

import "math"

// Norm returns the Euclidean norm of v.
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// DotProduct returns the dot product of a and b. Vectors of unequal length
// are compared over their common prefix.
func DotProduct(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot float64
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
	}
	return dot
}

// NormalizedCosineSimilarity returns the cosine similarity of a and b given
// their precomputed norms. A zero norm yields 0 rather than dividing by zero.
func NormalizedCosineSimilarity(a []float64, normA float64, b []float64, normB float64) float64 {
	if normA == 0 || normB == 0 {
		return 0
	}
	return DotProduct(a, b) / (normA * normB)
}
