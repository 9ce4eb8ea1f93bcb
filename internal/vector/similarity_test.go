package vector

import (
	"math"
	"testing"
)

func TestNorm(t *testing.T) {
	if got := Norm([]float64{3, 4}); got != 5 {
		t.Errorf("Norm([3 4])=%v, want 5", got)
	}
	if got := Norm(nil); got != 0 {
		t.Errorf("Norm(nil)=%v, want 0", got)
	}
}

func TestNormalizedCosineSimilarity_SelfIsOne(t *testing.T) {
	vecs := [][]float64{
		{1, 0, 0},
		{0.3, -0.7, 2.1},
		{5, 5, 5, 5},
	}
	for _, v := range vecs {
		n := Norm(v)
		got := NormalizedCosineSimilarity(v, n, v, n)
		if math.Abs(got-1) > 1e-9 {
			t.Errorf("self similarity of %v = %v, want 1", v, got)
		}
	}
}

func TestNormalizedCosineSimilarity_Bounds(t *testing.T) {
	a := []float64{1, 2, -3}
	b := []float64{-4, 0.5, 9}
	got := NormalizedCosineSimilarity(a, Norm(a), b, Norm(b))
	if got < -1-1e-9 || got > 1+1e-9 {
		t.Errorf("similarity %v out of [-1, 1]", got)
	}
}

func TestNormalizedCosineSimilarity_ZeroNorm(t *testing.T) {
	zero := []float64{0, 0, 0}
	a := []float64{1, 2, 3}
	if got := NormalizedCosineSimilarity(zero, Norm(zero), a, Norm(a)); got != 0 {
		t.Errorf("zero-vector similarity = %v, want 0", got)
	}
	if got := NormalizedCosineSimilarity(a, Norm(a), zero, Norm(zero)); got != 0 {
		t.Errorf("zero-vector similarity = %v, want 0", got)
	}
}

func TestNormalizedCosineSimilarity_Orthogonal(t *testing.T) {
	a := []float64{1, 0}
	b := []float64{0, 1}
	if got := NormalizedCosineSimilarity(a, Norm(a), b, Norm(b)); got != 0 {
		t.Errorf("orthogonal similarity = %v, want 0", got)
	}
}
