package dataset

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// CosineDistance is 1 − cosine similarity, the same metric the storage
// gateway uses for search, so classifier margins, drift thresholds, and
// cache thresholds all live on one scale. Range is [0, 2]; for the unit
// vectors embedders emit it stays in [0, 2] with 0 meaning identical.
func CosineDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 1
	}

	x := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x[i] = float64(a[i])
		y[i] = float64(b[i])
	}

	na := math.Sqrt(floats.Dot(x, x))
	nb := math.Sqrt(floats.Dot(y, y))
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - floats.Dot(x, y)/(na*nb)
}

// meanVector averages embeddings elementwise. All vectors must share the
// first vector's length; shorter ones are skipped.
func meanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	dims := len(vectors[0])
	acc := make([]float64, dims)
	count := 0
	for _, vec := range vectors {
		if len(vec) != dims {
			continue
		}
		v := make([]float64, dims)
		for i, f := range vec {
			v[i] = float64(f)
		}
		floats.Add(acc, v)
		count++
	}
	if count == 0 {
		return nil
	}
	floats.Scale(1/float64(count), acc)

	center := make([]float32, dims)
	for i, f := range acc {
		center[i] = float32(f)
	}
	return center
}
