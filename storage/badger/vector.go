package badger

// dotProduct computes the dot product of two vectors. For normalized vectors
// this equals cosine similarity. Mismatched dimensions yield 0.
func dotProduct(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
