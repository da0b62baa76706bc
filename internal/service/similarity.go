package service

import (
	"fmt"
	"math"
	"strings"
)

// CosineSimilarity returns (u·v)/(‖u‖·‖v‖), or 0 when either vector has zero
// magnitude. Vectors of different length yield ErrDimensionMismatch.
func CosineSimilarity(u, v []float32) (float64, error) {
	if len(u) != len(v) {
		return 0, fmt.Errorf("%w: %d != %d", ErrDimensionMismatch, len(u), len(v))
	}

	var dot, nu, nv float64
	for i := range u {
		a, b := float64(u[i]), float64(v[i])
		dot += a * b
		nu += a * a
		nv += b * b
	}
	if nu == 0 || nv == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(nu) * math.Sqrt(nv)), nil
}

// JaccardSimilarity compares the lower-cased whitespace-delimited word sets of
// two texts. Returns 0 if either set is empty.
func JaccardSimilarity(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}

	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}
