// Package sampler implements the size-adaptive deterministic row sampler
// used by schema inference and the Analyzer.
package sampler

import (
	"encoding/binary"
	"math/rand"

	"github.com/rowforge/ingest/internal/model"
)

// Sample returns a deterministic sample of rows per the boundary formula:
//
//	N <= 100:          all rows
//	100 < N <= 1000:   100 rows  = first 50 + 50 uniformly random
//	1000 < N <= 10000: 200 rows  = first 50 + 150 stratified (evenly spaced)
//	N > 10000:         500 rows = first 50 + 450 stratified
//
// Randomness is seeded from the file fingerprint so the sample is
// reproducible for a given file.
func Sample(rows []model.Row, fingerprint [32]byte) []model.Row {
	n := len(rows)
	switch {
	case n <= 100:
		return rows
	case n <= 1000:
		return firstNPlusRandom(rows, 50, 50, fingerprint)
	case n <= 10000:
		return firstNPlusStratified(rows, 50, 150, fingerprint)
	default:
		return firstNPlusStratified(rows, 50, 450, fingerprint)
	}
}

func seedFromFingerprint(fp [32]byte) int64 {
	return int64(binary.BigEndian.Uint64(fp[:8]))
}

// firstNPlusRandom takes the first `first` rows verbatim plus `extra` rows
// chosen uniformly at random (without replacement) from the remainder.
func firstNPlusRandom(rows []model.Row, first, extra int, fp [32]byte) []model.Row {
	if len(rows) <= first {
		return rows
	}
	head := rows[:first]
	tail := rows[first:]

	rng := rand.New(rand.NewSource(seedFromFingerprint(fp)))
	perm := rng.Perm(len(tail))
	if extra > len(perm) {
		extra = len(perm)
	}
	picked := make([]int, extra)
	copy(picked, perm[:extra])

	// Preserve original row order among the picked tail rows.
	indexSort(picked)

	out := make([]model.Row, 0, first+extra)
	out = append(out, head...)
	for _, idx := range picked {
		out = append(out, tail[idx])
	}
	return out
}

// firstNPlusStratified takes the first `first` rows verbatim plus `extra`
// rows evenly spaced across the remainder of the file.
func firstNPlusStratified(rows []model.Row, first, extra int, fp [32]byte) []model.Row {
	if len(rows) <= first {
		return rows
	}
	head := rows[:first]
	tail := rows[first:]

	if extra >= len(tail) {
		out := make([]model.Row, 0, len(rows))
		out = append(out, head...)
		out = append(out, tail...)
		return out
	}

	out := make([]model.Row, 0, first+extra)
	out = append(out, head...)

	step := float64(len(tail)) / float64(extra)
	for i := 0; i < extra; i++ {
		idx := int(float64(i) * step)
		if idx >= len(tail) {
			idx = len(tail) - 1
		}
		out = append(out, tail[idx])
	}
	return out
}

func indexSort(s []int) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
