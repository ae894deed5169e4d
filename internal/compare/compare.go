// Package compare implements Hamming-distance comparison between hex-encoded
// perceptual fingerprints. It operates purely on the textual representation
// and knows nothing about images.
package compare

import (
	"errors"
	"fmt"
	"math/bits"
	"regexp"
)

const (
	// HexLength is the canonical fingerprint length in hex characters.
	HexLength = 64
	// TotalBits is the fingerprint width in bits.
	TotalBits = HexLength * 4
)

var (
	// ErrLengthMismatch signals an attempt to compare fingerprints of
	// different bit-lengths.
	ErrLengthMismatch = errors.New("compare: fingerprint lengths do not match")
	// ErrInvalidFingerprint signals a string that is not a well-formed
	// fingerprint.
	ErrInvalidFingerprint = errors.New("compare: malformed fingerprint")

	fingerprintPattern = regexp.MustCompile(fmt.Sprintf("^[0-9a-fA-F]{%d}$", HexLength))
)

// Valid reports whether fp is a well-formed fingerprint. Anything failing this
// check is categorically invalid and never compared.
func Valid(fp string) bool {
	return fingerprintPattern.MatchString(fp)
}

// Result captures a single pairwise comparison.
type Result struct {
	Distance   int     `json:"distance"`
	Similarity float64 `json:"similarity"`
	IsSimilar  bool    `json:"is_similar"`
}

// BatchEntry pairs a candidate fingerprint with its comparison against the
// batch target.
type BatchEntry struct {
	Hash string `json:"hash"`
	Result
}

// Distance returns the Hamming distance between two equal-length hex
// fingerprints, counting differing bits nibble by nibble. Hex digits compare
// case-insensitively.
func Distance(a, b string) (int, error) {
	if len(a) != len(b) {
		return 0, ErrLengthMismatch
	}
	total := 0
	for i := 0; i < len(a); i++ {
		na, ok := nibble(a[i])
		if !ok {
			return 0, ErrInvalidFingerprint
		}
		nb, ok := nibble(b[i])
		if !ok {
			return 0, ErrInvalidFingerprint
		}
		total += bits.OnesCount8(na ^ nb)
	}
	return total, nil
}

func nibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// Compare validates both fingerprints, then classifies their similarity:
// similar means distance does not exceed threshold (the maximum Hamming
// distance the caller tolerates, fractional values allowed).
func Compare(a, b string, threshold float64) (Result, error) {
	if !Valid(a) || !Valid(b) {
		return Result{}, ErrInvalidFingerprint
	}
	dist, err := Distance(a, b)
	if err != nil {
		return Result{}, err
	}
	return Result{
		Distance:   dist,
		Similarity: 1 - float64(dist)/float64(TotalBits),
		IsSimilar:  float64(dist) <= threshold,
	}, nil
}

// CompareBatch compares every well-formed candidate against target, preserving
// candidate order. A malformed target yields an empty result set; malformed
// candidates are dropped from the output rather than reported individually.
func CompareBatch(target string, candidates []string, threshold float64) []BatchEntry {
	entries := make([]BatchEntry, 0, len(candidates))
	if !Valid(target) {
		return entries
	}
	for _, cand := range candidates {
		if !Valid(cand) {
			continue
		}
		res, err := Compare(target, cand, threshold)
		if err != nil {
			continue
		}
		entries = append(entries, BatchEntry{Hash: cand, Result: res})
	}
	return entries
}
