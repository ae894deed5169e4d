package compare

import (
	"errors"
	"strings"
	"testing"
)

func TestValid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fp   string
		want bool
	}{
		{name: "lowercase hex", fp: strings.Repeat("a", HexLength), want: true},
		{name: "uppercase hex", fp: strings.Repeat("F", HexLength), want: true},
		{name: "mixed case", fp: strings.Repeat("aB", HexLength/2), want: true},
		{name: "too short", fp: strings.Repeat("a", HexLength-1), want: false},
		{name: "too long", fp: strings.Repeat("a", HexLength+1), want: false},
		{name: "non-hex character", fp: strings.Repeat("a", HexLength-1) + "g", want: false},
		{name: "empty", fp: "", want: false},
		{name: "whitespace", fp: " " + strings.Repeat("a", HexLength-1), want: false},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Valid(tc.fp); got != tc.want {
				t.Errorf("Valid(%q) = %v, want %v", tc.fp, got, tc.want)
			}
		})
	}
}

func TestDistance(t *testing.T) {
	t.Parallel()

	zeros := strings.Repeat("0", HexLength)
	fs := strings.Repeat("f", HexLength)

	tests := []struct {
		name string
		a, b string
		want int
	}{
		{name: "identical", a: fs, b: fs, want: 0},
		{name: "maximum distance", a: zeros, b: fs, want: TotalBits},
		{name: "case insensitive", a: strings.Repeat("A", HexLength), b: strings.Repeat("a", HexLength), want: 0},
		{name: "two differing bits", a: zeros, b: strings.Repeat("0", HexLength-1) + "3", want: 2},
		{name: "one bit per nibble", a: zeros, b: strings.Repeat("1", 10) + strings.Repeat("0", HexLength-10), want: 10},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Distance(tc.a, tc.b)
			if err != nil {
				t.Fatalf("Distance returned error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Distance = %d, want %d", got, tc.want)
			}
			reversed, err := Distance(tc.b, tc.a)
			if err != nil {
				t.Fatalf("Distance(b, a) returned error: %v", err)
			}
			if reversed != got {
				t.Errorf("Distance is asymmetric: %d vs %d", got, reversed)
			}
		})
	}
}

func TestDistanceErrors(t *testing.T) {
	t.Parallel()

	if _, err := Distance("ab", "abc"); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("Distance on unequal lengths = %v, want ErrLengthMismatch", err)
	}
	if _, err := Distance("zz", "aa"); !errors.Is(err, ErrInvalidFingerprint) {
		t.Errorf("Distance on non-hex input = %v, want ErrInvalidFingerprint", err)
	}
}

func TestCompare(t *testing.T) {
	t.Parallel()

	zeros := strings.Repeat("0", HexLength)
	fs := strings.Repeat("f", HexLength)

	tests := []struct {
		name           string
		a, b           string
		threshold      float64
		wantDistance   int
		wantSimilarity float64
		wantSimilar    bool
	}{
		{
			name:           "identity at zero threshold",
			a:              fs,
			b:              fs,
			threshold:      0,
			wantDistance:   0,
			wantSimilarity: 1.0,
			wantSimilar:    true,
		},
		{
			name:           "two bits of 256 under default-style threshold",
			a:              zeros,
			b:              strings.Repeat("0", HexLength-1) + "3",
			threshold:      10,
			wantDistance:   2,
			wantSimilarity: 0.9921875,
			wantSimilar:    true,
		},
		{
			name:           "distance equal to threshold is similar",
			a:              zeros,
			b:              strings.Repeat("1", 10) + strings.Repeat("0", HexLength-10),
			threshold:      10,
			wantDistance:   10,
			wantSimilarity: 1 - 10.0/float64(TotalBits),
			wantSimilar:    true,
		},
		{
			name:           "distance one past threshold is not similar",
			a:              zeros,
			b:              strings.Repeat("1", 11) + strings.Repeat("0", HexLength-11),
			threshold:      10,
			wantDistance:   11,
			wantSimilarity: 1 - 11.0/float64(TotalBits),
			wantSimilar:    false,
		},
		{
			name:           "maximum distance",
			a:              zeros,
			b:              fs,
			threshold:      10,
			wantDistance:   TotalBits,
			wantSimilarity: 0.0,
			wantSimilar:    false,
		},
		{
			name:           "fractional threshold rounds down in effect",
			a:              zeros,
			b:              strings.Repeat("1", 3) + strings.Repeat("0", HexLength-3),
			threshold:      2.5,
			wantDistance:   3,
			wantSimilarity: 1 - 3.0/float64(TotalBits),
			wantSimilar:    false,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Compare(tc.a, tc.b, tc.threshold)
			if err != nil {
				t.Fatalf("Compare returned error: %v", err)
			}
			if got.Distance != tc.wantDistance {
				t.Errorf("Distance = %d, want %d", got.Distance, tc.wantDistance)
			}
			if got.Similarity != tc.wantSimilarity {
				t.Errorf("Similarity = %v, want %v", got.Similarity, tc.wantSimilarity)
			}
			if got.IsSimilar != tc.wantSimilar {
				t.Errorf("IsSimilar = %v, want %v", got.IsSimilar, tc.wantSimilar)
			}
		})
	}
}

func TestCompareRejectsMalformedFingerprints(t *testing.T) {
	t.Parallel()

	valid := strings.Repeat("a", HexLength)
	tests := []struct {
		name string
		a, b string
	}{
		{name: "first malformed", a: "not-a-hash", b: valid},
		{name: "second malformed", a: valid, b: "not-a-hash"},
		{name: "wrong length", a: valid + "a", b: valid},
		{name: "both empty", a: "", b: ""},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Compare(tc.a, tc.b, 10); !errors.Is(err, ErrInvalidFingerprint) {
				t.Errorf("Compare(%q, %q) = %v, want ErrInvalidFingerprint", tc.a, tc.b, err)
			}
		})
	}
}

func TestCompareBatch(t *testing.T) {
	t.Parallel()

	zeros := strings.Repeat("0", HexLength)
	fs := strings.Repeat("f", HexLength)

	t.Run("malformed candidates are dropped, order preserved", func(t *testing.T) {
		t.Parallel()
		got := CompareBatch(fs, []string{zeros, "not-a-hash"}, 50)
		if len(got) != 1 {
			t.Fatalf("got %d entries, want 1", len(got))
		}
		if got[0].Hash != zeros {
			t.Errorf("entry hash = %q, want %q", got[0].Hash, zeros)
		}
		if got[0].Distance != TotalBits {
			t.Errorf("entry distance = %d, want %d", got[0].Distance, TotalBits)
		}
		if got[0].IsSimilar {
			t.Error("entry unexpectedly similar at threshold 50")
		}
	})

	t.Run("output order matches filtered input order", func(t *testing.T) {
		t.Parallel()
		candidates := []string{
			strings.Repeat("1", HexLength),
			"bogus",
			strings.Repeat("2", HexLength),
			"",
			strings.Repeat("3", HexLength),
		}
		got := CompareBatch(zeros, candidates, 10)
		if len(got) != 3 {
			t.Fatalf("got %d entries, want 3", len(got))
		}
		want := []string{candidates[0], candidates[2], candidates[4]}
		for i, entry := range got {
			if entry.Hash != want[i] {
				t.Errorf("entry %d hash = %q, want %q", i, entry.Hash, want[i])
			}
		}
	})

	t.Run("malformed target yields empty result set", func(t *testing.T) {
		t.Parallel()
		got := CompareBatch("not-a-hash", []string{zeros, fs}, 10)
		if len(got) != 0 {
			t.Fatalf("got %d entries, want 0", len(got))
		}
	})

	t.Run("candidate identical to target", func(t *testing.T) {
		t.Parallel()
		got := CompareBatch(fs, []string{fs}, 0)
		if len(got) != 1 {
			t.Fatalf("got %d entries, want 1", len(got))
		}
		if got[0].Distance != 0 || got[0].Similarity != 1.0 || !got[0].IsSimilar {
			t.Errorf("self comparison = %+v, want distance 0, similarity 1, similar", got[0].Result)
		}
	})
}
