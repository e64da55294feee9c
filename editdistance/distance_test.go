package editdistance

import (
	"reflect"
	"testing"

	"github.com/antzucaro/matchr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStepsContains(t *testing.T) {
	tests := []struct {
		s     steps
		given steps
		want  bool
	}{
		{steps{diagonal, right, down}, steps{diagonal}, true},
		{steps{right, down}, steps{diagonal}, false},
		{steps{diagonal, right}, steps{diagonal, right}, true},
	}
	for _, test := range tests {
		got := test.s.contains(test.given)
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("incorrect steps contains result: got %v, want %v", got, test.want)
		}
	}
}

// TestDistance checks the case where deletions outnumbering insertions pull
// bases in from the trailing context, and cross-checks the plain case
// (no trailing context) against an independent reference implementation.
func TestDistance(t *testing.T) {
	tests := []struct {
		s1, s2       string
		tail1, tail2 string
		want         int
	}{
		// A deletion of the second base in s1:
		// ATCGGTX (X read from tail1)
		// | ||||
		// A-CGGTX
		{"ATCGGT", "ACGGTX", "XYZ", "", 1},
		{"ACGGTX", "ATCGGT", "", "XYZ", 1},
		{"ACAATTGG", "AXAAXTGX", "", "", 3},
		{"ATATACGGT", "ACGGTHIJK", "HIJKLMN", "", 4},
		{"CTCAGCGGCT", "AGCCTAACTC", "ACACTCTTTCCCTACACGACGCTCTTCCGATCT", "GTGACTGGAGTTCAGACGTGTGCTCTTCCGATC", 8},
	}

	for _, test := range tests {
		got, ok := Distance(test.s1, test.s2, test.tail1, test.tail2)
		require.True(t, ok)
		assert.Equal(t, test.want, got)

		plain, ok := Distance(test.s1, test.s2, "", "")
		require.True(t, ok)
		reference := matchr.Levenshtein(test.s1, test.s2)
		assert.Equal(t, reference, plain, "disagreement with reference implementation")
	}
}

func TestDistanceLengthMismatch(t *testing.T) {
	_, ok := Distance("AC", "ACGT", "", "")
	assert.False(t, ok)
}
