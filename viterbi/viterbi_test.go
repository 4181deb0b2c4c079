package viterbi_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/Li-dongyang/crfgo/viterbi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bruteForce enumerates all L^N sequences and returns the best score and the
// first sequence reaching it. Enumeration runs the first position fastest, so
// among tied optima the one with the smallest last label (then the smallest
// second-to-last, and so on) is kept, which is the order back-pointers with a
// first-max rule produce.
func bruteForce(s viterbi.Scores) (float64, []int) {
	n, l := len(s.Emission), len(s.Start)
	seq := make([]int, n)
	best := math.Inf(-1)
	var bestSeq []int

	for {
		score := s.Start[seq[0]] + s.Emission[0][seq[0]]
		for t := 1; t < n; t++ {
			score += s.Transition[seq[t-1]][seq[t]] + s.Emission[t][seq[t]]
		}
		score += s.End[seq[n-1]]
		if score > best {
			best = score
			bestSeq = append([]int(nil), seq...)
		}

		t := 0
		for t < n {
			seq[t]++
			if seq[t] < l {
				break
			}
			seq[t] = 0
			t++
		}
		if t == n {
			return best, bestSeq
		}
	}
}

func randomScores(rng *rand.Rand, n, l int) viterbi.Scores {
	matrix := func(rows, cols int) [][]float64 {
		m := make([][]float64, rows)
		for i := range m {
			m[i] = vector(rng, cols)
		}
		return m
	}
	return viterbi.Scores{
		Emission:   matrix(n, l),
		Transition: matrix(l, l),
		Start:      vector(rng, l),
		End:        vector(rng, l),
	}
}

func vector(rng *rand.Rand, size int) []float64 {
	v := make([]float64, size)
	for i := range v {
		v[i] = rng.NormFloat64()
	}
	return v
}

// TestDecode_MatchesBruteForce checks exactness against exhaustive search on
// small random inputs.
func TestDecode_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 300; trial++ {
		n := 1 + rng.Intn(8)
		l := 1 + rng.Intn(4)
		s := randomScores(rng, n, l)

		res, err := s.Decode()
		require.NoError(t, err, "trial %d (N=%d, L=%d)", trial, n, l)
		require.Len(t, res.Sequence, n)

		want, _ := bruteForce(s)
		assert.InDelta(t, want, res.Score, 1e-9, "trial %d best score", trial)

		rescored, err := s.PathScore(res.Sequence)
		require.NoError(t, err)
		assert.InDelta(t, res.Score, rescored, 1e-9, "trial %d sequence must achieve the score", trial)
	}
}

// TestDecode_Deterministic decodes the same input twice.
func TestDecode_Deterministic(t *testing.T) {
	s := randomScores(rand.New(rand.NewSource(7)), 6, 4)

	first, err := s.Decode()
	require.NoError(t, err)
	second, err := s.Decode()
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

// TestDecode_TieBreakTransition sets up two predecessors with equal scores
// into the same cell; the lower index must win.
func TestDecode_TieBreakTransition(t *testing.T) {
	res, err := viterbi.Decode(
		[][]float64{{0, 1}, {0, 10}},
		[][]float64{{0, 1}, {0, 0}},
		[]float64{0, 0},
		[]float64{0, 0},
	)
	require.NoError(t, err)

	// [0 1] and [1 1] both score 11.
	assert.Equal(t, 11.0, res.Score)
	assert.Equal(t, []int{0, 1}, res.Sequence)
}

// TestDecode_AllTied makes every sequence score zero.
func TestDecode_AllTied(t *testing.T) {
	zeros := func(r, c int) [][]float64 {
		m := make([][]float64, r)
		for i := range m {
			m[i] = make([]float64, c)
		}
		return m
	}
	res, err := viterbi.Decode(zeros(5, 3), zeros(3, 3), make([]float64, 3), make([]float64, 3))
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Score)
	assert.Equal(t, []int{0, 0, 0, 0, 0}, res.Sequence)
}

// TestDecode_TieBreakMatchesEnumeration compares against the first optimal
// sequence in enumeration order on small integer scores, where ties are
// frequent and sums are exact.
func TestDecode_TieBreakMatchesEnumeration(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	intVector := func(size int) []float64 {
		v := make([]float64, size)
		for i := range v {
			v[i] = float64(rng.Intn(3))
		}
		return v
	}
	for trial := 0; trial < 200; trial++ {
		n, l := 1+rng.Intn(5), 1+rng.Intn(3)
		s := viterbi.Scores{Start: intVector(l), End: intVector(l)}
		for i := 0; i < n; i++ {
			s.Emission = append(s.Emission, intVector(l))
		}
		for i := 0; i < l; i++ {
			s.Transition = append(s.Transition, intVector(l))
		}

		res, err := s.Decode()
		require.NoError(t, err)
		wantScore, wantSeq := bruteForce(s)
		assert.Equal(t, wantScore, res.Score, "trial %d", trial)
		assert.Equal(t, wantSeq, res.Sequence, "trial %d", trial)
	}
}

// TestDecode_SingleToken covers N=1, where no transition is applied.
func TestDecode_SingleToken(t *testing.T) {
	res, err := viterbi.Decode(
		[][]float64{{1.0, 5.0}},
		[][]float64{{100, -100}, {-100, 100}},
		[]float64{0, 0},
		[]float64{0, 0},
	)
	require.NoError(t, err)

	assert.Equal(t, 5.0, res.Score)
	assert.Equal(t, []int{1}, res.Sequence)
}

// TestDecode_SingleTokenBoundaries checks that start and end both count at
// the single position.
func TestDecode_SingleTokenBoundaries(t *testing.T) {
	res, err := viterbi.Decode(
		[][]float64{{1.0, 5.0}},
		[][]float64{{0, 0}, {0, 0}},
		[]float64{3, 0},
		[]float64{2, 0},
	)
	require.NoError(t, err)

	assert.Equal(t, 6.0, res.Score)
	assert.Equal(t, []int{0}, res.Sequence)
}

// TestDecode_TwoStepExample is the hand-worked N=2, L=2 case.
func TestDecode_TwoStepExample(t *testing.T) {
	res, err := viterbi.Decode(
		[][]float64{{1, 0}, {0, 1}},
		[][]float64{{0, 0}, {0, 0}},
		[]float64{0, 0},
		[]float64{0, 0},
	)
	require.NoError(t, err)

	assert.Equal(t, 2.0, res.Score)
	assert.Equal(t, []int{0, 1}, res.Sequence)
}

// TestDecode_TransitionsDominate lets the transition table override
// emissions.
func TestDecode_TransitionsDominate(t *testing.T) {
	res, err := viterbi.Decode(
		[][]float64{{1, 0}, {1, 0}, {1, 0}},
		[][]float64{{-10, 5}, {5, -10}},
		[]float64{0, 0},
		[]float64{0, 0},
	)
	require.NoError(t, err)

	// alternating labels collect 2×5 in transitions
	assert.Equal(t, []int{0, 1, 0}, res.Sequence)
	assert.Equal(t, 12.0, res.Score)
}

// TestDecode_LengthInvariant checks len(Sequence) == N for a range of N.
func TestDecode_LengthInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for n := 1; n <= 64; n++ {
		res, err := randomScores(rng, n, 5).Decode()
		require.NoError(t, err)
		assert.Len(t, res.Sequence, n)
		for _, y := range res.Sequence {
			assert.True(t, y >= 0 && y < 5, "label %d out of range", y)
		}
	}
}

// TestDecode_ShapeMismatch covers every dimensional invariant.
func TestDecode_ShapeMismatch(t *testing.T) {
	ok := func() viterbi.Scores {
		return viterbi.Scores{
			Emission:   [][]float64{{0, 0}, {0, 0}},
			Transition: [][]float64{{0, 0}, {0, 0}},
			Start:      []float64{0, 0},
			End:        []float64{0, 0},
		}
	}
	tests := []struct {
		name   string
		mutate func(s *viterbi.Scores)
	}{
		{"transition 3x2", func(s *viterbi.Scores) { s.Transition = [][]float64{{0, 0}, {0, 0}, {0, 0}} }},
		{"transition ragged", func(s *viterbi.Scores) { s.Transition = [][]float64{{0, 0}, {0}} }},
		{"emission columns", func(s *viterbi.Scores) { s.Emission = [][]float64{{0, 0}, {0, 0, 0}} }},
		{"no tokens", func(s *viterbi.Scores) { s.Emission = nil }},
		{"no labels", func(s *viterbi.Scores) { s.Start = nil }},
		{"start length", func(s *viterbi.Scores) { s.Start = []float64{0, 0, 0} }},
		{"end length", func(s *viterbi.Scores) { s.End = []float64{0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := ok()
			tt.mutate(&s)

			res, err := s.Decode()
			assert.ErrorIs(t, err, viterbi.ErrShapeMismatch)
			assert.Nil(t, res.Sequence, "no partial result on shape errors")
		})
	}

	_, err := ok().Decode()
	assert.NoError(t, err, "baseline tables must decode")
}

// TestDecode_NegativeInfinity allows disfavored labels but rejects inputs
// where every path is -Inf.
func TestDecode_NegativeInfinity(t *testing.T) {
	inf := math.Inf(-1)

	res, err := viterbi.Decode(
		[][]float64{{inf, 1}, {2, inf}},
		[][]float64{{0, 0}, {0, 0}},
		[]float64{0, 0},
		[]float64{0, 0},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, res.Sequence)
	assert.Equal(t, 3.0, res.Score)

	_, err = viterbi.Decode(
		[][]float64{{0, 0}},
		[][]float64{{0, 0}, {0, 0}},
		[]float64{inf, inf},
		[]float64{0, 0},
	)
	assert.ErrorIs(t, err, viterbi.ErrNoFinitePath)

	_, err = viterbi.Decode(
		[][]float64{{math.NaN()}},
		[][]float64{{0}},
		[]float64{0},
		[]float64{0},
	)
	assert.ErrorIs(t, err, viterbi.ErrNoFinitePath)
}

// TestDecode_NaNCandidates never lets a NaN score win an argmax over a
// number, whatever its index.
func TestDecode_NaNCandidates(t *testing.T) {
	nan := math.NaN()

	// recurrence: the NaN start of label 0 must not become the predecessor
	res, err := viterbi.Decode(
		[][]float64{{0, 0}, {0, 0}},
		[][]float64{{0, 0}, {0, 0}},
		[]float64{nan, 0},
		[]float64{0, 0},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, res.Sequence)
	assert.Equal(t, 0.0, res.Score)

	// termination: label 0 ends in NaN
	res, err = viterbi.Decode(
		[][]float64{{nan, 1}},
		[][]float64{{0, 0}, {0, 0}},
		[]float64{0, 0},
		[]float64{0, 0},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, res.Sequence)
	assert.Equal(t, 1.0, res.Score)

	// NaN at a later index loses as well
	res, err = viterbi.Decode(
		[][]float64{{1, nan}},
		[][]float64{{0, 0}, {0, 0}},
		[]float64{0, 0},
		[]float64{0, 0},
	)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, res.Sequence)

	// all NaN
	_, err = viterbi.Decode(
		[][]float64{{nan, nan}},
		[][]float64{{0, 0}, {0, 0}},
		[]float64{0, 0},
		[]float64{0, 0},
	)
	assert.ErrorIs(t, err, viterbi.ErrNoFinitePath)
}

// TestPathScore covers rescoring and its argument checks.
func TestPathScore(t *testing.T) {
	s := viterbi.Scores{
		Emission:   [][]float64{{1, 2}, {3, 4}},
		Transition: [][]float64{{10, 20}, {30, 40}},
		Start:      []float64{100, 200},
		End:        []float64{1000, 2000},
	}

	got, err := s.PathScore([]int{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 200.0+2+30+3+1000, got)

	_, err = s.PathScore([]int{0})
	assert.ErrorIs(t, err, viterbi.ErrShapeMismatch)

	_, err = s.PathScore([]int{0, 2})
	assert.ErrorIs(t, err, viterbi.ErrInvalidLabel)
}
