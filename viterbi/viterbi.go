package viterbi

import (
	"math"

	"github.com/pkg/errors"
)

// none marks a cell without a predecessor (position 0).
const none = -1

// Scores bundles the four tables consumed by a decode.
// All tables must share the same label indexing.
type Scores struct {
	Emission   [][]float64 // N×L
	Transition [][]float64 // L×L, Transition[prev][cur]
	Start      []float64   // L
	End        []float64   // L
}

// Result is the outcome of a decode.
type Result struct {
	// Score is the total score of Sequence, boundary scores included.
	Score float64
	// Sequence holds one label index per token, in position order.
	Sequence []int
}

// Decode runs Viterbi over the given tables. It is shorthand for
// Scores{emission, transition, start, end}.Decode().
func Decode(emission, transition [][]float64, start, end []float64) (Result, error) {
	return Scores{
		Emission:   emission,
		Transition: transition,
		Start:      start,
		End:        end,
	}.Decode()
}

// Validate checks the shape invariants and returns the sentence length n and
// the label count l. Any violation is reported as ErrShapeMismatch.
func (s Scores) Validate() (n, l int, err error) {
	n, l = len(s.Emission), len(s.Start)
	if n == 0 {
		return 0, 0, errors.Wrap(ErrShapeMismatch, "emission has no rows")
	}
	if l == 0 {
		return 0, 0, errors.Wrap(ErrShapeMismatch, "start has no labels")
	}
	if len(s.End) != l {
		return 0, 0, errors.Wrapf(ErrShapeMismatch, "end has %d labels, want %d", len(s.End), l)
	}
	if len(s.Transition) != l {
		return 0, 0, errors.Wrapf(ErrShapeMismatch, "transition has %d rows, want %d", len(s.Transition), l)
	}
	for p, row := range s.Transition {
		if len(row) != l {
			return 0, 0, errors.Wrapf(ErrShapeMismatch, "transition row %d has %d columns, want %d", p, len(row), l)
		}
	}
	for t, row := range s.Emission {
		if len(row) != l {
			return 0, 0, errors.Wrapf(ErrShapeMismatch, "emission row %d has %d columns, want %d", t, len(row), l)
		}
	}

	return n, l, nil
}

// beats reports whether score replaces the running argmax best held by label
// bestLabel. Ties keep the earlier label; a NaN best loses to any number.
func beats(score, best float64, bestLabel int) bool {
	if bestLabel == none || score > best {
		return true
	}
	return math.IsNaN(best) && !math.IsNaN(score)
}

// Decode finds the highest-scoring label sequence.
//
// Algorithm:
//  1. V[0][l] = Emission[0][l] + Start[l], no back-pointer.
//  2. For t = 1..N-1 and every l:
//     p* = argmax_p V[t-1][p] + Transition[p][l]
//     V[t][l] = V[t-1][p*] + Transition[p*][l] + Emission[t][l]
//     B[t][l] = p*
//  3. V[N-1][l] += End[l]; l* = argmax_l V[N-1][l].
//  4. Follow B back from (N-1, l*) to position 0.
//
// Both argmax steps keep the first index reaching the maximum and skip NaN
// candidates while any other candidate exists.
//
// Errors:
//   - ErrShapeMismatch before any table is allocated.
//   - ErrNoFinitePath when the best score is ±Inf or NaN.
func (s Scores) Decode() (Result, error) {
	n, numLabels, err := s.Validate()
	if err != nil {
		return Result{}, err
	}

	// Row-major (position, label) arenas; each cell is written exactly once.
	dp := make([]float64, n*numLabels)
	backpointers := make([]int, n*numLabels)

	for j := 0; j < numLabels; j++ {
		dp[j] = s.Emission[0][j] + s.Start[j]
		backpointers[j] = none
	}

	for t := 1; t < n; t++ {
		prev := dp[(t-1)*numLabels : t*numLabels]
		cur := dp[t*numLabels : (t+1)*numLabels]
		bp := backpointers[t*numLabels : (t+1)*numLabels]
		emission := s.Emission[t]
		for j := 0; j < numLabels; j++ {
			maxScore, maxPrevLabel := math.Inf(-1), none
			for prevLabel := 0; prevLabel < numLabels; prevLabel++ {
				score := prev[prevLabel] + s.Transition[prevLabel][j]
				if beats(score, maxScore, maxPrevLabel) {
					maxScore = score
					maxPrevLabel = prevLabel
				}
			}
			cur[j] = maxScore + emission[j]
			bp[j] = maxPrevLabel
		}
	}

	last := dp[(n-1)*numLabels:]
	bestScore, bestLabel := math.Inf(-1), none
	for j := 0; j < numLabels; j++ {
		last[j] += s.End[j]
		if beats(last[j], bestScore, bestLabel) {
			bestScore = last[j]
			bestLabel = j
		}
	}
	if math.IsInf(bestScore, 0) || math.IsNaN(bestScore) {
		return Result{}, errors.Wrapf(ErrNoFinitePath, "best score %v", bestScore)
	}

	sequence := make([]int, n)
	sequence[n-1] = bestLabel
	for t := n - 1; t > 0; t-- {
		bestLabel = backpointers[t*numLabels+bestLabel]
		sequence[t-1] = bestLabel
	}

	return Result{Score: bestScore, Sequence: sequence}, nil
}

// PathScore returns the total score the tables assign to seq:
// Start[y0] + Σ Emission[t][yt] + Σ Transition[y(t-1)][yt] + End[y(N-1)].
func (s Scores) PathScore(seq []int) (float64, error) {
	n, numLabels, err := s.Validate()
	if err != nil {
		return 0, err
	}
	if len(seq) != n {
		return 0, errors.Wrapf(ErrShapeMismatch, "sequence has %d labels, want %d", len(seq), n)
	}
	for t, y := range seq {
		if y < 0 || y >= numLabels {
			return 0, errors.Wrapf(ErrInvalidLabel, "position %d has label %d, want [0, %d)", t, y, numLabels)
		}
	}

	score := s.Start[seq[0]] + s.Emission[0][seq[0]]
	for t := 1; t < n; t++ {
		score += s.Transition[seq[t-1]][seq[t]] + s.Emission[t][seq[t]]
	}
	score += s.End[seq[n-1]]

	return score, nil
}
