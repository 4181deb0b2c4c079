// Package viterbi finds the highest-scoring label sequence of a linear-chain
// model by exact dynamic programming.
//
// A decode consumes four score tables for a sentence of N tokens over an
// alphabet of L labels:
//
//	Emission   N×L  score of label l at position t
//	Transition L×L  score of label p followed by label c
//	Start      L    score of label l opening the sequence
//	End        L    score of label l closing the sequence
//
// and returns the best total score together with the N label indices that
// achieve it. Every argmax scans labels in increasing order and only moves on
// a strictly greater score, so ties always resolve to the lowest index and
// the output is reproducible.
//
// Usage:
//
//	res, err := viterbi.Decode(emission, transition, start, end)
//	if errors.Is(err, viterbi.ErrShapeMismatch) {
//		// tables disagree on N or L
//	}
//	fmt.Println(res.Score, res.Sequence)
//
// Complexity:
//
//   - Time:   O(N·L²)
//   - Memory: O(N·L) for the path-score and back-pointer tables
//
// Decode holds no state between calls and is safe to run from many
// goroutines at once.
package viterbi
