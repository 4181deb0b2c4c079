package viterbi

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch indicates the score tables disagree on the sentence
	// length or the label count, or that one of them is empty.
	ErrShapeMismatch = errors.New("viterbi: score table shape mismatch")

	// ErrNoFinitePath indicates the best path score after termination is not a
	// finite number, so no valid label sequence exists.
	ErrNoFinitePath = errors.New("viterbi: no path with a finite score")

	// ErrInvalidLabel indicates a label index outside [0, L).
	ErrInvalidLabel = errors.New("viterbi: label index out of range")
)
