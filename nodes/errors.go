package nodes

import "errors"

// Construction errors for signal nodes.
var (
	// ErrNilState indicates a node was given a nil shared state cell.
	ErrNilState = errors.New("nil shared state")

	// ErrInvalidRatio indicates a rational factor with a zero or negative
	// denominator.
	ErrInvalidRatio = errors.New("invalid ratio")

	// ErrInvalidLimit indicates a non-positive sample limit.
	ErrInvalidLimit = errors.New("invalid sample limit")
)
