package graph

import "errors"

// Construction errors. They indicate a programming mistake in the topology
// and are not recoverable.
var (
	// ErrUnknownNode indicates a downstream id that has not been registered.
	ErrUnknownNode = errors.New("unknown downstream node")

	// ErrNilNode indicates an attempt to register a nil node.
	ErrNilNode = errors.New("nil node")
)
