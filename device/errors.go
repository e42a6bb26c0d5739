package device

import "errors"

// Device errors
var (
	// ErrUnknownHint indicates a hint kind name that cannot be parsed.
	ErrUnknownHint = errors.New("unknown card hint")

	// ErrInvalidParams indicates hardware or software parameters that cannot
	// describe a stream.
	ErrInvalidParams = errors.New("invalid device parameters")

	// ErrNoSuchCard indicates that an Opener was asked for a card it does not
	// know.
	ErrNoSuchCard = errors.New("no such card")

	// ErrUnsupportedDirection indicates a backend that cannot open streams in
	// the requested direction.
	ErrUnsupportedDirection = errors.New("unsupported stream direction")
)
