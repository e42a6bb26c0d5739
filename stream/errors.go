package stream

import "errors"

// Stream errors
var (
	// ErrAlreadyConnected indicates a second writer tried to feed a buffer
	// that already has one.
	ErrAlreadyConnected = errors.New("stream already connected")

	// ErrIdle indicates that a writer delivered no data for too long and was
	// dropped.
	ErrIdle = errors.New("stream idle")

	// ErrUnsupportedFormat indicates audio that cannot be converted to
	// signed 16-bit PCM.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)
