package limits

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultRingLength is the capacity of a ring buffer in samples.
	DefaultRingLength = 32768

	// StreamOverflowSamples is the unread sample count at which a network-fed
	// buffer drops everything it holds.
	StreamOverflowSamples = 16384

	// StreamActivationSamples is the sample count a stream must receive while
	// activating before it is promoted to running.
	StreamActivationSamples = 192000

	// StreamChunkFrames is the largest number of frames read from a network
	// connection per iteration.
	StreamChunkFrames = 192

	// DuckHoldFrames is the number of frames without a peak after which a
	// duck returns to quiet (one second at 48kHz).
	DuckHoldFrames = 48000

	// FadeInSteps is the full-scale volume of a fade-in ramp. The volume
	// rises by 8 every 4 samples, reaching full scale after 24000 samples.
	FadeInSteps = 48000

	// MaxChannels is the largest interleaved channel count handled by the
	// signal nodes.
	MaxChannels = 8

	// MinRate and MaxRate bound sample rates accepted by the converters and
	// the device configuration.
	MinRate = 8000
	MaxRate = 192000

	// MaxPacket is the largest length-prefixed codec packet accepted from a
	// network stream. This is the maximum Opus packet size recommended by
	// RFC 6716 encoders.
	MaxPacket = 4000
)

// Timeouts shared by the device wrappers and the network-fed producers.
const (
	// DeviceCooldown is how long a device wrapper waits after a failed open or
	// a disconnect before probing again.
	DeviceCooldown = 4 * time.Second

	// CardPollInterval is the minimum delay between two card enumerations.
	CardPollInterval = time.Second

	// StreamActivationTimeout is how long an activating stream may go without
	// data before giving up.
	StreamActivationTimeout = 3 * time.Second

	// StreamGrace is how long a running stream keeps its output active after
	// its data stops (48000 samples of 48kHz stereo).
	StreamGrace = 500 * time.Millisecond

	// StreamIdleTimeout is how long a running stream may go without data
	// before returning to idle.
	StreamIdleTimeout = 2 * time.Second

	// FadeInSilence is how long a fade-in may go without input before the
	// next audio fades in from zero again.
	FadeInSilence = 200 * time.Millisecond

	// MeterWindow is the period after which a meter's peak is reset.
	MeterWindow = 8 * time.Millisecond

	// IngestIdleTimeout is how long an ingest connection may stay silent
	// before it is dropped.
	IngestIdleTimeout = time.Second
)

var (
	// ErrInvalidRate indicates a sample rate outside [MinRate, MaxRate].
	ErrInvalidRate = errors.New("invalid sample rate")

	// ErrInvalidChannels indicates a channel count outside [1, MaxChannels].
	ErrInvalidChannels = errors.New("invalid channel count")

	// ErrPacketEmpty indicates an empty codec packet.
	ErrPacketEmpty = errors.New("empty packet")

	// ErrPacketTooLarge indicates a codec packet larger than MaxPacket.
	ErrPacketTooLarge = errors.New("packet too large")
)

// ValidateRate checks that rate lies in [MinRate, MaxRate].
func ValidateRate(rate int) error {
	if rate < MinRate || rate > MaxRate {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidRate, rate, MinRate, MaxRate)
	}
	return nil
}

// ValidateChannels checks that channels lies in [1, MaxChannels].
func ValidateChannels(channels int) error {
	if channels < 1 || channels > MaxChannels {
		return fmt.Errorf("%w: %d not in [1, %d]", ErrInvalidChannels, channels, MaxChannels)
	}
	return nil
}

// ValidatePacket checks the size of a codec packet.
func ValidatePacket(packet []byte) error {
	if len(packet) == 0 {
		return ErrPacketEmpty
	}
	if len(packet) > MaxPacket {
		return fmt.Errorf("%w: size %d exceeds limit %d", ErrPacketTooLarge, len(packet), MaxPacket)
	}
	return nil
}
