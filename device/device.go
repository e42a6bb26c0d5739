// Package device connects the graph to sound hardware.
//
// A Backend enumerates the cards currently present and opens PCM streams on
// them. A Factory turns Card descriptors into graph nodes: Playback sinks and
// Capture sources that search for their card every tick, open it under the
// engine-wide activation permit, recover from overruns, pause while another
// device is being brought up and back off for a cooldown after any failure.
//
// Every method that a node calls from the graph goroutine is non-blocking.
// Concrete backends live in the portaudio and oto subpackages; devicetest
// provides a simulated one.
package device

// Status is the state a Stream reports to its wrapper.
type Status int

const (
	// StatusPrepared means the stream is configured but not started.
	StatusPrepared Status = iota
	// StatusRunning means samples are flowing.
	StatusRunning
	// StatusOverrun means the stream ran out of buffer (overrun on capture,
	// underrun on playback) and must be prepared again.
	StatusOverrun
	// StatusDisconnected means the hardware went away.
	StatusDisconnected
)

// String returns a human readable name of the status.
func (s Status) String() string {
	switch s {
	case StatusPrepared:
		return "prepared"
	case StatusRunning:
		return "running"
	case StatusOverrun:
		return "overrun"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Direction selects playback or capture.
type Direction int

const (
	// Playback streams are written by a Sink.
	Playback Direction = iota
	// Capture streams are read by a Source.
	Capture
)

// String returns "playback" or "capture".
func (d Direction) String() string {
	if d == Capture {
		return "capture"
	}
	return "playback"
}

// Stream is an open PCM stream of interleaved signed 16-bit samples. Frame
// counts are per channel; a stereo frame is two samples.
//
// Available, Read and Write must not block: Available reports how many frames
// can be transferred right now and callers never ask for more.
type Stream interface {
	Status() (Status, error)
	Prepare() error
	Start() error
	Pause(pause bool) error
	// Available returns the frames that can be read (capture) or written
	// (playback) without blocking.
	Available() (int, error)
	// Read fills dst with whole frames and returns the number of frames read.
	Read(dst []int16) (int, error)
	// Write queues whole frames from src and returns the number of frames
	// written.
	Write(src []int16) (int, error)
	Close() error
}

// CardInfo identifies a card as reported by an Enumerator.
type CardInfo struct {
	Index    int
	Name     string
	LongName string
}

// Enumerator lists the cards currently present. Cards may block; it is only
// called from the CardList goroutine.
type Enumerator interface {
	Cards() ([]CardInfo, error)
}

// Opener opens a stream on a card. Open is called from the graph goroutine
// while the caller holds the activation permit.
type Opener interface {
	Open(info CardInfo, card Card, dir Direction) (Stream, error)
}

// Backend is the full hardware collaborator.
type Backend interface {
	Enumerator
	Opener
}
