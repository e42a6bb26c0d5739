// Package devicetest provides an in-memory device.Backend for exercising the
// device state machines without hardware.
//
// Streams opened by the simulated backend keep a queue of samples. Playback
// streams accept writes up to their buffer size and are drained by the test
// with Drain; capture streams are fed by the test with Feed and read by the
// node. Status, pause and failure conditions are set explicitly.
package devicetest

import (
	"sync"

	"github.com/opd-ai/audiograph/device"
	"github.com/sirupsen/logrus"
)

// Backend is a simulated device.Backend.
type Backend struct {
	mu       sync.Mutex
	cards    []device.CardInfo
	cardsErr error
	openErr  error
	streams  []*Stream
}

// NewBackend creates a backend reporting cards.
func NewBackend(cards ...device.CardInfo) *Backend {
	logrus.WithFields(logrus.Fields{
		"function": "devicetest.NewBackend",
		"cards":    len(cards),
	}).Debug("Creating simulated device backend")
	return &Backend{cards: cards}
}

// SetCards replaces the cards reported by the next enumeration.
func (b *Backend) SetCards(cards ...device.CardInfo) {
	b.mu.Lock()
	b.cards = cards
	b.mu.Unlock()
}

// SetCardsError makes enumeration fail with err until cleared with nil.
func (b *Backend) SetCardsError(err error) {
	b.mu.Lock()
	b.cardsErr = err
	b.mu.Unlock()
}

// SetOpenError makes Open fail with err until cleared with nil.
func (b *Backend) SetOpenError(err error) {
	b.mu.Lock()
	b.openErr = err
	b.mu.Unlock()
}

// Cards implements device.Enumerator.
func (b *Backend) Cards() ([]device.CardInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cardsErr != nil {
		return nil, b.cardsErr
	}
	return append([]device.CardInfo(nil), b.cards...), nil
}

// Open implements device.Opener.
func (b *Backend) Open(info device.CardInfo, card device.Card, dir device.Direction) (device.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	s := &Stream{
		Info:      info,
		Card:      card,
		Direction: dir,
		status:    device.StatusPrepared,
		channels:  card.Hw.Channels,
		capacity:  card.Hw.BufferFrames(),
		limit:     -1,
	}
	b.streams = append(b.streams, s)
	return s, nil
}

// Streams returns every stream opened so far.
func (b *Backend) Streams() []*Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Stream(nil), b.streams...)
}

// Last returns the most recently opened stream, or nil.
func (b *Backend) Last() *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.streams) == 0 {
		return nil
	}
	return b.streams[len(b.streams)-1]
}

// Stream is a simulated device.Stream.
type Stream struct {
	Info      device.CardInfo
	Card      device.Card
	Direction device.Direction

	mu        sync.Mutex
	status    device.Status
	statusErr error
	paused    bool
	closed    bool
	channels  int
	capacity  int
	limit     int
	queued    []int16
	written   []int16
	prepares  int
	starts    int
}

// Status implements device.Stream.
func (s *Stream) Status() (device.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.statusErr
}

// Prepare implements device.Stream. Queued samples are dropped.
func (s *Stream) Prepare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepares++
	s.status = device.StatusPrepared
	s.queued = s.queued[:0]
	return nil
}

// Start implements device.Stream.
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	s.status = device.StatusRunning
	return nil
}

// Pause implements device.Stream.
func (s *Stream) Pause(pause bool) error {
	s.mu.Lock()
	s.paused = pause
	s.mu.Unlock()
	return nil
}

// Available implements device.Stream.
func (s *Stream) Available() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Direction == device.Capture {
		return len(s.queued) / s.channels, nil
	}
	return s.capacity - len(s.queued)/s.channels, nil
}

// Read implements device.Stream.
func (s *Stream) Read(dst []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := min(len(dst), len(s.queued)) / s.channels
	n := copy(dst, s.queued[:frames*s.channels])
	s.queued = s.queued[n:]
	return frames, nil
}

// Write implements device.Stream. Writing to a prepared stream starts it.
func (s *Stream) Write(src []int16) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == device.StatusPrepared {
		s.status = device.StatusRunning
	}
	free := s.capacity - len(s.queued)/s.channels
	frames := min(len(src)/s.channels, free)
	if s.limit >= 0 {
		frames = min(frames, s.limit)
	}
	s.queued = append(s.queued, src[:frames*s.channels]...)
	s.written = append(s.written, src[:frames*s.channels]...)
	return frames, nil
}

// SetWriteLimit caps the frames accepted by each Write, as a device that
// is momentarily busy would. A negative limit removes the cap.
func (s *Stream) SetWriteLimit(frames int) {
	s.mu.Lock()
	s.limit = frames
	s.mu.Unlock()
}

// Close implements device.Stream.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// SetStatus changes the status reported from now on.
func (s *Stream) SetStatus(st device.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// SetStatusError makes Status fail with err until cleared with nil.
func (s *Stream) SetStatusError(err error) {
	s.mu.Lock()
	s.statusErr = err
	s.mu.Unlock()
}

// Feed appends captured samples.
func (s *Stream) Feed(samples ...int16) {
	s.mu.Lock()
	s.queued = append(s.queued, samples...)
	s.mu.Unlock()
}

// Drain removes up to frames played frames from the device queue and returns
// the number removed.
func (s *Stream) Drain(frames int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := min(frames*s.channels, len(s.queued))
	s.queued = s.queued[n:]
	return n / s.channels
}

// Queued returns the number of frames held by the device.
func (s *Stream) Queued() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queued) / s.channels
}

// Written returns every sample ever written to a playback stream.
func (s *Stream) Written() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int16(nil), s.written...)
}

// Paused reports whether the stream is paused.
func (s *Stream) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Closed reports whether Close was called.
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Prepares returns how many times Prepare was called.
func (s *Stream) Prepares() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepares
}

// Starts returns how many times Start was called.
func (s *Stream) Starts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.starts
}
