// Package oto implements a playback-only device.Backend on top of oto.
//
// oto pulls audio from an io.Reader on its own goroutine. Each stream owns a
// pipe: a mutex-guarded ring that the graph goroutine fills with TryLock and
// oto drains, padding with silence whenever the ring runs dry.
package oto

import (
	"encoding/binary"
	"fmt"
	"sync"

	otov3 "github.com/ebitengine/oto/v3"
	"github.com/opd-ai/audiograph/device"
	"github.com/opd-ai/audiograph/ring"
	"github.com/sirupsen/logrus"
)

// Backend exposes the host's default output as a single card named
// "default", which device.DefaultCard matches.
// oto allows one context per process, so every stream must use the rate and
// channel count of the first one.
type Backend struct {
	mu       sync.Mutex
	ctx      *otov3.Context
	rate     int
	channels int
}

// New creates a backend. The oto context is created by the first Open.
func New() *Backend {
	return &Backend{}
}

// Cards implements device.Enumerator.
func (b *Backend) Cards() ([]device.CardInfo, error) {
	return []device.CardInfo{{Index: 0, Name: "default", LongName: "oto default output"}}, nil
}

// Open implements device.Opener.
func (b *Backend) Open(info device.CardInfo, card device.Card, dir device.Direction) (device.Stream, error) {
	if dir != device.Playback {
		return nil, fmt.Errorf("oto %s: %w", dir, device.ErrUnsupportedDirection)
	}
	ctx, err := b.context(card.Hw)
	if err != nil {
		return nil, err
	}

	p := newPipe(card.Hw.BufferFrames(), card.Hw.Channels)
	player := ctx.NewPlayer(p)
	player.SetBufferSize(card.Hw.PeriodSize * card.Hw.Channels * 2 * 2)

	logrus.WithFields(logrus.Fields{
		"function": "Backend.Open",
		"card":     info.Name,
		"channels": card.Hw.Channels,
		"rate":     card.Hw.Rate,
		"latency":  card.Hw.Latency(),
	}).Info("Opened oto player")

	return &stream{player: player, pipe: p, status: device.StatusPrepared}, nil
}

func (b *Backend) context(hw device.HwParams) (*otov3.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ctx != nil {
		if hw.Rate != b.rate || hw.Channels != b.channels {
			return nil, fmt.Errorf("%w: oto context is %d Hz x%d, card wants %d Hz x%d",
				device.ErrInvalidParams, b.rate, b.channels, hw.Rate, hw.Channels)
		}
		return b.ctx, nil
	}

	ctx, ready, err := otov3.NewContext(&otov3.NewContextOptions{
		SampleRate:   hw.Rate,
		ChannelCount: hw.Channels,
		Format:       otov3.FormatSignedInt16LE,
		BufferSize:   hw.Latency(),
	})
	if err != nil {
		return nil, fmt.Errorf("oto context: %w", err)
	}
	// Waits for the audio driver once per process, on the opening tick.
	<-ready

	b.ctx, b.rate, b.channels = ctx, hw.Rate, hw.Channels
	return ctx, nil
}

type stream struct {
	player *otov3.Player
	pipe   *pipe
	status device.Status
}

func (s *stream) Status() (device.Status, error) { return s.status, nil }

func (s *stream) Prepare() error {
	s.pipe.reset()
	s.status = device.StatusPrepared
	return nil
}

func (s *stream) Start() error {
	s.player.Play()
	s.status = device.StatusRunning
	return nil
}

func (s *stream) Pause(pause bool) error {
	if pause {
		s.player.Pause()
	} else if s.status == device.StatusRunning {
		s.player.Play()
	}
	return nil
}

func (s *stream) Available() (int, error) { return s.pipe.free(), nil }

func (s *stream) Read([]int16) (int, error) {
	return 0, fmt.Errorf("oto read: %w", device.ErrUnsupportedDirection)
}

// Write starts a prepared stream before queueing src.
func (s *stream) Write(src []int16) (int, error) {
	n := s.pipe.write(src)
	if n > 0 && s.status == device.StatusPrepared {
		if err := s.Start(); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (s *stream) Close() error {
	if err := s.player.Close(); err != nil {
		return fmt.Errorf("oto close: %w", err)
	}
	return nil
}

// pipe hands samples from the graph goroutine to oto's reader goroutine.
type pipe struct {
	mu       sync.Mutex
	buf      *ring.Buffer
	channels int
	frames   int
	scratch  []int16
	// Bytes of silence inserted because the ring was empty.
	underrun int
}

func newPipe(frames, channels int) *pipe {
	return &pipe{
		buf:      ring.NewWithCapacity(frames * channels),
		channels: channels,
		frames:   frames,
	}
}

// free returns the frames that can be written, or 0 when the pipe is busy.
func (p *pipe) free() int {
	if !p.mu.TryLock() {
		return 0
	}
	defer p.mu.Unlock()
	return p.buf.Free() / p.channels
}

// write queues whole frames from src without blocking and returns the number
// of frames queued.
func (p *pipe) write(src []int16) int {
	if !p.mu.TryLock() {
		return 0
	}
	defer p.mu.Unlock()
	frames := min(len(src), p.buf.Free()) / p.channels
	p.buf.WriteFrom(frames*p.channels, src)
	return frames
}

func (p *pipe) reset() {
	p.mu.Lock()
	p.buf.Clear()
	p.mu.Unlock()
}

// Read implements io.Reader for oto. It never fails and always fills dst,
// with silence where no audio is queued.
func (p *pipe) Read(dst []byte) (int, error) {
	samples := len(dst) / 2

	p.mu.Lock()
	if cap(p.scratch) < samples {
		p.scratch = make([]int16, samples)
	}
	s := p.scratch[:samples]
	n := p.buf.Read(s)
	if n < samples {
		p.underrun += (samples - n) * 2
	}
	p.mu.Unlock()

	for i := 0; i < samples; i++ {
		var v int16
		if i < n {
			v = s[i]
		}
		binary.LittleEndian.PutUint16(dst[2*i:], uint16(v))
	}
	for i := samples * 2; i < len(dst); i++ {
		dst[i] = 0
	}
	return len(dst), nil
}

func (p *pipe) underrunBytes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.underrun
}
