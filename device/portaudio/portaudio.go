// Package portaudio implements device.Backend on top of PortAudio blocking
// streams.
//
// Streams are opened in blocking mode and only ever asked to transfer as
// many frames as PortAudio reports available, so neither Read nor Write
// waits. PortAudio enumerates devices when it is initialized; cards plugged
// in later only appear after a restart.
package portaudio

import (
	"errors"
	"fmt"
	"sync"

	pa "github.com/gordonklaus/portaudio"
	"github.com/opd-ai/audiograph/device"
	"github.com/sirupsen/logrus"
)

// DefaultIndex is the CardInfo.Index of the host's default device.
const DefaultIndex = -1

// Backend is a PortAudio device.Backend.
type Backend struct {
	mu sync.Mutex
}

// New initializes PortAudio. Close must be called to release it.
func New() (*Backend, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function": "portaudio.New",
		"version":  pa.VersionText(),
	}).Info("PortAudio initialized")
	return &Backend{}, nil
}

// Close terminates PortAudio.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := pa.Terminate(); err != nil {
		return fmt.Errorf("portaudio terminate: %w", err)
	}
	return nil
}

// Cards implements device.Enumerator. The list always contains a "default"
// entry standing for the host's default input and output devices.
func (b *Backend) Cards() ([]device.CardInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio devices: %w", err)
	}
	cards := make([]device.CardInfo, 0, len(devices)+1)
	cards = append(cards, device.CardInfo{Index: DefaultIndex, Name: "default", LongName: "default"})
	for _, d := range devices {
		cards = append(cards, cardInfo(d))
	}
	return cards, nil
}

func cardInfo(d *pa.DeviceInfo) device.CardInfo {
	long := d.Name
	if d.HostApi != nil {
		long = fmt.Sprintf("%s at %s", d.Name, d.HostApi.Name)
	}
	return device.CardInfo{Index: d.Index, Name: d.Name, LongName: long}
}

// Open implements device.Opener.
func (b *Backend) Open(info device.CardInfo, card device.Card, dir device.Direction) (device.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, err := lookup(info, dir)
	if err != nil {
		return nil, err
	}

	hw := card.Hw
	dev := pa.StreamDeviceParameters{Device: d, Channels: hw.Channels, Latency: hw.Latency()}
	params := pa.StreamParameters{
		SampleRate:      float64(hw.Rate),
		FramesPerBuffer: hw.PeriodSize,
	}
	if dir == device.Capture {
		if d.MaxInputChannels < hw.Channels {
			return nil, fmt.Errorf("%s: %w: %d input channels", d.Name, device.ErrInvalidParams, d.MaxInputChannels)
		}
		params.Input = dev
	} else {
		if d.MaxOutputChannels < hw.Channels {
			return nil, fmt.Errorf("%s: %w: %d output channels", d.Name, device.ErrInvalidParams, d.MaxOutputChannels)
		}
		params.Output = dev
	}

	s := &stream{
		dir:          dir,
		channels:     hw.Channels,
		bufferFrames: hw.BufferFrames(),
		io:           make([]int16, hw.PeriodSize*hw.Channels),
		status:       device.StatusPrepared,
	}
	s.pa, err = pa.OpenStream(params, &s.io)
	if err != nil {
		return nil, fmt.Errorf("open %s %s: %w", d.Name, dir, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Backend.Open",
		"device":    d.Name,
		"direction": dir.String(),
		"channels":  hw.Channels,
		"rate":      hw.Rate,
		"latency":   hw.Latency(),
	}).Info("Opened PortAudio stream")
	return s, nil
}

func lookup(info device.CardInfo, dir device.Direction) (*pa.DeviceInfo, error) {
	if info.Index == DefaultIndex {
		var (
			d   *pa.DeviceInfo
			err error
		)
		if dir == device.Capture {
			d, err = pa.DefaultInputDevice()
		} else {
			d, err = pa.DefaultOutputDevice()
		}
		if err != nil {
			return nil, fmt.Errorf("default %s device: %w", dir, err)
		}
		return d, nil
	}

	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("portaudio devices: %w", err)
	}
	for _, d := range devices {
		if d.Index == info.Index && d.Name == info.Name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %d %q", device.ErrNoSuchCard, info.Index, info.Name)
}

// stream adapts a blocking PortAudio stream to device.Stream. PortAudio has
// no notion of a prepared or disconnected stream, so the status is derived
// from the outcome of the last call.
type stream struct {
	pa           *pa.Stream
	dir          device.Direction
	channels     int
	bufferFrames int
	io           []int16
	status       device.Status
}

func (s *stream) Status() (device.Status, error) { return s.status, nil }

// Prepare aborts the stream, discarding whatever it holds.
func (s *stream) Prepare() error {
	if s.status == device.StatusRunning || s.status == device.StatusOverrun {
		if err := s.pa.Abort(); err != nil {
			return fmt.Errorf("abort: %w", err)
		}
	}
	s.status = device.StatusPrepared
	return nil
}

func (s *stream) Start() error {
	if err := s.pa.Start(); err != nil {
		s.status = device.StatusDisconnected
		return fmt.Errorf("start: %w", err)
	}
	s.status = device.StatusRunning
	return nil
}

func (s *stream) Pause(pause bool) error {
	if pause {
		if s.status != device.StatusRunning {
			return nil
		}
		if err := s.pa.Abort(); err != nil {
			return fmt.Errorf("pause: %w", err)
		}
		s.status = device.StatusPrepared
		return nil
	}
	if s.dir == device.Capture && s.status == device.StatusPrepared {
		return s.Start()
	}
	return nil
}

// Available reports the full buffer for a playback stream that has not been
// started yet.
func (s *stream) Available() (int, error) {
	if s.status == device.StatusPrepared && s.dir == device.Playback {
		return s.bufferFrames, nil
	}
	var (
		n   int
		err error
	)
	if s.dir == device.Capture {
		n, err = s.pa.AvailableToRead()
	} else {
		n, err = s.pa.AvailableToWrite()
	}
	if err != nil {
		s.fail(err)
		return 0, fmt.Errorf("available: %w", err)
	}
	return n, nil
}

func (s *stream) Read(dst []int16) (int, error) {
	frames := len(dst) / s.channels
	if frames == 0 {
		return 0, nil
	}
	s.io = dst[:frames*s.channels]
	if err := s.pa.Read(); err != nil {
		if errors.Is(err, pa.InputOverflowed) {
			s.status = device.StatusOverrun
			return frames, nil
		}
		s.fail(err)
		return 0, fmt.Errorf("read: %w", err)
	}
	return frames, nil
}

// Write starts a prepared stream before queueing src.
func (s *stream) Write(src []int16) (int, error) {
	frames := len(src) / s.channels
	if frames == 0 {
		return 0, nil
	}
	if s.status == device.StatusPrepared {
		if err := s.Start(); err != nil {
			return 0, err
		}
	}
	s.io = src[:frames*s.channels]
	if err := s.pa.Write(); err != nil {
		if errors.Is(err, pa.OutputUnderflowed) {
			s.status = device.StatusOverrun
			return frames, nil
		}
		s.fail(err)
		return 0, fmt.Errorf("write: %w", err)
	}
	return frames, nil
}

func (s *stream) Close() error {
	if s.status == device.StatusRunning || s.status == device.StatusOverrun {
		_ = s.pa.Abort()
	}
	if err := s.pa.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

func (s *stream) fail(err error) {
	logrus.WithFields(logrus.Fields{
		"function":  "stream.fail",
		"direction": s.dir.String(),
		"error":     err.Error(),
	}).Warn("PortAudio stream failed")
	s.status = device.StatusDisconnected
}
