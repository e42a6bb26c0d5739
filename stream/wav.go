package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/opd-ai/audiograph/clock"
	"github.com/opd-ai/audiograph/limits"
	"github.com/sirupsen/logrus"
)

// wavLead is how far ahead of real time a paced WAVReader may run.
const wavLead = 20 * time.Millisecond

// WAVConfig configures a WAVReader.
type WAVConfig struct {
	// Paced limits delivery to the file's sample rate so that the reader
	// can feed a Buffer like a live sender would.
	Paced        bool
	TimeProvider clock.TimeProvider
}

// WAVReader decodes a WAV file into S16LE PCM. 24- and 32-bit files are
// truncated to 16 bits.
type WAVReader struct {
	dec      *wav.Decoder
	rate     int
	channels int
	shift    uint

	buf     *audio.IntBuffer
	out     []byte
	pending []byte

	paced     bool
	tp        clock.TimeProvider
	sleep     func(time.Duration)
	start     time.Time
	delivered int
}

// NewWAVReader checks the header of r and positions it at the first sample.
func NewWAVReader(r io.ReadSeeker, cfg WAVConfig) (*WAVReader, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("wav: %w: not a WAV file", ErrUnsupportedFormat)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}

	format := d.Format()
	depth := int(d.SampleBitDepth())
	var shift uint
	switch depth {
	case 16:
	case 24:
		shift = 8
	case 32:
		shift = 16
	default:
		return nil, fmt.Errorf("wav: %w: %d-bit samples", ErrUnsupportedFormat, depth)
	}
	if err := limits.ValidateChannels(format.NumChannels); err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}
	if err := limits.ValidateRate(format.SampleRate); err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "NewWAVReader",
		"rate":      format.SampleRate,
		"channels":  format.NumChannels,
		"bit_depth": depth,
		"paced":     cfg.Paced,
	}).Info("Opened WAV stream source")

	samples := limits.StreamChunkFrames * format.NumChannels
	return &WAVReader{
		dec:      d,
		rate:     format.SampleRate,
		channels: format.NumChannels,
		shift:    shift,
		buf: &audio.IntBuffer{
			Format:         format,
			Data:           make([]int, samples),
			SourceBitDepth: depth,
		},
		out:   make([]byte, samples*2),
		paced: cfg.Paced,
		tp:    clock.OrDefault(cfg.TimeProvider),
		sleep: time.Sleep,
	}, nil
}

// SampleRate returns the file's sample rate.
func (w *WAVReader) SampleRate() int { return w.rate }

// Channels returns the file's channel count.
func (w *WAVReader) Channels() int { return w.channels }

// Read implements io.Reader. It returns io.EOF after the last sample.
func (w *WAVReader) Read(p []byte) (int, error) {
	for len(w.pending) == 0 {
		if err := w.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, w.pending)
	w.pending = w.pending[n:]
	return n, nil
}

func (w *WAVReader) next() error {
	if w.paced {
		w.pace()
	}
	n, err := w.dec.PCMBuffer(w.buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("wav: %w", err)
	}
	if n == 0 {
		return io.EOF
	}
	n -= n % w.channels
	for i, v := range w.buf.Data[:n] {
		binary.LittleEndian.PutUint16(w.out[2*i:], uint16(int16(v>>w.shift)))
	}
	w.pending = w.out[:2*n]
	w.delivered += n / w.channels
	return nil
}

// pace sleeps until the audio delivered so far is due.
func (w *WAVReader) pace() {
	if w.start.IsZero() {
		w.start = w.tp.Now()
		return
	}
	due := time.Duration(w.delivered) * time.Second / time.Duration(w.rate)
	if ahead := due - w.tp.Since(w.start); ahead > wavLead {
		w.sleep(ahead - wavLead)
	}
}
