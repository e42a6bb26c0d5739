package stream

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/opd-ai/audiograph/limits"
	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// opusFrameBytes is the decoder output per packet: 20ms of 48kHz mono S16LE.
const opusFrameBytes = 960 * 2

// OpusReader decodes a sequence of Opus packets, each preceded by its length
// as a big-endian uint16, into S16LE PCM at 48kHz. Packets that fail to
// decode are skipped; a packet length over limits.MaxPacket means the
// framing is lost and ends the stream.
type OpusReader struct {
	r        io.Reader
	dec      opus.Decoder
	channels int

	hdr     [2]byte
	packet  []byte
	pcm     []byte
	stereo  []byte
	pending []byte

	decoded int
	skipped int
}

// NewOpusReader creates a reader producing channels-channel audio (1 or 2).
// Mono packets are duplicated into both channels when channels is 2.
func NewOpusReader(r io.Reader, channels int) (*OpusReader, error) {
	if channels != 1 && channels != 2 {
		return nil, fmt.Errorf("opus: %w: %d channels", ErrUnsupportedFormat, channels)
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewOpusReader",
		"channels": channels,
	}).Debug("Creating Opus stream reader")

	return &OpusReader{
		r:        r,
		dec:      opus.NewDecoder(),
		channels: channels,
		packet:   make([]byte, limits.MaxPacket),
		pcm:      make([]byte, opusFrameBytes),
		stereo:   make([]byte, opusFrameBytes*2),
	}, nil
}

// Read implements io.Reader.
func (o *OpusReader) Read(p []byte) (int, error) {
	for len(o.pending) == 0 {
		if err := o.next(); err != nil {
			return 0, err
		}
	}
	n := copy(p, o.pending)
	o.pending = o.pending[n:]
	return n, nil
}

// Decoded returns the number of packets decoded so far.
func (o *OpusReader) Decoded() int { return o.decoded }

// Skipped returns the number of packets that could not be decoded.
func (o *OpusReader) Skipped() int { return o.skipped }

func (o *OpusReader) next() error {
	if _, err := io.ReadFull(o.r, o.hdr[:]); err != nil {
		return err
	}
	size := int(binary.BigEndian.Uint16(o.hdr[:]))
	if size == 0 {
		return nil
	}
	if size > limits.MaxPacket {
		return fmt.Errorf("opus: %w: size %d exceeds limit %d", limits.ErrPacketTooLarge, size, limits.MaxPacket)
	}

	pkt := o.packet[:size]
	if _, err := io.ReadFull(o.r, pkt); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("opus packet: %w", err)
	}

	_, isStereo, err := o.dec.Decode(pkt, o.pcm)
	if err != nil {
		o.skipped++
		logrus.WithFields(logrus.Fields{
			"function": "OpusReader.next",
			"size":     size,
			"error":    err.Error(),
		}).Debug("Skipping undecodable Opus packet")
		return nil
	}
	o.decoded++

	if o.channels == 2 && !isStereo {
		for i := 0; i+1 < len(o.pcm); i += 2 {
			o.stereo[2*i], o.stereo[2*i+1] = o.pcm[i], o.pcm[i+1]
			o.stereo[2*i+2], o.stereo[2*i+3] = o.pcm[i], o.pcm[i+1]
		}
		o.pending = o.stereo
		return nil
	}
	o.pending = o.pcm
	return nil
}
