package stream

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/opd-ai/audiograph/limits"
	"github.com/opd-ai/audiograph/ring"
	"github.com/sirupsen/logrus"
)

// chunkBytes is the largest read issued per iteration: StreamChunkFrames
// stereo frames of 16-bit samples.
const chunkBytes = limits.StreamChunkFrames * 2 * 2

// flushInterval is how often staged samples are retried and the idle
// timeout is checked.
const flushInterval = time.Millisecond

// Ingest copies raw S16LE PCM from r into the buffer until r is exhausted,
// r fails, no data arrives for limits.IngestIdleTimeout, or ctx is done.
//
// Samples go straight into the shared ring when its lock is free and into a
// private staging ring otherwise; staged samples are flushed on the next
// iteration, always ahead of newer samples. If the shared ring holds limits.StreamOverflowSamples unread
// samples when a flush happens, everything buffered is dropped instead.
//
// Ingest returns ErrAlreadyConnected if another writer is attached, ErrIdle
// after the idle timeout, nil at end of input and the read error otherwise.
// A Read that blocks forever is abandoned when Ingest returns; callers
// should close r afterwards.
func (b *Buffer) Ingest(ctx context.Context, r io.Reader) error {
	if !b.connected.CompareAndSwap(false, true) {
		logrus.WithFields(logrus.Fields{
			"function": "Buffer.Ingest",
			"stream":   b.name,
		}).Warn("Stream already connected")
		return fmt.Errorf("%s: %w", b.name, ErrAlreadyConnected)
	}
	defer b.connected.Store(false)

	logrus.WithFields(logrus.Fields{
		"function": "Buffer.Ingest",
		"stream":   b.name,
	}).Info("Stream connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks := make(chan []byte)
	free := make(chan []byte, 2)
	free <- make([]byte, chunkBytes)
	free <- make([]byte, chunkBytes)
	errc := make(chan error, 1)
	go readChunks(ctx, r, chunks, free, errc)

	in := &ingest{
		b:       b,
		staging: ring.New(),
		samples: make([]int16, chunkBytes/2+1),
	}
	lastRead := b.tp.Now()

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.clear()
			return ctx.Err()

		case err := <-errc:
			in.flush()
			if errors.Is(err, io.EOF) {
				logrus.WithFields(logrus.Fields{
					"function": "Buffer.Ingest",
					"stream":   b.name,
				}).Info("Stream ended")
				return nil
			}
			b.clear()
			logrus.WithFields(logrus.Fields{
				"function": "Buffer.Ingest",
				"stream":   b.name,
				"error":    err.Error(),
			}).Warn("Stream read failed")
			return fmt.Errorf("%s: read: %w", b.name, err)

		case chunk := <-chunks:
			in.push(chunk)
			free <- chunk[:cap(chunk)]
			lastRead = b.tp.Now()

		case <-ticker.C:
			if in.flush() {
				lastRead = b.tp.Now()
			}
			if b.tp.Since(lastRead) > limits.IngestIdleTimeout {
				b.clear()
				logrus.WithFields(logrus.Fields{
					"function": "Buffer.Ingest",
					"stream":   b.name,
				}).Warn("No data for a second, dropping stream")
				return fmt.Errorf("%s: %w", b.name, ErrIdle)
			}
		}
	}
}

func readChunks(ctx context.Context, r io.Reader, chunks chan<- []byte, free <-chan []byte, errc chan<- error) {
	for {
		var buf []byte
		select {
		case buf = <-free:
		case <-ctx.Done():
			return
		}
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case chunks <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errc <- err
			return
		}
	}
}

func (b *Buffer) clear() {
	b.mu.Lock()
	b.shared.Clear()
	b.mu.Unlock()
}

// ingest holds the writer-side state of one connection.
type ingest struct {
	b       *Buffer
	staging *ring.Buffer
	samples []int16
	// A trailing odd byte carried to the next chunk.
	odd    byte
	hasOdd bool
}

// push decodes chunk into samples and hands them to the shared ring.
func (in *ingest) push(chunk []byte) {
	n := 0
	if in.hasOdd && len(chunk) > 0 {
		in.samples[n] = int16(uint16(in.odd) | uint16(chunk[0])<<8)
		n++
		chunk = chunk[1:]
		in.hasOdd = false
	}
	for ; len(chunk) >= 2; chunk = chunk[2:] {
		in.samples[n] = int16(binary.LittleEndian.Uint16(chunk))
		n++
	}
	if len(chunk) == 1 {
		in.odd, in.hasOdd = chunk[0], true
	}
	if n == 0 {
		return
	}

	b := in.b
	if !b.mu.TryLock() {
		in.staging.WriteFrom(n, in.samples)
		return
	}
	if b.shared.Len() >= limits.StreamOverflowSamples {
		in.dropBacklog()
	} else if in.staging.Len() > 0 {
		b.shared.WriteFromRing(in.staging.Len(), in.staging)
	}
	b.shared.WriteFrom(n, in.samples)
	b.mu.Unlock()
}

// flush moves staged samples into the shared ring, blocking for its lock.
// It reports whether anything was staged.
func (in *ingest) flush() bool {
	if in.staging.Len() == 0 {
		return false
	}
	b := in.b
	b.mu.Lock()
	if b.shared.Len() >= limits.StreamOverflowSamples {
		in.dropBacklog()
	} else {
		b.shared.WriteFromRing(in.staging.Len(), in.staging)
	}
	b.mu.Unlock()
	return true
}

// dropBacklog discards everything buffered. The shared lock must be held.
func (in *ingest) dropBacklog() {
	logrus.WithFields(logrus.Fields{
		"function": "ingest.dropBacklog",
		"stream":   in.b.name,
		"shared":   in.b.shared.Len(),
		"staged":   in.staging.Len(),
	}).Warn("Cleaning build up in stream")
	in.b.shared.Clear()
	in.staging.Clear()
}
