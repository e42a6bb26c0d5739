// Package ring provides the fixed-capacity circular sample store that every
// stage of the audio graph reads from and writes into.
//
// A Buffer holds interleaved signed 16-bit PCM samples. Its cursors live in an
// index space of MaxLength()+1 slots so that a full buffer and an empty buffer
// are never confused, while the usable capacity stays at MaxLength() samples.
// Writing past capacity silently drops the oldest unread samples; no operation
// returns an error or blocks.
package ring

// DefaultMaxLength is the sample capacity of a Buffer created with New.
const DefaultMaxLength = 32768

// Buffer is a circular store of interleaved int16 samples.
//
// Active is a liveness flag and does not take part in the ring math. A
// producer sets it to report whether it supplied real audio this tick and
// consumers interpret it (a playback sink may pause its device when the flag
// is false).
//
// A Buffer is owned by exactly one component at a time and is not safe for
// concurrent use.
type Buffer struct {
	Active bool

	maxLength int
	start     int
	end       int
	data      []int16
}

// New creates an empty, active buffer with DefaultMaxLength capacity.
func New() *Buffer {
	return NewWithCapacity(DefaultMaxLength)
}

// NewWithCapacity creates an empty, active buffer holding at most maxLength
// samples. Values below one are raised to one.
func NewWithCapacity(maxLength int) *Buffer {
	if maxLength < 1 {
		maxLength = 1
	}
	return &Buffer{
		Active:    true,
		maxLength: maxLength,
	}
}

// FromSamples creates an active buffer with DefaultMaxLength capacity whose
// readable content is a copy of samples. Samples beyond capacity are ignored.
func FromSamples(samples []int16) *Buffer {
	b := New()
	b.WriteFrom(len(samples), samples)
	return b
}

// MaxLength returns the sample capacity.
func (b *Buffer) MaxLength() int { return b.maxLength }

// Len returns the number of unread samples, always in [0, MaxLength()].
func (b *Buffer) Len() int {
	if b.start > b.end {
		return b.maxLength + 1 - b.start + b.end
	}
	return b.end - b.start
}

// Free returns how many samples can be written before the oldest unread
// samples start being overwritten.
func (b *Buffer) Free() int { return b.maxLength - b.Len() }

// Clear resets both cursors to zero. Storage is kept and not zeroed.
func (b *Buffer) Clear() {
	b.start = 0
	b.end = 0
}

// Peek returns a window over the next min(n, Len()) unread samples without
// consuming them.
func (b *Buffer) Peek(n int) Slice {
	n = clamp(n, b.Len())
	return b.window(b.start, n)
}

// ReadSlice returns a window over the next min(n, Len()) unread samples and
// consumes them. The window stays valid until the next write to b.
func (b *Buffer) ReadSlice(n int) Slice {
	n = clamp(n, b.Len())
	s := b.window(b.start, n)
	b.start = b.advance(b.start, n)
	return s
}

// Discard drops up to n unread samples and returns how many were dropped.
func (b *Buffer) Discard(n int) int {
	n = clamp(n, b.Len())
	b.start = b.advance(b.start, n)
	return n
}

// WriteSlice reserves min(n, MaxLength()) samples at the write cursor and
// returns a window over them for the caller to fill. The reserved samples
// count as written immediately. If the buffer would exceed capacity the
// oldest unread samples are dropped so that Len() never exceeds MaxLength().
//
// The content of the returned window is whatever the storage held before;
// callers must overwrite every sample in it.
func (b *Buffer) WriteSlice(n int) Slice {
	n = clamp(n, b.maxLength)
	if n == 0 {
		return Slice{}
	}
	prev := b.Len()
	b.grow(b.end + n + 1)
	pos := b.end
	b.end = b.advance(b.end, n)
	if prev+n > b.maxLength {
		b.start = b.advance(b.end, 1)
	}
	return b.window(pos, n)
}

// Read copies up to len(dst) unread samples into dst, consumes them and
// returns the number copied.
func (b *Buffer) Read(dst []int16) int {
	return b.ReadSlice(len(dst)).CopyTo(dst)
}

// WriteFrom appends min(amount, len(src), MaxLength()) samples taken from the
// front of src and returns the number written.
func (b *Buffer) WriteFrom(amount int, src []int16) int {
	n := clamp(clamp(amount, len(src)), b.maxLength)
	return b.WriteSlice(n).CopyFrom(src[:n])
}

// WriteFromRing moves min(amount, src.Len(), MaxLength()) samples from src
// into b. The moved samples are consumed from src.
func (b *Buffer) WriteFromRing(amount int, src *Buffer) int {
	n := clamp(clamp(amount, src.Len()), b.maxLength)
	return b.WriteSlice(n).CopyFromSlice(src.ReadSlice(n))
}

// WriteFromReadSlice appends min(amount, s.Len(), MaxLength()) samples from a
// window previously returned by another buffer's ReadSlice or Peek.
func (b *Buffer) WriteFromReadSlice(amount int, s Slice) int {
	n := clamp(clamp(amount, s.Len()), b.maxLength)
	return b.WriteSlice(n).CopyFromSlice(s.Head(n))
}

// WriteSilence appends min(n, MaxLength()) zero samples.
func (b *Buffer) WriteSilence(n int) int {
	s := b.WriteSlice(n)
	s.Fill(0)
	return s.Len()
}

func (b *Buffer) advance(pos, n int) int {
	return (pos + n) % (b.maxLength + 1)
}

// grow extends storage to min(size, MaxLength()+1) elements. Storage never
// shrinks, so a buffer that has reached its working size stops allocating.
func (b *Buffer) grow(size int) {
	if size > b.maxLength+1 {
		size = b.maxLength + 1
	}
	if size <= len(b.data) {
		return
	}
	if size <= cap(b.data) {
		b.data = b.data[:size]
		return
	}
	b.data = append(b.data, make([]int16, size-len(b.data))...)
}

func (b *Buffer) window(pos, n int) Slice {
	if n == 0 {
		return Slice{}
	}
	size := b.maxLength + 1
	if pos+n <= size {
		return Slice{a: b.data[pos : pos+n]}
	}
	return Slice{a: b.data[pos:size], b: b.data[:pos+n-size]}
}

func clamp(n, limit int) int {
	if n < 0 {
		return 0
	}
	if n > limit {
		return limit
	}
	return n
}
