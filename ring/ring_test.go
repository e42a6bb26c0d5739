package ring

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequence(from, to int) []int16 {
	out := make([]int16, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, int16(i))
	}
	return out
}

func TestNewDefaults(t *testing.T) {
	b := New()
	assert.Equal(t, DefaultMaxLength, b.MaxLength())
	assert.True(t, b.Active)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, DefaultMaxLength, b.Free())

	assert.Equal(t, 1, NewWithCapacity(0).MaxLength())
}

func TestReadClampsToAvailable(t *testing.T) {
	b := FromSamples(sequence(0, 48))
	dst := make([]int16, 49)

	assert.Equal(t, 48, b.Len())
	assert.Equal(t, 48, b.Read(dst))
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, int16(0), dst[0])
	assert.Equal(t, int16(47), dst[47])
}

func TestWriteFromClampsToSource(t *testing.T) {
	b := New()
	v := sequence(0, 48)

	assert.Equal(t, 48, b.WriteFrom(49, v))
	assert.Equal(t, 48, b.Len())
	assert.Equal(t, 48, b.end)
}

func TestWriteFromRingDrainsSource(t *testing.T) {
	a := New()
	src := New()
	src.WriteFrom(48, sequence(0, 48))

	assert.Equal(t, 48, a.WriteFromRing(49, src))
	assert.Equal(t, 0, src.Len())
	assert.Equal(t, 48, a.Len())
	assert.Equal(t, 48, a.end)
	assert.Equal(t, 48, src.start)
}

func TestReadAcrossWrapBoundary(t *testing.T) {
	a := NewWithCapacity(48)
	a.data = sequence(0, 49)
	a.start = 24
	a.end = 23

	dst := make([]int16, 49)
	assert.Equal(t, 48, a.Len())
	assert.Equal(t, 48, a.Read(dst))
	assert.Equal(t, 0, a.Len())
	assert.Equal(t, int16(24), dst[0])
	assert.Equal(t, int16(48), dst[24])
	assert.Equal(t, int16(0), dst[25])
}

func TestWriteAcrossWrapBoundary(t *testing.T) {
	a := NewWithCapacity(48)
	a.start = 24
	a.end = 24

	assert.Equal(t, 48, a.WriteFrom(49, sequence(0, 48)))
	assert.Equal(t, 48, a.Len())
	assert.Equal(t, 23, a.end)

	got := make([]int16, 48)
	a.Read(got)
	assert.Equal(t, sequence(0, 48), got)
}

func TestWriteFromRingAcrossWrapBoundary(t *testing.T) {
	a := NewWithCapacity(48)
	a.start, a.end = 24, 24
	src := NewWithCapacity(48)
	src.start, src.end = 12, 12

	src.WriteFrom(48, sequence(0, 48))
	require.Equal(t, 11, src.end)
	require.Equal(t, 48, src.Len())

	assert.Equal(t, 48, a.WriteFromRing(49, src))
	assert.Equal(t, 0, src.Len())
	assert.Equal(t, 48, a.Len())
	assert.Equal(t, 23, a.end)
	assert.Equal(t, 11, src.start)

	got := make([]int16, 48)
	a.Read(got)
	assert.Equal(t, sequence(0, 48), got)
}

func TestOverflowDropsOldest(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		writes   []int
		wantLen  int
		wantHead int16
	}{
		{"single oversized write", 48, []int{100}, 48, 0},
		{"fill then one more", 48, []int{48, 1}, 48, 1},
		{"two partial writes overflow", 48, []int{30, 30}, 48, 12},
		{"exact fill", 48, []int{48}, 48, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewWithCapacity(tt.capacity)
			next := 0
			for _, n := range tt.writes {
				written := b.WriteFrom(n, sequence(next, next+n))
				next += written
			}
			assert.Equal(t, tt.wantLen, b.Len())
			assert.Equal(t, tt.wantHead, b.Peek(1).At(0))
		})
	}
}

func TestCapacityInvariantUnderRandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	b := NewWithCapacity(97)
	src := NewWithCapacity(64)
	buf := make([]int16, 300)

	for i := 0; i < 5000; i++ {
		switch rng.Intn(6) {
		case 0:
			b.WriteFrom(rng.Intn(300), buf)
		case 1:
			b.Read(buf[:rng.Intn(300)])
		case 2:
			src.WriteFrom(rng.Intn(100), buf)
			before := src.Len()
			moved := b.WriteFromRing(rng.Intn(100), src)
			require.Equal(t, before-moved, src.Len())
		case 3:
			b.WriteSilence(rng.Intn(200))
		case 4:
			b.Discard(rng.Intn(50))
		case 5:
			b.ReadSlice(rng.Intn(120))
		}
		require.GreaterOrEqual(t, b.Len(), 0)
		require.LessOrEqual(t, b.Len(), b.MaxLength())
	}
}

func TestRingToRingRoundTrip(t *testing.T) {
	values := sequence(1000, 1100)

	direct := NewWithCapacity(128)
	direct.WriteSilence(90)
	direct.Discard(90)
	direct.WriteFrom(len(values), values)

	via := NewWithCapacity(128)
	via.WriteSilence(70)
	via.Discard(70)
	src := NewWithCapacity(128)
	src.WriteSilence(90)
	src.Discard(90)
	src.WriteFrom(len(values), values)

	srcBefore := src.Len()
	moved := via.WriteFromRing(60, src)
	assert.Equal(t, 60, moved)
	assert.Equal(t, srcBefore-60, src.Len())

	want := make([]int16, 60)
	direct.Read(want)
	got := make([]int16, 60)
	via.Read(got)
	assert.Equal(t, want, got)
}

func TestWriteSliceFillsInPlace(t *testing.T) {
	b := NewWithCapacity(16)
	b.WriteSilence(12)
	b.Discard(12)

	s := b.WriteSlice(10)
	a, rest := s.Runs()
	assert.Len(t, a, 5)
	assert.Len(t, rest, 5)
	for i := 0; i < s.Len(); i++ {
		s.Set(i, int16(i*2))
	}

	r := b.ReadSlice(10)
	for i, v := range r.All() {
		assert.Equal(t, int16(i*2), v)
	}
}

func TestWriteFromReadSlice(t *testing.T) {
	src := FromSamples(sequence(0, 20))
	dst := New()

	s := src.ReadSlice(20)
	assert.Equal(t, 15, dst.WriteFromReadSlice(15, s))
	assert.Equal(t, 15, dst.Len())
	assert.Equal(t, 0, src.Len())
	assert.Equal(t, int16(14), dst.Peek(15).At(14))
}

func TestClearKeepsStorage(t *testing.T) {
	b := FromSamples(sequence(0, 64))
	storage := len(b.data)
	b.Clear()
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, storage, len(b.data))
}

func TestSteadyStateDoesNotAllocate(t *testing.T) {
	b := NewWithCapacity(1024)
	src := make([]int16, 256)
	dst := make([]int16, 256)
	for i := 0; i < 10; i++ {
		b.WriteFrom(len(src), src)
		b.Read(dst)
	}

	allocs := testing.AllocsPerRun(100, func() {
		b.WriteFrom(len(src), src)
		b.Read(dst)
	})
	assert.Zero(t, allocs)
}
