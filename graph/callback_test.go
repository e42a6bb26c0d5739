package graph

import (
	"testing"

	"github.com/opd-ai/audiograph/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// passThrough moves every available input sample to the output.
var passThrough = TransformFunc(func(in, out *ring.Buffer) {
	out.WriteFromRing(in.Len(), in)
})

func readAll(b *ring.Buffer) []int16 {
	out := make([]int16, b.Len())
	b.Read(out)
	return out
}

func TestCallbackArity(t *testing.T) {
	tests := []struct {
		name       string
		inputs     int
		outputs    int
		wantOutLen int
	}{
		{"one to one", 1, 1, 48},
		{"one to many", 1, 3, 48},
		{"many to one", 2, 1, 48},
		{"many to many", 3, 2, 48},
		{"sink", 1, 0, 0},
		{"mixing sink", 2, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var inputs, outputs []*ring.Buffer
			for i := 0; i < tt.inputs; i++ {
				inputs = append(inputs, filled(48, 96))
			}
			for i := 0; i < tt.outputs; i++ {
				outputs = append(outputs, ring.New())
			}

			NewCallback(passThrough).Update(inputs, outputs)

			for _, in := range inputs {
				assert.Equal(t, 0, in.Len())
			}
			for _, out := range outputs {
				require.Equal(t, tt.wantOutLen, out.Len())
				assert.True(t, out.Active)
				assert.Equal(t, int16(48*tt.inputs), out.Peek(1).At(0))
			}
		})
	}
}

func TestCallbackGenerator(t *testing.T) {
	var seenActive bool
	gen := NewCallback(TransformFunc(func(in, out *ring.Buffer) {
		seenActive = in.Active
		out.WriteFrom(4, []int16{1, 2, 3, 4})
	}))
	outs := []*ring.Buffer{ring.New(), ring.New()}

	gen.Update(nil, outs[:1])
	assert.True(t, seenActive)
	assert.Equal(t, []int16{1, 2, 3, 4}, readAll(outs[0]))

	gen.Update(nil, outs)
	assert.Equal(t, []int16{1, 2, 3, 4}, readAll(outs[0]))
	assert.Equal(t, []int16{1, 2, 3, 4}, readAll(outs[1]))
}

func TestCallbackPropagatesInactiveInput(t *testing.T) {
	in := filled(0, 10)
	in.Active = false
	outs := []*ring.Buffer{ring.New(), ring.New()}

	NewCallback(passThrough).Update([]*ring.Buffer{in}, outs)

	for _, out := range outs {
		assert.False(t, out.Active)
	}
}

func TestCallbackNoBuffersIsNoop(t *testing.T) {
	called := false
	NewCallback(TransformFunc(func(in, out *ring.Buffer) { called = true })).Update(nil, nil)
	assert.False(t, called)
}

func TestCaptureCopiesToOutputs(t *testing.T) {
	c := NewCapture(func(out *ring.Buffer) {
		out.WriteFrom(48, filledSamples(48, 96))
	})
	outs := []*ring.Buffer{ring.New(), ring.New()}

	c.Update(nil, outs)

	for _, out := range outs {
		got := readAll(out)
		require.Len(t, got, 48)
		assert.Equal(t, int16(48), got[0])
	}
}

func TestPlaybackDrainsSingleInput(t *testing.T) {
	var got []int16
	p := NewPlayback(func(in *ring.Buffer) { got = readAll(in) })
	in := filled(48, 96)

	p.Update([]*ring.Buffer{in}, nil)

	assert.Equal(t, 0, in.Len())
	require.Len(t, got, 48)
	assert.Equal(t, int16(48), got[0])
}

func TestPlaybackMixesSeveralInputs(t *testing.T) {
	var active bool
	var got []int16
	p := NewPlayback(func(in *ring.Buffer) {
		active = in.Active
		got = readAll(in)
	})

	p.Update([]*ring.Buffer{filled(0, 4), filled(10, 20)}, nil)
	assert.True(t, active)
	assert.Equal(t, []int16{10, 12, 14, 16}, got)

	p.Update(nil, nil)
	assert.False(t, active)
	assert.Empty(t, got)
}

func filledSamples(from, to int) []int16 {
	out := make([]int16, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, int16(i))
	}
	return out
}
