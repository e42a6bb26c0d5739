package nodes

import (
	"testing"

	"github.com/opd-ai/audiograph/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDuck(t *testing.T, channels int) (*Duck, *Gate) {
	t.Helper()
	state := NewGate(false)
	d, err := NewDuck(DuckConfig{Peak: 1000, Channels: channels, State: state})
	require.NoError(t, err)
	return d, state
}

func TestNewDuckValidation(t *testing.T) {
	_, err := NewDuck(DuckConfig{Peak: 1})
	assert.ErrorIs(t, err, ErrNilState)

	_, err = NewDuck(DuckConfig{Peak: 1, Channels: -1, State: NewGate(false)})
	assert.Error(t, err)
}

func TestDuckMutesWhileQuiet(t *testing.T) {
	d, state := newTestDuck(t, 2)
	out := ring.New()

	tick(d, samples(10, -20, 999, -1000), out)

	assert.Equal(t, []int16{0, 0, 0, 0}, drain(out))
	assert.False(t, state.Get())
	assert.False(t, d.Active())
}

func TestDuckTriggersOnPeak(t *testing.T) {
	tests := []struct {
		name  string
		input []int16
	}{
		{"positive", []int16{0, 1001, 5, 5}},
		{"negative", []int16{-1001, 0}},
		{"most negative", []int16{-32768, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, state := newTestDuck(t, 2)
			out := ring.New()

			tick(d, samples(tt.input...), out)

			assert.True(t, state.Get())
			assert.Equal(t, tt.input, drain(out))
		})
	}
}

func TestDuckReturnsToQuietAfterHold(t *testing.T) {
	d, state := newTestDuck(t, 1)
	out := ring.New()

	tick(d, samples(2000), out)
	require.True(t, state.Get())
	drain(out)

	// 48000 quiet samples keep the duck open.
	var last []int16
	for i := 0; i < 48; i++ {
		tick(d, constant(1000, 1), out)
		last = drain(out)
	}
	assert.True(t, state.Get())
	require.Len(t, last, 1000)
	assert.Equal(t, int16(1), last[999])

	// One more frame crosses the hold.
	tick(d, samples(1), out)
	assert.False(t, state.Get())
	assert.Equal(t, []int16{1}, drain(out), "the crossing tick still passes")

	tick(d, samples(3, 3), out)
	assert.Equal(t, []int16{0, 0}, drain(out))
}

func TestDuckCountsFramesForStereo(t *testing.T) {
	d, state := newTestDuck(t, 2)
	out := ring.New()

	tick(d, samples(2000, 2000), out)
	for i := 0; i < 96; i++ {
		tick(d, constant(1000, 0), out)
		drain(out)
	}
	assert.True(t, state.Get(), "96000 stereo samples are exactly 48000 frames")

	tick(d, samples(0, 0), out)
	assert.False(t, state.Get())
}

func TestDuckedAttenuatesWhileAnyStateRaised(t *testing.T) {
	a := NewGate(false)
	b := NewGate(false)
	d, err := NewDucked([]*Gate{a, b}, 1, 5)
	require.NoError(t, err)
	out := ring.New()

	tick(d, samples(100, -100), out)
	assert.Equal(t, []int16{100, -100}, drain(out))

	b.Set(true)
	tick(d, samples(100, -100, 32767), out)
	assert.Equal(t, []int16{20, -20, 6553}, drain(out))
}

func TestDuckedIgnoresInactiveInput(t *testing.T) {
	d, err := NewDucked([]*Gate{NewGate(true)}, 1, 2)
	require.NoError(t, err)
	in := samples(10, 10)
	in.Active = false
	out := ring.New()

	tick(d, in, out)

	assert.Equal(t, 2, in.Len())
	assert.Equal(t, 0, out.Len())
	assert.False(t, out.Active)
}

func TestDuckedKeepsLastValueWhenContended(t *testing.T) {
	state := NewGate(true)
	d, err := NewDucked([]*Gate{state}, 1, 2)
	require.NoError(t, err)
	out := ring.New()

	tick(d, samples(10), out)
	assert.Equal(t, []int16{5}, drain(out))

	state.mu.Lock()
	tick(d, samples(10), out)
	state.mu.Unlock()
	assert.Equal(t, []int16{5}, drain(out))
}

func TestNewDuckedValidation(t *testing.T) {
	_, err := NewDucked([]*Gate{nil}, 1, 2)
	assert.ErrorIs(t, err, ErrNilState)
	_, err = NewDucked(nil, 1, 0)
	assert.ErrorIs(t, err, ErrInvalidRatio)
}

func TestDuckFeedsDuckedInGraphOrder(t *testing.T) {
	state := NewGate(false)
	duck, err := NewDuck(DuckConfig{Peak: 1000, Channels: 1, State: state})
	require.NoError(t, err)
	ducked, err := NewDucked([]*Gate{state}, 1, 10)
	require.NoError(t, err)

	voiceOut := ring.New()
	tick(duck, samples(5000), voiceOut)

	musicOut := ring.New()
	tick(ducked, samples(1000, 1000), musicOut)
	assert.Equal(t, []int16{100, 100}, drain(musicOut))
}
