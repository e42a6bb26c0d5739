package nodes

import (
	"time"

	"github.com/opd-ai/audiograph/clock"
	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/limits"
	"github.com/opd-ai/audiograph/ring"
)

// FadeIn ramps its input up from silence whenever audio starts after a
// pause. The ramp gains 8/48000 of full scale every 4 samples; a pause
// longer than limits.FadeInSilence restarts the ramp from zero.
type FadeIn struct {
	adapter graph.Adapter
	tp      clock.TimeProvider

	playing bool
	volume  int32
	sample  int
	last    time.Time
}

// NewFadeIn creates a fade-in node. A nil tp uses the wall clock.
func NewFadeIn(tp clock.TimeProvider) *FadeIn {
	return &FadeIn{tp: clock.OrDefault(tp)}
}

// Playing reports whether the node is inside or past a ramp.
func (f *FadeIn) Playing() bool { return f.playing }

// Update implements graph.Node.
func (f *FadeIn) Update(inputs, outputs []*ring.Buffer) {
	f.adapter.Run(f, inputs, outputs)
}

// Transform implements graph.Transformer.
func (f *FadeIn) Transform(in, out *ring.Buffer) {
	n := in.Len()
	if n == 0 {
		if f.playing && f.tp.Since(f.last) > limits.FadeInSilence {
			f.playing = false
			f.volume = 0
		}
		return
	}

	f.last = f.tp.Now()
	if !f.playing {
		f.playing = true
		f.volume = 0
		f.sample = 0
	}

	src := in.ReadSlice(n)
	dst := out.WriteSlice(n)
	for i := 0; i < dst.Len(); i++ {
		dst.Set(i, int16(int32(src.At(i))*f.volume/limits.FadeInSteps))
		if f.sample%4 == 0 {
			f.volume = min(f.volume+8, limits.FadeInSteps)
		}
		f.sample++
	}
}
