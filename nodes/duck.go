package nodes

import (
	"fmt"

	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/limits"
	"github.com/opd-ai/audiograph/ring"
	"github.com/sirupsen/logrus"
)

// DuckConfig configures a Duck.
type DuckConfig struct {
	Peak       int16 // Magnitude a sample must exceed to trigger
	Channels   int   // Interleaved channels of the input (default: 2)
	HoldFrames int   // Frames without a peak before returning to quiet (default: limits.DuckHoldFrames)
	State      *Gate // Shared flag raised while the duck is active
}

// Duck passes its input through only while someone is talking into it.
//
// Any sample whose magnitude exceeds Peak makes the duck active and raises
// the shared State so that Ducked nodes elsewhere attenuate their content.
// Once HoldFrames frames have passed without another peak the duck returns to
// quiet, lowers State and outputs silence of the same length as its input.
type Duck struct {
	adapter graph.Adapter

	peak     int32
	channels int
	hold     int
	state    *Gate

	active bool
	frames int
}

// NewDuck creates a duck from cfg.
func NewDuck(cfg DuckConfig) (*Duck, error) {
	if cfg.State == nil {
		return nil, fmt.Errorf("duck: %w", ErrNilState)
	}
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	if err := limits.ValidateChannels(cfg.Channels); err != nil {
		return nil, fmt.Errorf("duck: %w", err)
	}
	if cfg.HoldFrames == 0 {
		cfg.HoldFrames = limits.DuckHoldFrames
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewDuck",
		"peak":        cfg.Peak,
		"channels":    cfg.Channels,
		"hold_frames": cfg.HoldFrames,
	}).Debug("Creating duck")

	return &Duck{
		peak:     int32(cfg.Peak),
		channels: cfg.Channels,
		hold:     cfg.HoldFrames,
		state:    cfg.State,
	}, nil
}

// Active reports whether the duck is currently passing audio.
func (d *Duck) Active() bool { return d.active }

// Update implements graph.Node.
func (d *Duck) Update(inputs, outputs []*ring.Buffer) {
	d.adapter.Run(d, inputs, outputs)
}

// Transform implements graph.Transformer.
func (d *Duck) Transform(in, out *ring.Buffer) {
	n := in.Len()
	s := in.ReadSlice(n)
	d.frames += n / d.channels

	a, b := s.Runs()
	if d.scan(a) || d.scan(b) {
		d.active = true
		d.frames = 0
	}

	if !d.active {
		out.WriteSilence(n)
	} else {
		out.WriteFromReadSlice(n, s)
		if d.frames > d.hold {
			d.active = false
		}
	}

	// The shared flag is rewritten every tick so that a contended tick is
	// corrected on the next one.
	d.state.TrySet(d.active)
}

func (d *Duck) scan(run []int16) bool {
	for _, v := range run {
		m := int32(v)
		if m < 0 {
			m = -m
		}
		if m > d.peak {
			return true
		}
	}
	return false
}

// Ducked attenuates its input by num/denom whenever any of its shared states
// is raised and passes it through unchanged otherwise. An inactive input is
// left untouched.
type Ducked struct {
	adapter graph.Adapter

	states []*Gate
	last   []bool
	num    int32
	denom  int32
}

// NewDucked creates a ducked node scaling by num/denom while any state is
// raised.
func NewDucked(states []*Gate, num, denom int32) (*Ducked, error) {
	for _, s := range states {
		if s == nil {
			return nil, fmt.Errorf("ducked: %w", ErrNilState)
		}
	}
	if denom <= 0 {
		return nil, fmt.Errorf("ducked: %w: %d/%d", ErrInvalidRatio, num, denom)
	}
	return &Ducked{
		states: append([]*Gate(nil), states...),
		last:   make([]bool, len(states)),
		num:    num,
		denom:  denom,
	}, nil
}

// Update implements graph.Node.
func (d *Ducked) Update(inputs, outputs []*ring.Buffer) {
	d.adapter.Run(d, inputs, outputs)
}

// Transform implements graph.Transformer.
func (d *Ducked) Transform(in, out *ring.Buffer) {
	if !in.Active {
		return
	}
	n := in.Len()
	if !d.ducking() {
		out.WriteFromRing(n, in)
		return
	}
	scale(in.ReadSlice(n), out.WriteSlice(n), d.num, d.denom)
}

// ducking reads every state without blocking. A contended state keeps the
// value observed on the previous tick.
func (d *Ducked) ducking() bool {
	raised := false
	for i, s := range d.states {
		if v, ok := s.TryGet(); ok {
			d.last[i] = v
		}
		if d.last[i] {
			raised = true
		}
	}
	return raised
}

// scale writes src*num/denom into dst using 32-bit intermediates.
func scale(src, dst ring.Slice, num, denom int32) {
	n := min(src.Len(), dst.Len())
	for i := 0; i < n; i++ {
		dst.Set(i, int16(int32(src.At(i))*num/denom))
	}
}
