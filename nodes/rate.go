package nodes

import (
	"fmt"

	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/limits"
	"github.com/opd-ai/audiograph/ring"
	"github.com/sirupsen/logrus"
)

// RateConfig configures a Rate converter.
type RateConfig struct {
	InputRate  int // Input sample rate in Hz
	OutputRate int // Output sample rate in Hz
	Channels   int // Interleaved channels (default: 2)
}

// Rate converts between two fixed sample rates by nearest-sample picking.
//
// Every tick the converter advances a pair of integer accumulators one
// millisecond at a time, input frames against output frames, carrying the
// sub-frame remainder of each rate so that no drift builds up. It stops
// before it would need more input than is buffered or emit more output than
// fits, consumes exactly the accumulated input frames and emits the
// accumulated output frames. Output frame i copies input frame i*in/out (floor), so the result is audibly
// imperfect but cheap and deterministic.
type Rate struct {
	adapter graph.Adapter

	channels int

	inStep, inRem, inStepMax int
	inCarry                  int

	outStep, outRem int
	outCarry        int
}

// NewRate creates a converter from cfg.
func NewRate(cfg RateConfig) (*Rate, error) {
	if cfg.Channels == 0 {
		cfg.Channels = 2
	}
	if err := limits.ValidateRate(cfg.InputRate); err != nil {
		return nil, fmt.Errorf("rate input: %w", err)
	}
	if err := limits.ValidateRate(cfg.OutputRate); err != nil {
		return nil, fmt.Errorf("rate output: %w", err)
	}
	if err := limits.ValidateChannels(cfg.Channels); err != nil {
		return nil, fmt.Errorf("rate: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "NewRate",
		"input_rate":  cfg.InputRate,
		"output_rate": cfg.OutputRate,
		"channels":    cfg.Channels,
	}).Debug("Creating rate converter")

	r := &Rate{
		channels: cfg.Channels,
		inStep:   cfg.InputRate / 1000,
		inRem:    cfg.InputRate % 1000,
		outStep:  cfg.OutputRate / 1000,
		outRem:   cfg.OutputRate % 1000,
	}
	r.inStepMax = r.inStep
	if r.inRem != 0 {
		r.inStepMax++
	}
	return r, nil
}

// MustRate is like NewRate but panics on error.
func MustRate(input, output int) *Rate {
	r, err := NewRate(RateConfig{InputRate: input, OutputRate: output})
	if err != nil {
		panic(err)
	}
	return r
}

// Update implements graph.Node.
func (r *Rate) Update(inputs, outputs []*ring.Buffer) {
	r.adapter.Run(r, inputs, outputs)
}

// Transform implements graph.Transformer.
func (r *Rate) Transform(in, out *ring.Buffer) {
	avail := in.Len() / r.channels
	space := out.Free() / r.channels

	num, denom := 0, 0
	for num+r.inStepMax <= avail {
		inCarry := r.inCarry + r.inRem
		outCarry := r.outCarry + r.outRem
		stepOut := r.outStep + outCarry/1000
		if denom+stepOut > space {
			break
		}
		num += r.inStep + inCarry/1000
		r.inCarry = inCarry % 1000
		denom += stepOut
		r.outCarry = outCarry % 1000
	}
	if num == 0 || denom == 0 {
		return
	}

	ch := r.channels
	src := in.ReadSlice(num * ch)
	dst := out.WriteSlice(denom * ch)
	for i := 0; i < dst.Len(); i++ {
		frame := i / ch
		dst.Set(i, src.At(frame*num/denom*ch+i%ch))
	}
}
