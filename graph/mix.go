package graph

import (
	"math"

	"github.com/opd-ai/audiograph/ring"
)

// BaseMix sums the active subset of its inputs.
//
// The mix advances by the length of the shortest active input, so a faster
// source accumulates backlog in its own buffer instead of being truncated.
// Inactive inputs are neither read nor drained.
//
// By default samples are added with int16 wraparound, which distorts loudly
// on overflow but matches the behaviour existing topologies were tuned
// against. NewSaturatingMix clamps every addition instead.
type BaseMix struct {
	accum    []int16
	n        int
	saturate bool
}

// NewBaseMix creates a mixer with wraparound addition.
func NewBaseMix() *BaseMix {
	return &BaseMix{}
}

// NewSaturatingMix creates a mixer whose additions clamp to the int16 range.
func NewSaturatingMix() *BaseMix {
	return &BaseMix{saturate: true}
}

// Accum returns the samples produced by the most recent mix. The returned
// slice is reused by the next mix.
func (m *BaseMix) Accum() []int16 { return m.accum[:m.n] }

// MixInputs mixes the active inputs into the internal accumulator and
// returns the number of samples mixed and whether any input was active.
func (m *BaseMix) MixInputs(inputs []*ring.Buffer) (int, bool) {
	n, active := mixLength(inputs)
	m.n = n
	if !active {
		return 0, false
	}
	if cap(m.accum) < n {
		m.accum = make([]int16, n)
	}
	m.accum = m.accum[:n]
	clear(m.accum)

	for _, in := range inputs {
		if !in.Active {
			continue
		}
		a, b := in.ReadSlice(n).Runs()
		m.add(m.accum, a)
		m.add(m.accum[len(a):], b)
	}
	return n, true
}

// MixInto mixes the active inputs and appends the result to dst. dst.Active
// reports whether any input was active.
func (m *BaseMix) MixInto(inputs []*ring.Buffer, dst *ring.Buffer) int {
	n, active := m.MixInputs(inputs)
	dst.Active = active
	return dst.WriteFrom(n, m.accum)
}

// Update mixes the inputs and writes the result to every output.
func (m *BaseMix) Update(inputs, outputs []*ring.Buffer) {
	n, active := m.MixInputs(inputs)
	for _, out := range outputs {
		out.Active = active
	}
	CopyOut(n, m.accum, outputs)
}

func (m *BaseMix) add(dst, src []int16) {
	if !m.saturate {
		for i, v := range src {
			dst[i] += v
		}
		return
	}
	for i, v := range src {
		sum := int32(dst[i]) + int32(v)
		switch {
		case sum > math.MaxInt16:
			sum = math.MaxInt16
		case sum < math.MinInt16:
			sum = math.MinInt16
		}
		dst[i] = int16(sum)
	}
}

// mixLength returns the shortest length among active inputs and whether any
// input is active.
func mixLength(inputs []*ring.Buffer) (int, bool) {
	n := 0
	active := false
	for _, in := range inputs {
		if !in.Active {
			continue
		}
		if !active || in.Len() < n {
			n = in.Len()
		}
		active = true
	}
	return n, active
}
