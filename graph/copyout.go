package graph

import "github.com/opd-ai/audiograph/ring"

// CopyOut appends the first amount samples of samples to every output.
func CopyOut(amount int, samples []int16, outputs []*ring.Buffer) {
	for _, out := range outputs {
		out.WriteFrom(amount, samples)
	}
}

// CopyOutRing consumes up to amount samples from src and appends them to
// every output, propagating src.Active. The samples are consumed even when
// there are no outputs.
func CopyOutRing(amount int, src *ring.Buffer, outputs []*ring.Buffer) {
	active := src.Active
	s := src.ReadSlice(amount)
	for _, out := range outputs {
		out.Active = active
		out.WriteFromReadSlice(amount, s)
	}
}
