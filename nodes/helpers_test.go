package nodes

import "github.com/opd-ai/audiograph/ring"

func samples(values ...int16) *ring.Buffer {
	return ring.FromSamples(values)
}

func constant(n int, v int16) *ring.Buffer {
	b := ring.New()
	s := b.WriteSlice(n)
	s.Fill(v)
	return b
}

func drain(b *ring.Buffer) []int16 {
	out := make([]int16, b.Len())
	b.Read(out)
	return out
}

func tick(n interface {
	Update(inputs, outputs []*ring.Buffer)
}, in, out *ring.Buffer) {
	n.Update([]*ring.Buffer{in}, []*ring.Buffer{out})
}
