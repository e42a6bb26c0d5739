package ring

import "iter"

// Slice is a borrowed window into a Buffer's storage. Because the window may
// straddle the wrap boundary it is made of up to two contiguous runs. A Slice
// owns nothing and must not be used after the Buffer it came from has been
// written to again.
type Slice struct {
	a []int16
	b []int16
}

// Len returns the number of samples in the window.
func (s Slice) Len() int { return len(s.a) + len(s.b) }

// Runs returns the two contiguous runs making up the window, in order. The
// second run is empty unless the window wraps.
func (s Slice) Runs() ([]int16, []int16) { return s.a, s.b }

// At returns the i-th sample of the window.
func (s Slice) At(i int) int16 {
	if i < len(s.a) {
		return s.a[i]
	}
	return s.b[i-len(s.a)]
}

// Set stores v as the i-th sample of the window.
func (s Slice) Set(i int, v int16) {
	if i < len(s.a) {
		s.a[i] = v
		return
	}
	s.b[i-len(s.a)] = v
}

// Head returns the first min(n, Len()) samples of the window.
func (s Slice) Head(n int) Slice {
	n = clamp(n, s.Len())
	if n <= len(s.a) {
		return Slice{a: s.a[:n]}
	}
	return Slice{a: s.a, b: s.b[:n-len(s.a)]}
}

// All iterates over the window yielding each index and sample.
func (s Slice) All() iter.Seq2[int, int16] {
	return func(yield func(int, int16) bool) {
		for i, v := range s.a {
			if !yield(i, v) {
				return
			}
		}
		for i, v := range s.b {
			if !yield(len(s.a)+i, v) {
				return
			}
		}
	}
}

// CopyTo copies the window into dst and returns the number of samples copied.
func (s Slice) CopyTo(dst []int16) int {
	n := copy(dst, s.a)
	return n + copy(dst[n:], s.b)
}

// CopyFrom fills the window from src and returns the number of samples copied.
func (s Slice) CopyFrom(src []int16) int {
	n := copy(s.a, src)
	return n + copy(s.b, src[n:])
}

// CopyFromSlice fills the window from another window and returns the number of
// samples copied.
func (s Slice) CopyFromSlice(src Slice) int {
	n := s.CopyFrom(src.a)
	if n < len(src.a) {
		return n
	}
	rest := s.afterFirst(n)
	return n + rest.CopyFrom(src.b)
}

// Fill sets every sample in the window to v.
func (s Slice) Fill(v int16) {
	for i := range s.a {
		s.a[i] = v
	}
	for i := range s.b {
		s.b[i] = v
	}
}

// afterFirst returns the window with its first n samples removed.
func (s Slice) afterFirst(n int) Slice {
	if n <= len(s.a) {
		return Slice{a: s.a[n:], b: s.b}
	}
	return Slice{a: s.b[n-len(s.a):]}
}
