package nodes

import "sync"

// Gate is a shared boolean cell. Signal nodes read it from the graph
// goroutine with TryGet and never block; control surfaces use the blocking
// accessors. The last writer wins.
type Gate struct {
	mu   sync.Mutex
	open bool
}

// NewGate creates a gate with the given initial value.
func NewGate(open bool) *Gate {
	return &Gate{open: open}
}

// Get returns the current value.
func (g *Gate) Get() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.open
}

// Set stores v.
func (g *Gate) Set(v bool) {
	g.mu.Lock()
	g.open = v
	g.mu.Unlock()
}

// Toggle inverts the value and returns the new one.
func (g *Gate) Toggle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.open = !g.open
	return g.open
}

// TryGet returns the value without blocking. ok is false when the cell is
// momentarily locked by another goroutine.
func (g *Gate) TryGet() (v, ok bool) {
	if !g.mu.TryLock() {
		return false, false
	}
	v = g.open
	g.mu.Unlock()
	return v, true
}

// TrySet stores v without blocking and reports whether it succeeded.
func (g *Gate) TrySet(v bool) bool {
	if !g.mu.TryLock() {
		return false
	}
	g.open = v
	g.mu.Unlock()
	return true
}

// DefaultSwitchPosition is the initial value of a Switch.
const DefaultSwitchPosition = 1

// Switch is a shared small-integer selector used to route exactly one of
// several sources. Like Gate it offers non-blocking reads for the graph
// goroutine.
type Switch struct {
	mu  sync.Mutex
	pos int
}

// NewSwitch creates a switch at DefaultSwitchPosition.
func NewSwitch() *Switch {
	return &Switch{pos: DefaultSwitchPosition}
}

// Get returns the current position.
func (s *Switch) Get() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Set moves the switch to pos.
func (s *Switch) Set(pos int) {
	s.mu.Lock()
	s.pos = pos
	s.mu.Unlock()
}

// Cycle advances the switch through 0, 1, ..., positions-1 and back to 0,
// returning the new position. Out-of-range positions reset to 0.
func (s *Switch) Cycle(positions int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if positions <= 0 || s.pos < 0 || s.pos >= positions-1 {
		s.pos = 0
	} else {
		s.pos++
	}
	return s.pos
}

// TryGet returns the position without blocking. ok is false when the cell is
// momentarily locked by another goroutine.
func (s *Switch) TryGet() (pos int, ok bool) {
	if !s.mu.TryLock() {
		return 0, false
	}
	pos = s.pos
	s.mu.Unlock()
	return pos, true
}
