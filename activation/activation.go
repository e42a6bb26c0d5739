// Package activation provides the engine-wide single permit that serializes
// bringing hardware devices online.
//
// Opening a device is a multi-step handshake (probe, open, configure). Only
// one such handshake may be in progress at a time, so every participant asks
// the Controller for a Guard before starting and releases it when done. All
// calls from the graph goroutine are non-blocking: failing to obtain the
// permit simply means trying again on the next tick.
package activation

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// State is the result of a non-blocking probe of a Controller.
type State int

const (
	// Unavailable means the probe could not observe the permit because its
	// lock was momentarily held.
	Unavailable State = iota
	// Running means no activation is in progress.
	Running
	// Activating means some participant holds the permit.
	Activating
)

// Available reports whether the probe observed the permit at all.
func (s State) Available() bool { return s != Unavailable }

// Running reports whether no activation was in progress.
func (s State) Running() bool { return s == Running }

// Activating reports whether an activation was in progress.
func (s State) Activating() bool { return s == Activating }

// String returns a human readable name of the state.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Activating:
		return "activating"
	default:
		return "unavailable"
	}
}

// Controller holds the activation permit. The zero value is ready to use and
// a Controller must not be copied after first use; share it by pointer.
type Controller struct {
	mu   sync.Mutex
	held bool
}

// NewController creates a controller with the permit free.
func NewController() *Controller {
	return &Controller{}
}

// Activate tries to take the permit without blocking. It returns nil when
// the permit is already held or its lock is contended.
func (c *Controller) Activate() *Guard {
	if !c.mu.TryLock() {
		return nil
	}
	defer c.mu.Unlock()
	if c.held {
		return nil
	}
	c.held = true

	logrus.WithFields(logrus.Fields{
		"function": "Activate",
	}).Debug("Activation permit acquired")

	return &Guard{c: c}
}

// State probes the permit without blocking.
func (c *Controller) State() State {
	if !c.mu.TryLock() {
		return Unavailable
	}
	defer c.mu.Unlock()
	if c.held {
		return Activating
	}
	return Running
}

func (c *Controller) release() {
	c.mu.Lock()
	c.held = false
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Release",
	}).Debug("Activation permit released")
}

// Guard represents ownership of the permit.
type Guard struct {
	c    *Controller
	once sync.Once
}

// Release returns the permit. It is safe to call more than once and on a
// nil Guard. Release takes the controller lock blockingly; the lock is only
// ever held for a few instructions.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(g.c.release)
}
