package device

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opd-ai/audiograph/activation"
	"github.com/opd-ai/audiograph/clock"
	"github.com/opd-ai/audiograph/limits"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle position of a device node, published for the
// control surface.
type State int32

const (
	// StateSearching means no stream is open and the card is looked up
	// every tick.
	StateSearching State = iota
	// StateCooldown means the stream failed or went away and reopening waits
	// for the cooldown to elapse.
	StateCooldown
	// StateActivating means the stream is open and holds the activation
	// permit until the device reports it is running.
	StateActivating
	// StateRunning means audio is flowing.
	StateRunning
	// StatePaused means the stream is paused while another device activates.
	StatePaused
)

var stateNames = [...]string{"searching", "cooldown", "activating", "running", "paused"}

// String returns the lowercase name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DeviceStatus is a snapshot of one device node.
type DeviceStatus struct {
	Name      string `json:"name"`
	Direction string `json:"direction"`
	State     State  `json:"state"`
}

// Factory creates device nodes sharing one card list, one backend and one
// activation controller.
type Factory struct {
	opener   Opener
	cards    *CardList
	ctrl     *activation.Controller
	tp       clock.TimeProvider
	cooldown time.Duration

	mu       sync.Mutex
	sessions []*session
}

// NewFactory creates a factory. A nil tp uses the wall clock.
func NewFactory(opener Opener, cards *CardList, ctrl *activation.Controller, tp clock.TimeProvider) *Factory {
	return &Factory{
		opener:   opener,
		cards:    cards,
		ctrl:     ctrl,
		tp:       clock.OrDefault(tp),
		cooldown: limits.DeviceCooldown,
	}
}

// SetCooldown changes the back-off applied after a failure. It only affects
// nodes created afterwards.
func (f *Factory) SetCooldown(d time.Duration) {
	if d > 0 {
		f.cooldown = d
	}
}

// Playback creates a sink node writing to card.
func (f *Factory) Playback(card Card) (*Sink, error) {
	s, err := f.newSession(card, Playback)
	if err != nil {
		return nil, err
	}
	return newSink(s), nil
}

// Capture creates a source node reading from card.
func (f *Factory) Capture(card Card) (*Source, error) {
	s, err := f.newSession(card, Capture)
	if err != nil {
		return nil, err
	}
	return newSource(s), nil
}

// Devices returns the state of every node created by the factory.
func (f *Factory) Devices() []DeviceStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]DeviceStatus, 0, len(f.sessions))
	for _, s := range f.sessions {
		out = append(out, DeviceStatus{
			Name:      s.card.DebugName,
			Direction: s.dir.String(),
			State:     State(s.state.Load()),
		})
	}
	return out
}

func (f *Factory) newSession(card Card, dir Direction) (*session, error) {
	if err := card.Hw.Validate(); err != nil {
		return nil, fmt.Errorf("%s %s: %w", card.DebugName, dir, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "Factory.newSession",
		"card":      card.DebugName,
		"direction": dir.String(),
		"hint":      card.Hint.Kind.String(),
		"channels":  card.Hw.Channels,
		"rate":      card.Hw.Rate,
		"latency":   card.Hw.Latency(),
	}).Info("Creating device node")

	s := &session{
		f:    f,
		card: card,
		dir:  dir,
		log: logrus.WithFields(logrus.Fields{
			"card":      card.DebugName,
			"direction": dir.String(),
		}),
	}
	f.mu.Lock()
	f.sessions = append(f.sessions, s)
	f.mu.Unlock()
	return s, nil
}

// session is the connection logic shared by sinks and sources. It is owned
// by the graph goroutine except for state, which is published atomically.
type session struct {
	f    *Factory
	card Card
	dir  Direction
	log  *logrus.Entry

	guard  *activation.Guard
	stream Stream
	paused bool

	cooling       bool
	cooldownStart time.Time

	state atomic.Int32
}

func (s *session) setState(st State) { s.state.Store(int32(st)) }

// connect advances the search/activate/open handshake by one step and
// reports whether a stream was opened during this call.
func (s *session) connect() bool {
	if s.cooling {
		if s.f.tp.Since(s.cooldownStart) <= s.f.cooldown {
			return false
		}
		s.cooling = false
		s.setState(StateSearching)
	}

	info, found, ok := s.f.cards.Find(s.card)
	if !ok {
		return false
	}
	if !found {
		s.guard.Release()
		s.guard = nil
		s.startCooldown()
		return false
	}

	if s.guard == nil {
		s.guard = s.f.ctrl.Activate()
		if s.guard != nil {
			s.setState(StateActivating)
			s.log.WithFields(logrus.Fields{
				"function": "session.connect",
				"index":    info.Index,
			}).Info("Activating device")
		}
		return false
	}

	stream, err := s.f.opener.Open(info, s.card, s.dir)
	s.guard.Release()
	s.guard = nil
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"function": "session.connect",
			"error":    err.Error(),
		}).Warn("Failed to activate device")
		s.startCooldown()
		return false
	}

	s.stream = stream
	s.paused = false
	s.setState(StateRunning)
	s.log.WithFields(logrus.Fields{
		"function":  "session.connect",
		"long_name": info.LongName,
	}).Info("Activated device")
	return true
}

// poll inspects the stream status, recovers from overruns and follows the
// activation controller's pause requests. It reports whether audio may be
// transferred this tick.
func (s *session) poll() bool {
	status, err := s.stream.Status()
	if err != nil {
		s.disconnect("status check failed", err)
		return false
	}

	switch status {
	case StatusDisconnected:
		s.disconnect("disconnected", nil)
		return false
	case StatusOverrun:
		if err := s.stream.Prepare(); err != nil {
			s.log.WithFields(logrus.Fields{
				"function": "session.poll",
				"error":    err.Error(),
			}).Debug("Failed to recover from overrun")
		}
		if after, err := s.stream.Status(); err != nil || after != StatusPrepared {
			s.disconnect("overrun", err)
			return false
		}
		return !s.paused
	}

	act := s.f.ctrl.State()
	if act.Available() {
		switch {
		case act.Activating() && !s.paused:
			if err := s.stream.Pause(true); err != nil {
				s.log.WithField("error", err.Error()).Debug("Pause failed")
			}
			s.paused = true
			s.setState(StatePaused)
			s.log.WithField("function", "session.poll").Info("Paused device")
		case act.Running() && s.paused:
			if err := s.stream.Pause(false); err != nil {
				s.log.WithField("error", err.Error()).Debug("Resume failed")
			}
			s.paused = false
			s.setState(StateRunning)
			s.log.WithField("function", "session.poll").Info("Resumed device")
			return false
		}
	}

	if s.dir == Capture && status == StatusPrepared && !s.paused {
		if err := s.stream.Start(); err != nil {
			s.log.WithField("error", err.Error()).Debug("Start failed")
		}
	}
	return !s.paused
}

func (s *session) disconnect(reason string, err error) {
	fields := logrus.Fields{
		"function": "session.disconnect",
		"reason":   reason,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	s.log.WithFields(fields).Warn("Lost device")

	if cerr := s.stream.Close(); cerr != nil {
		s.log.WithField("error", cerr.Error()).Debug("Close failed")
	}
	s.stream = nil
	s.paused = false
	s.startCooldown()
}

func (s *session) startCooldown() {
	s.cooling = true
	s.cooldownStart = s.f.tp.Now()
	s.setState(StateCooldown)
}

func (s *session) close() error {
	s.guard.Release()
	s.guard = nil
	if s.stream == nil {
		return nil
	}
	err := s.stream.Close()
	s.stream = nil
	s.setState(StateSearching)
	if err != nil {
		return fmt.Errorf("close %s %s: %w", s.card.DebugName, s.dir, err)
	}
	return nil
}
