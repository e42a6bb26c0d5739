// Package topology assembles the fixed graphs the process can run from the
// configured cards and streams.
package topology

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/opd-ai/audiograph/clock"
	"github.com/opd-ai/audiograph/config"
	"github.com/opd-ai/audiograph/device"
	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/nodes"
	"github.com/opd-ai/audiograph/stream"
	"github.com/sirupsen/logrus"
)

// EngineRate is the sample rate every mix in a topology runs at.
const EngineRate = 48000

var (
	// ErrUnknownTopology is returned for a preset name that does not exist.
	ErrUnknownTopology = errors.New("unknown topology")
	// ErrMissingCard is returned when a preset needs a card role the
	// configuration does not define.
	ErrMissingCard = errors.New("missing card")
	// ErrMissingStream is returned when a preset needs a stream the
	// configuration does not define.
	ErrMissingStream = errors.New("missing stream")
)

// Env is what a preset is built from.
type Env struct {
	Options      *config.Options
	Factory      *device.Factory
	Streams      map[string]*stream.Buffer
	TimeProvider clock.TimeProvider
}

// Topology is a built graph together with the shared state it exposes to
// the control surface.
type Topology struct {
	Name  string
	Graph *graph.Graph

	// Chrome gates the chrome stream into the chat mix. Nil unless the
	// preset has it.
	Chrome *nodes.Gate
	// Toslink selects the optical output source: 0 off, 1 PS4, 2 PC. Nil
	// unless the preset has it.
	Toslink *nodes.Switch
	// Levels are the meter readings by name.
	Levels map[string]*nodes.Level

	// Closers release the device sessions of the graph.
	Closers []io.Closer
}

var presets = map[string]func(*builder){
	"passthrough": buildPassthrough,
	"stream":      buildStream,
	"house":       buildHouse,
}

// Names returns the preset names in sorted order.
func Names() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build assembles the named preset.
func Build(name string, env Env) (*Topology, error) {
	build, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownTopology, name, Names())
	}
	b := &builder{
		env: env,
		tp:  clock.OrDefault(env.TimeProvider),
		top: &Topology{
			Name:   name,
			Graph:  graph.New(),
			Levels: make(map[string]*nodes.Level),
		},
	}
	build(b)
	if b.err != nil {
		closeAll(name, b.top.Closers)
		return nil, fmt.Errorf("topology %s: %w", name, b.err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "topology.Build",
		"topology": name,
		"nodes":    b.top.Graph.Len(),
		"devices":  len(b.top.Closers),
	}).Info("Built topology")
	return b.top, nil
}

// closeAll releases the devices of a topology that failed to build, last
// opened first, and returns the joined close errors.
func closeAll(name string, closers []io.Closer) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "topology.closeAll",
				"topology": name,
				"error":    err.Error(),
			}).Warn("Failed to close device of unbuilt topology")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// builder wires nodes bottom-up and keeps the first error. Once an error is
// recorded every further call is a no-op.
type builder struct {
	env Env
	tp  clock.TimeProvider
	top *Topology
	err error
}

func (b *builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *builder) connect(n graph.Node, to ...int) int {
	if b.err != nil {
		return -1
	}
	id, err := b.top.Graph.Connect(n, to...)
	if err != nil {
		b.fail(err)
		return -1
	}
	return id
}

// add connects the result of a node constructor.
func add[N graph.Node](b *builder, n N, err error, to ...int) int {
	if err != nil {
		b.fail(err)
		return -1
	}
	return b.connect(n, to...)
}

func (b *builder) card(role string) (device.Card, bool) {
	if b.err != nil {
		return device.Card{}, false
	}
	c, ok := b.env.Options.Cards[role]
	if !ok {
		b.fail(fmt.Errorf("%w: %s", ErrMissingCard, role))
	}
	return c, ok
}

// playback connects the card's sink and, when the card does not run at
// EngineRate, a converter in front of it. It returns the id to feed.
func (b *builder) playback(role string) int {
	card, ok := b.card(role)
	if !ok {
		return -1
	}
	if card.Hw.Channels != 2 {
		b.fail(fmt.Errorf("%s: %w: playback needs 2 channels, got %d", role, device.ErrInvalidParams, card.Hw.Channels))
		return -1
	}
	sink, err := b.env.Factory.Playback(card)
	if err != nil {
		b.fail(fmt.Errorf("%s: %w", role, err))
		return -1
	}
	b.top.Closers = append(b.top.Closers, sink)
	id := b.connect(sink)
	if card.Hw.Rate != EngineRate {
		r, err := nodes.NewRate(nodes.RateConfig{InputRate: EngineRate, OutputRate: card.Hw.Rate})
		id = add(b, r, err, id)
	}
	return id
}

// capture connects the card's source feeding to. Mono sources are upmixed
// before being converted to EngineRate.
func (b *builder) capture(role string, to ...int) {
	card, ok := b.card(role)
	if !ok {
		return
	}
	if card.Hw.Channels != 1 && card.Hw.Channels != 2 {
		b.fail(fmt.Errorf("%s: %w: capture needs 1 or 2 channels, got %d", role, device.ErrInvalidParams, card.Hw.Channels))
		return
	}
	if card.Hw.Rate != EngineRate {
		r, err := nodes.NewRate(nodes.RateConfig{InputRate: card.Hw.Rate, OutputRate: EngineRate})
		to = []int{add(b, r, err, to...)}
	}
	if card.Hw.Channels == 1 {
		to = []int{b.connect(nodes.NewMonoToStereo(), to...)}
	}
	if b.err != nil {
		return
	}
	src, err := b.env.Factory.Capture(card)
	if err != nil {
		b.fail(fmt.Errorf("%s: %w", role, err))
		return
	}
	b.top.Closers = append(b.top.Closers, src)
	b.connect(src, to...)
}

func (b *builder) stream(name string, to ...int) {
	if b.err != nil {
		return
	}
	s, ok := b.env.Streams[name]
	if !ok {
		b.fail(fmt.Errorf("%w: %s", ErrMissingStream, name))
		return
	}
	b.connect(s, to...)
}

func (b *builder) meter(name string, to ...int) int {
	level := nodes.NewLevel()
	b.top.Levels[name] = level
	return b.connect(nodes.NewMeter(level, b.tp), to...)
}

// buildPassthrough plays the default capture device on the default
// playback device.
func buildPassthrough(b *builder) {
	out := b.playback("default_out")
	b.capture("default_in", out)
}

// buildStream plays the music stream on the default playback device,
// fading it in after silences.
func buildStream(b *builder) {
	out := b.playback("default_out")
	meter := b.meter("music", out)
	fade := b.connect(nodes.NewFadeIn(b.tp), meter)
	b.stream("music", fade)
}

// buildHouse is the living room: two consoles share an optical output and
// a chat headset transmitter, a USB microphone and the chat devices duck
// the music and chrome streams, and the chrome stream can be routed into
// the chats.
func buildHouse(b *builder) {
	opts := b.env.Options

	// Optical output, switched between the two consoles.
	b.top.Toslink = nodes.NewSwitch()
	toslink := b.playback("toslink_out")
	ps4, err := nodes.NewSwitched(b.top.Toslink, 1)
	ps4ID := add(b, ps4, err, toslink)
	b.capture("ps4_toslink_in", ps4ID)
	pc, err := nodes.NewSwitched(b.top.Toslink, 2)
	pcID := add(b, pc, err, toslink)
	b.capture("pc_toslink_in", pcID)

	// Chat outputs of both consoles.
	chatMix := b.connect(graph.NewBaseMix(), b.playback("ps4_chat_out"), b.playback("pc_chat_out"))

	// Headset transmitter and office speaker, both metered.
	lean, err := nodes.NewLean(opts.LeanSamples)
	leanID := add(b, lean, err, b.playback("transmitter_out"))
	headset := b.meter("transmitter", leanID, b.playback("office_out"))

	// Console chat ducks the content.
	deviceDucking := nodes.NewGate(false)
	deviceDuck, err := nodes.NewDuck(nodes.DuckConfig{Peak: opts.Duck.DevicePeak, State: deviceDucking})
	deviceDuckID := add(b, deviceDuck, err, headset)
	b.capture("ps4_chat_in", deviceDuckID)
	b.capture("pc_chat_in", deviceDuckID)

	// Microphones go to the headset and both chats and duck the content.
	micDucking := nodes.NewGate(false)
	micDuck, err := nodes.NewDuck(nodes.DuckConfig{Peak: opts.Duck.MicPeak, State: micDucking})
	micDuckID := add(b, micDuck, err, headset, chatMix)
	b.capture("stream_mic_in", micDuckID)
	b.capture("transmitter_in", micDuckID)

	// Content: music to the headset, chrome to the headset and, when the
	// gate is open, to the chats.
	content, err := nodes.NewDucked([]*nodes.Gate{micDucking, deviceDucking}, opts.Duck.ContentNum, opts.Duck.ContentDenom)
	contentID := add(b, content, err, headset)
	b.stream("music", contentID)

	b.top.Chrome = nodes.NewGate(false)
	chrome, err := nodes.NewGated(b.top.Chrome)
	chromeID := add(b, chrome, err, chatMix)
	b.stream("chrome", contentID, chromeID)
}
