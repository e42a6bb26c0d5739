// Package config holds the process options: which backend and topology to
// run, where the streams listen, and the card descriptors the topology
// refers to by role.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/opd-ai/audiograph/device"
	"github.com/opd-ai/audiograph/limits"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrInvalidOptions is wrapped by every validation failure.
var ErrInvalidOptions = errors.New("invalid options")

// Backend names.
const (
	BackendPortAudio = "portaudio"
	BackendOto       = "oto"
)

// Stream encodings.
const (
	EncodingPCM  = "pcm"
	EncodingOpus = "opus"
)

// StreamOptions configures one network-fed stream.
type StreamOptions struct {
	// Listen is the TCP address senders connect to. Empty disables the
	// listener; the stream can still be fed over HTTP.
	Listen string `yaml:"listen"`
	// Encoding of TCP connections: pcm (default) or opus.
	Encoding string `yaml:"encoding"`
	// Channels of Opus packets. Decoded audio is always stereo.
	Channels int `yaml:"channels"`
	// File is an optional WAV file played into the stream at startup.
	File string `yaml:"file"`
}

// DuckOptions configures the ducking thresholds of the house topology.
type DuckOptions struct {
	DevicePeak   int16 `yaml:"device_peak"`
	MicPeak      int16 `yaml:"mic_peak"`
	ContentNum   int32 `yaml:"content_num"`
	ContentDenom int32 `yaml:"content_denom"`
}

// Options is the complete process configuration.
type Options struct {
	HTTPAddr     string                   `yaml:"http_addr"`
	Backend      string                   `yaml:"backend"`
	Topology     string                   `yaml:"topology"`
	Streams      map[string]StreamOptions `yaml:"streams"`
	Cards        map[string]device.Card   `yaml:"cards"`
	Duck         DuckOptions              `yaml:"duck"`
	LeanSamples  int                      `yaml:"lean_samples"`
	CardPoll     time.Duration            `yaml:"card_poll"`
	CooldownTime time.Duration            `yaml:"device_cooldown"`
}

// Default returns the options of the house installation.
func Default() *Options {
	return &Options{
		HTTPAddr: ":8080",
		Backend:  BackendPortAudio,
		Topology: "house",
		Streams: map[string]StreamOptions{
			"music":  {Listen: ":7777", Encoding: EncodingPCM},
			"chrome": {Listen: ":7778", Encoding: EncodingPCM},
		},
		Cards: defaultCards(),
		Duck: DuckOptions{
			DevicePeak:   1000,
			MicPeak:      5500,
			ContentNum:   1,
			ContentDenom: 5,
		},
		LeanSamples:  768,
		CardPoll:     limits.CardPollInterval,
		CooldownTime: limits.DeviceCooldown,
	}
}

func usbCard(name, longName string, hw device.HwParams, swMs int) device.Card {
	return device.Card{
		DebugName: name,
		Hint:      device.Hint{Kind: device.HintLongName, Value: longName},
		Hw:        hw,
		Sw:        device.SwParamsMs(swMs),
	}
}

func defaultCards() map[string]device.Card {
	const (
		ps4Toslink  = "USB Sound Device at usb-101c0000.ehci-1.2, full speed"
		pcToslink   = "USB Sound Device at usb-101c0000.ehci-1.1.2.1, full speed"
		ps4Chat     = "USB Sound Device at usb-101c0000.ehci-1.1.1, full speed"
		pcChat      = "USB Sound Device at usb-101c0000.ehci-1.1.4.3.1, full speed"
		transmitter = "Astro Gaming Inc. ASTRO Wireless Transmitter at usb-101c0000.ehci-1.1.4.1, full"
		office      = "C-Media Electronics Inc. USB Audio Device at usb-101c0000.ehci-1.1, full speed"
		streamMic   = "Turtle Beach Turtle Beach Stream Mic (Mic On at usb-101c0000.ehci-1.1.4.4.1, fu"
	)
	return map[string]device.Card{
		"toslink_out":     usbCard("toslink", ps4Toslink, device.HwParams32ms(), 16),
		"ps4_toslink_in":  usbCard("PS4 toslink", ps4Toslink, device.HwParams32ms(), 2),
		"pc_toslink_in":   usbCard("PC toslink", pcToslink, device.HwParams32ms(), 2),
		"ps4_chat_out":    usbCard("PS4 Chat", ps4Chat, device.HwParams44100Hz64ms(), 32),
		"pc_chat_out":     usbCard("PC Chat", pcChat, device.HwParams44100Hz64ms(), 32),
		"ps4_chat_in":     usbCard("PS4 Chat", ps4Chat, device.HwParams44100Hz32ms(), 16),
		"pc_chat_in":      usbCard("PC Chat", pcChat, device.HwParams32ms(), 16),
		"transmitter_out": usbCard("transmitter", transmitter, device.HwParams32ms(), 4),
		"transmitter_in":  usbCard("transmitter", transmitter, device.HwParamsMono32ms(), 2),
		"office_out":      usbCard("office", office, device.HwParams44100Hz32ms(), 4),
		"stream_mic_in":   usbCard("Stream Mic", streamMic, device.HwParams32ms(), 2),
		"default_out":     device.DefaultCard(),
		"default_in":      device.DefaultCard(),
	}
}

// Load reads a YAML file over the defaults and validates the result. Keys
// not known to Options are rejected. A card or stream entry in the file
// replaces the default entry of the same name as a whole.
func Load(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	opts, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "config.Load",
		"path":     path,
		"topology": opts.Topology,
		"backend":  opts.Backend,
		"cards":    len(opts.Cards),
		"streams":  len(opts.Streams),
	}).Info("Loaded configuration")
	return opts, nil
}

// Parse decodes YAML data over the defaults and validates the result.
func Parse(data []byte) (*Options, error) {
	opts := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(opts); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	for name, c := range opts.Cards {
		if c.DebugName == "" {
			c.DebugName = name
			opts.Cards[name] = c
		}
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks the options for values the engine cannot run with.
func (o *Options) Validate() error {
	if o.HTTPAddr == "" {
		return invalid("http_addr is empty")
	}
	switch o.Backend {
	case BackendPortAudio, BackendOto:
	default:
		return invalid("unknown backend %q", o.Backend)
	}
	if o.Topology == "" {
		return invalid("topology is empty")
	}
	if o.CardPoll <= 0 {
		return invalid("card_poll must be positive, got %s", o.CardPoll)
	}
	if o.CooldownTime <= 0 {
		return invalid("device_cooldown must be positive, got %s", o.CooldownTime)
	}
	if o.LeanSamples <= 0 {
		return invalid("lean_samples must be positive, got %d", o.LeanSamples)
	}
	if o.Duck.ContentDenom == 0 {
		return invalid("duck content_denom is zero")
	}

	listens := make(map[string]string)
	for name, s := range o.Streams {
		switch s.Encoding {
		case "", EncodingPCM:
		case EncodingOpus:
			if s.Channels != 0 && s.Channels != 1 && s.Channels != 2 {
				return invalid("stream %s: opus channels must be 1 or 2, got %d", name, s.Channels)
			}
		default:
			return invalid("stream %s: unknown encoding %q", name, s.Encoding)
		}
		if s.Listen == "" {
			continue
		}
		if other, dup := listens[s.Listen]; dup {
			return invalid("streams %s and %s both listen on %s", other, name, s.Listen)
		}
		listens[s.Listen] = name
	}

	for name, c := range o.Cards {
		if err := c.Hw.Validate(); err != nil {
			return fmt.Errorf("%w: card %s: %w", ErrInvalidOptions, name, err)
		}
		if c.Hint.Kind != device.HintNone && c.Hint.Value == "" {
			return invalid("card %s: %s hint has no value", name, c.Hint.Kind)
		}
		if c.Hint.Kind == device.HintNone && c.PCMHint == "" {
			return invalid("card %s: no hint and no pcm_hint, it can never match", name)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOptions, fmt.Sprintf(format, args...))
}
