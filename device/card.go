package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/opd-ai/audiograph/limits"
)

// HintKind selects how a Hint is compared to a card's long name.
type HintKind int

const (
	// HintNone never matches.
	HintNone HintKind = iota
	// HintUSBPort matches when the port appears in the long name and is
	// immediately followed by a comma, e.g. "usb-101c0000.ehci-1.2".
	HintUSBPort
	// HintName matches long names starting with the value.
	HintName
	// HintLongName matches the exact long name.
	HintLongName
)

var hintKindNames = map[HintKind]string{
	HintNone:     "none",
	HintUSBPort:  "usb-port",
	HintName:     "name",
	HintLongName: "long-name",
}

// String returns the configuration name of the kind.
func (k HintKind) String() string {
	if s, ok := hintKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("HintKind(%d)", int(k))
}

// ParseHintKind is the inverse of String. The empty string parses as
// HintNone.
func ParseHintKind(s string) (HintKind, error) {
	if s == "" {
		return HintNone, nil
	}
	for k, name := range hintKindNames {
		if name == s {
			return k, nil
		}
	}
	return HintNone, fmt.Errorf("%w: %q", ErrUnknownHint, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k HintKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *HintKind) UnmarshalText(text []byte) error {
	parsed, err := ParseHintKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Hint identifies a card by its long name, as in
// "USB Sound Device at usb-101c0000.ehci-1.2, full speed".
type Hint struct {
	Kind  HintKind `yaml:"kind"`
	Value string   `yaml:"value"`
}

// Match reports whether longName satisfies the hint.
func (h Hint) Match(longName string) bool {
	switch h.Kind {
	case HintUSBPort:
		i := strings.Index(longName, h.Value)
		if i < 0 {
			return false
		}
		return strings.HasPrefix(longName[i+len(h.Value):], ",")
	case HintName:
		return strings.HasPrefix(longName, h.Value)
	case HintLongName:
		return longName == h.Value
	default:
		return false
	}
}

// HwParams are the hardware parameters of a stream.
type HwParams struct {
	Channels   int `yaml:"channels"`
	Rate       int `yaml:"rate"`
	Periods    int `yaml:"periods"`
	PeriodSize int `yaml:"period_size"` // Frames per period
}

// DefaultHwParams returns stereo 48kHz with two 1ms periods.
func DefaultHwParams() HwParams {
	return HwParams{Channels: 2, Rate: 48000, Periods: 2, PeriodSize: 48}
}

// HwParams32ms returns stereo 48kHz with 32 1ms periods.
func HwParams32ms() HwParams {
	return HwParams{Channels: 2, Rate: 48000, Periods: 32, PeriodSize: 48}
}

// HwParams64ms returns stereo 48kHz with 32 2ms periods.
func HwParams64ms() HwParams {
	return HwParams{Channels: 2, Rate: 48000, Periods: 32, PeriodSize: 96}
}

// HwParamsMono32ms returns mono 48kHz with 32 1ms periods.
func HwParamsMono32ms() HwParams {
	return HwParams{Channels: 1, Rate: 48000, Periods: 32, PeriodSize: 48}
}

// HwParams44100Hz32ms returns stereo 44.1kHz with 32 1ms periods.
func HwParams44100Hz32ms() HwParams {
	return HwParams{Channels: 2, Rate: 44100, Periods: 32, PeriodSize: 44}
}

// HwParams44100Hz64ms returns stereo 44.1kHz with 32 2ms periods.
func HwParams44100Hz64ms() HwParams {
	return HwParams{Channels: 2, Rate: 44100, Periods: 32, PeriodSize: 88}
}

// BufferFrames is the device queue size in frames.
func (p HwParams) BufferFrames() int { return p.Periods * p.PeriodSize }

// Latency is the duration of the device queue.
func (p HwParams) Latency() time.Duration {
	if p.Rate <= 0 {
		return 0
	}
	return time.Duration(p.BufferFrames()) * time.Second / time.Duration(p.Rate)
}

// Validate checks that the parameters describe a usable stream.
func (p HwParams) Validate() error {
	if err := limits.ValidateChannels(p.Channels); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if err := limits.ValidateRate(p.Rate); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	if p.Periods <= 0 || p.PeriodSize <= 0 {
		return fmt.Errorf("%w: %d periods of %d frames", ErrInvalidParams, p.Periods, p.PeriodSize)
	}
	return nil
}

// SwParams are the software parameters of a stream, in frames.
type SwParams struct {
	AvailMin       int `yaml:"avail_min"`
	StartThreshold int `yaml:"start_threshold"`
}

// SwParamsMs returns parameters that wake up and start after ms milliseconds
// of audio at 48kHz.
func SwParamsMs(ms int) SwParams {
	return SwParams{AvailMin: 48 * ms, StartThreshold: 48 * ms}
}

// Card describes a card a device node should look for and how to open it.
type Card struct {
	DebugName string   `yaml:"name"`
	Hint      Hint     `yaml:"hint"`
	PCMHint   string   `yaml:"pcm_hint"`
	Device    int      `yaml:"device"`
	Hw        HwParams `yaml:"hw"`
	Sw        SwParams `yaml:"sw"`
}

// DefaultCard returns a card matching the "default" PCM with DefaultHwParams.
func DefaultCard() Card {
	return Card{
		DebugName: "default",
		PCMHint:   "default",
		Hw:        DefaultHwParams(),
	}
}

// Matches reports whether info describes this card, either through the hint
// or through an exact PCM name.
func (c Card) Matches(info CardInfo) bool {
	if c.Hint.Match(info.LongName) {
		return true
	}
	return c.PCMHint != "" && (info.LongName == c.PCMHint || info.Name == c.PCMHint)
}
