package device

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usbLongName = "USB Sound Device at usb-101c0000.ehci-1.2, full speed"

func TestHintMatch(t *testing.T) {
	tests := []struct {
		name     string
		hint     Hint
		longName string
		want     bool
	}{
		{"none never matches", Hint{}, usbLongName, false},
		{"usb port followed by comma", Hint{HintUSBPort, "usb-101c0000.ehci-1.2"}, usbLongName, true},
		{"usb port prefix of longer port", Hint{HintUSBPort, "usb-101c0000.ehci-1"}, usbLongName, false},
		{"usb port at end of name", Hint{HintUSBPort, "full speed"}, usbLongName, false},
		{"usb port absent", Hint{HintUSBPort, "usb-1.3"}, usbLongName, false},
		{"name prefix", Hint{HintName, "USB Sound Device"}, usbLongName, true},
		{"name not prefix", Hint{HintName, "Sound Device"}, usbLongName, false},
		{"long name exact", Hint{HintLongName, usbLongName}, usbLongName, true},
		{"long name partial", Hint{HintLongName, "USB Sound Device"}, usbLongName, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hint.Match(tt.longName))
		})
	}
}

func TestCardMatchesPCMHint(t *testing.T) {
	card := DefaultCard()
	assert.True(t, card.Matches(CardInfo{Name: "default"}))
	assert.True(t, card.Matches(CardInfo{LongName: "default"}))
	assert.False(t, card.Matches(CardInfo{Name: "hw:1", LongName: usbLongName}))

	card.PCMHint = ""
	assert.False(t, card.Matches(CardInfo{}), "an empty PCM hint must not match unnamed cards")
}

func TestParseHintKind(t *testing.T) {
	for _, k := range []HintKind{HintNone, HintUSBPort, HintName, HintLongName} {
		parsed, err := ParseHintKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}

	parsed, err := ParseHintKind("")
	require.NoError(t, err)
	assert.Equal(t, HintNone, parsed)

	_, err = ParseHintKind("serial")
	assert.ErrorIs(t, err, ErrUnknownHint)

	var k HintKind
	require.NoError(t, k.UnmarshalText([]byte("usb-port")))
	assert.Equal(t, HintUSBPort, k)
}

func TestHwParamsPresets(t *testing.T) {
	tests := []struct {
		name     string
		params   HwParams
		channels int
		rate     int
		latency  time.Duration
	}{
		{"default", DefaultHwParams(), 2, 48000, 2 * time.Millisecond},
		{"32ms", HwParams32ms(), 2, 48000, 32 * time.Millisecond},
		{"64ms", HwParams64ms(), 2, 48000, 64 * time.Millisecond},
		{"mono 32ms", HwParamsMono32ms(), 1, 48000, 32 * time.Millisecond},
		{"44.1kHz 32ms", HwParams44100Hz32ms(), 2, 44100, 31927437 * time.Nanosecond},
		{"44.1kHz 64ms", HwParams44100Hz64ms(), 2, 44100, 63854875 * time.Nanosecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, tt.params.Validate())
			assert.Equal(t, tt.channels, tt.params.Channels)
			assert.Equal(t, tt.rate, tt.params.Rate)
			assert.Equal(t, tt.latency, tt.params.Latency())
		})
	}
}

func TestHwParamsValidate(t *testing.T) {
	bad := []HwParams{
		{Channels: 0, Rate: 48000, Periods: 2, PeriodSize: 48},
		{Channels: 2, Rate: 0, Periods: 2, PeriodSize: 48},
		{Channels: 2, Rate: 48000, Periods: 0, PeriodSize: 48},
		{Channels: 2, Rate: 48000, Periods: 2, PeriodSize: 0},
	}
	for _, p := range bad {
		assert.ErrorIs(t, p.Validate(), ErrInvalidParams, "%+v", p)
	}
}

func TestSwParamsMs(t *testing.T) {
	assert.Equal(t, SwParams{AvailMin: 192, StartThreshold: 192}, SwParamsMs(4))
	assert.Equal(t, SwParams{AvailMin: 1536, StartThreshold: 1536}, SwParamsMs(32))
}
