package device_test

import (
	"errors"
	"testing"
	"time"

	"github.com/opd-ai/audiograph/activation"
	"github.com/opd-ai/audiograph/clock"
	"github.com/opd-ai/audiograph/device"
	"github.com/opd-ai/audiograph/device/devicetest"
	"github.com/opd-ai/audiograph/ring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const usbLongName = "USB Sound Device at usb-101c0000.ehci-1.2, full speed"

func usbCard() device.Card {
	return device.Card{
		DebugName: "usb",
		Hint:      device.Hint{Kind: device.HintUSBPort, Value: "usb-101c0000.ehci-1.2"},
		Hw:        device.HwParams32ms(),
		Sw:        device.SwParamsMs(4),
	}
}

type rig struct {
	backend *devicetest.Backend
	cards   *device.CardList
	ctrl    *activation.Controller
	mock    *clock.Mock
	factory *device.Factory
}

func newRig(t *testing.T, present bool) *rig {
	t.Helper()
	r := &rig{
		backend: devicetest.NewBackend(),
		ctrl:    activation.NewController(),
		mock:    clock.NewMock(),
	}
	if present {
		r.backend.SetCards(device.CardInfo{Index: 1, Name: "USB", LongName: usbLongName})
	}
	r.cards = device.NewCardList(r.backend, r.mock)
	require.NoError(t, r.cards.Refresh())
	r.factory = device.NewFactory(r.backend, r.cards, r.ctrl, r.mock)
	return r
}

func play(s *device.Sink, in *ring.Buffer) {
	s.Update([]*ring.Buffer{in}, nil)
}

// runningSink returns a sink whose stream has been opened.
func runningSink(t *testing.T, r *rig) (*device.Sink, *devicetest.Stream, *ring.Buffer) {
	t.Helper()
	sink, err := r.factory.Playback(usbCard())
	require.NoError(t, err)
	in := ring.New()
	play(sink, in)
	require.Equal(t, device.StateActivating, sink.State())
	play(sink, in)
	require.Equal(t, device.StateRunning, sink.State())
	stream := r.backend.Last()
	require.NotNil(t, stream)
	return sink, stream, in
}

func TestSinkActivatesThenPlays(t *testing.T) {
	r := newRig(t, true)
	sink, err := r.factory.Playback(usbCard())
	require.NoError(t, err)

	in := ring.New()
	in.WriteSilence(1000)
	play(sink, in)
	assert.Equal(t, device.StateActivating, sink.State())
	assert.Equal(t, activation.Activating, r.ctrl.State(), "the permit is held while activating")
	assert.Nil(t, r.backend.Last(), "nothing is opened on the tick the permit is taken")

	play(sink, in)
	stream := r.backend.Last()
	require.NotNil(t, stream)
	assert.Equal(t, activation.Running, r.ctrl.State(), "the permit is released after opening")
	assert.Equal(t, 0, in.Len(), "stale input is dropped on open")
	assert.Len(t, stream.Written(), 48*2, "an empty device is primed with one period of silence")

	audio := make([]int16, 200)
	for i := range audio {
		audio[i] = int16(i + 1)
	}
	in.WriteFrom(len(audio), audio)
	play(sink, in)
	written := stream.Written()
	require.Len(t, written, 96+200)
	assert.Equal(t, audio, written[96:])
	assert.Equal(t, 0, in.Len())
}

func TestSinkRespectsDeviceSpace(t *testing.T) {
	r := newRig(t, true)
	sink, stream, in := runningSink(t, r)

	in.WriteSilence(4000)
	play(sink, in)
	assert.Equal(t, device.HwParams32ms().BufferFrames(), stream.Queued())
	assert.Equal(t, 4000-(1536-48)*2, in.Len(), "frames that do not fit stay in the input")

	stream.Drain(100)
	play(sink, in)
	assert.Equal(t, 1536, stream.Queued())
}

func TestSinkCooldownWhenCardMissing(t *testing.T) {
	r := newRig(t, false)
	sink, err := r.factory.Playback(usbCard())
	require.NoError(t, err)
	in := ring.New()

	play(sink, in)
	assert.Equal(t, device.StateCooldown, sink.State())

	r.backend.SetCards(device.CardInfo{Index: 1, LongName: usbLongName})
	require.NoError(t, r.cards.Refresh())

	play(sink, in)
	assert.Equal(t, device.StateCooldown, sink.State())

	r.mock.Advance(4 * time.Second)
	play(sink, in)
	assert.Equal(t, device.StateCooldown, sink.State(), "the cooldown lasts strictly longer than four seconds")

	r.mock.Advance(time.Millisecond)
	play(sink, in)
	assert.Equal(t, device.StateActivating, sink.State())
}

func TestSinkOpenFailureReleasesPermit(t *testing.T) {
	r := newRig(t, true)
	r.backend.SetOpenError(errors.New("device busy"))
	sink, err := r.factory.Playback(usbCard())
	require.NoError(t, err)
	in := ring.New()

	play(sink, in)
	play(sink, in)
	assert.Equal(t, device.StateCooldown, sink.State())
	assert.Equal(t, activation.Running, r.ctrl.State())

	r.backend.SetOpenError(nil)
	r.mock.Advance(5 * time.Second)
	play(sink, in)
	play(sink, in)
	assert.Equal(t, device.StateRunning, sink.State())
}

func TestSinkDisconnect(t *testing.T) {
	r := newRig(t, true)
	sink, stream, in := runningSink(t, r)

	stream.SetStatus(device.StatusDisconnected)
	play(sink, in)
	assert.True(t, stream.Closed())
	assert.Equal(t, device.StateCooldown, sink.State())

	r.mock.Advance(5 * time.Second)
	play(sink, in)
	play(sink, in)
	assert.Equal(t, device.StateRunning, sink.State())
	assert.NotSame(t, stream, r.backend.Last(), "a fresh stream is opened")
}

func TestSinkStatusErrorDisconnects(t *testing.T) {
	r := newRig(t, true)
	sink, stream, in := runningSink(t, r)

	stream.SetStatusError(errors.New("io error"))
	play(sink, in)
	assert.True(t, stream.Closed())
	assert.Equal(t, device.StateCooldown, sink.State())
}

func TestOverrunIsRecovered(t *testing.T) {
	r := newRig(t, true)
	sink, stream, in := runningSink(t, r)

	stream.SetStatus(device.StatusOverrun)
	play(sink, in)
	assert.Equal(t, 1, stream.Prepares())
	assert.False(t, stream.Closed())
	assert.Equal(t, device.StateRunning, sink.State())
}

func TestSinkPausesWhileAnotherDeviceActivates(t *testing.T) {
	r := newRig(t, true)
	sink, stream, in := runningSink(t, r)
	stream.Drain(stream.Queued())

	guard := r.ctrl.Activate()
	require.NotNil(t, guard)

	in.WriteSilence(100)
	play(sink, in)
	assert.True(t, stream.Paused())
	assert.Equal(t, device.StatePaused, sink.State())
	assert.Equal(t, 0, stream.Queued(), "nothing is written while paused")

	guard.Release()
	play(sink, in)
	assert.False(t, stream.Paused())
	assert.Equal(t, device.StateRunning, sink.State())
	assert.Equal(t, 0, stream.Queued(), "the resuming tick does not write")

	play(sink, in)
	assert.Positive(t, stream.Queued())
}

func TestSinkClose(t *testing.T) {
	r := newRig(t, true)
	sink, stream, _ := runningSink(t, r)
	require.NoError(t, sink.Close())
	assert.True(t, stream.Closed())
	assert.NoError(t, sink.Close(), "closing twice is harmless")
}

func capture(s *device.Source, out *ring.Buffer) {
	s.Update(nil, []*ring.Buffer{out})
}

func TestSourceWaitsForStartThreshold(t *testing.T) {
	r := newRig(t, true)
	source, err := r.factory.Capture(usbCard())
	require.NoError(t, err)
	out := ring.New()

	capture(source, out)
	assert.False(t, out.Active)
	capture(source, out)
	assert.False(t, out.Active, "the opening tick produces nothing")

	stream := r.backend.Last()
	require.NotNil(t, stream)
	assert.Equal(t, device.Capture, stream.Direction)

	capture(source, out)
	assert.True(t, out.Active)
	assert.Equal(t, 1, stream.Starts(), "a prepared capture stream is started")

	frames := make([]int16, 100*2)
	stream.Feed(frames...)
	capture(source, out)
	assert.Equal(t, 0, out.Len(), "reading waits for the start threshold")

	stream.Feed(frames...)
	capture(source, out)
	assert.Equal(t, 400, out.Len())

	stream.Feed(2, 3)
	capture(source, out)
	assert.Equal(t, 402, out.Len(), "once reading, any available frame is taken")
}

func TestSourceInactiveWhilePaused(t *testing.T) {
	r := newRig(t, true)
	source, err := r.factory.Capture(usbCard())
	require.NoError(t, err)
	out := ring.New()
	capture(source, out)
	capture(source, out)
	capture(source, out)
	require.True(t, out.Active)

	guard := r.ctrl.Activate()
	require.NotNil(t, guard)
	capture(source, out)
	assert.False(t, out.Active)
	assert.Equal(t, device.StatePaused, source.State())

	guard.Release()
	capture(source, out)
	capture(source, out)
	assert.True(t, out.Active)
}

func TestStateAndDirectionNames(t *testing.T) {
	tests := []struct {
		state device.State
		want  string
	}{
		{device.StateSearching, "searching"},
		{device.StateCooldown, "cooldown"},
		{device.StateActivating, "activating"},
		{device.StateRunning, "running"},
		{device.StatePaused, "paused"},
		{device.State(42), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
			text, err := tt.state.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(text))
		})
	}
	assert.Equal(t, "playback", device.Playback.String())
	assert.Equal(t, "capture", device.Capture.String())
}

func TestSinkKeepsFramesTheDeviceRefuses(t *testing.T) {
	r := newRig(t, true)
	sink, stream, in := runningSink(t, r)
	queued := stream.Queued()

	audio := make([]int16, 200)
	for i := range audio {
		audio[i] = int16(i + 1)
	}
	in.WriteFrom(len(audio), audio)

	stream.SetWriteLimit(0)
	play(sink, in)
	assert.Equal(t, len(audio), in.Len(), "a busy device consumes nothing")
	assert.Equal(t, queued, stream.Queued())

	stream.SetWriteLimit(30)
	play(sink, in)
	assert.Equal(t, len(audio)-60, in.Len(), "only the accepted frames leave the input")

	stream.SetWriteLimit(-1)
	play(sink, in)
	assert.Equal(t, 0, in.Len())
	written := stream.Written()
	require.GreaterOrEqual(t, len(written), len(audio))
	assert.Equal(t, audio, written[len(written)-len(audio):], "audio reaches the device in order")
}

func TestFactoryDevices(t *testing.T) {
	r := newRig(t, true)
	_, err := r.factory.Playback(usbCard())
	require.NoError(t, err)
	_, err = r.factory.Capture(usbCard())
	require.NoError(t, err)

	devices := r.factory.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, "playback", devices[0].Direction)
	assert.Equal(t, "capture", devices[1].Direction)
	assert.Equal(t, device.StateSearching, devices[0].State)
}

func TestFactoryRejectsInvalidParams(t *testing.T) {
	r := newRig(t, true)
	card := usbCard()
	card.Hw.Periods = 0
	_, err := r.factory.Playback(card)
	assert.ErrorIs(t, err, device.ErrInvalidParams)
}
