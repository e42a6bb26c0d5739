// Package limits provides centralized sample-count constants and validation
// functions shared by the audio graph, its signal nodes and its network-fed
// producers. Keeping them in one place ensures that the ingest side and the
// graph side agree on buffer sizes and timeouts.
//
// # Sample Count Hierarchy
//
// All counts are in interleaved int16 samples unless the name says frames:
//
//   - DefaultRingLength (32768): capacity of every ring buffer created by
//     the graph, roughly 340ms of 48kHz stereo audio.
//
//   - StreamOverflowSamples (16384): a network-fed buffer holding this much
//     unread audio is cleared instead of growing further.
//
//   - StreamActivationSamples (192000): how much audio a stream must deliver
//     while activating before it is considered running (two seconds of
//     48kHz stereo).
//
//   - StreamChunkFrames (192): largest read performed by a stream ingest
//     loop per iteration.
//
// # Validation Functions
//
//	if err := limits.ValidateRate(44100); err != nil {
//	    // ErrInvalidRate
//	}
//
//	if err := limits.ValidatePacket(packet); err != nil {
//	    // ErrPacketEmpty or ErrPacketTooLarge
//	}
package limits
