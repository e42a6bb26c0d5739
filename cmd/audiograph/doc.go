// Package main provides the command-line entry point of the audio engine.
//
// # Overview
//
// audiograph loads its configuration, opens the device backend and builds
// one of the fixed topologies. The graph is then ticked on a dedicated
// goroutine while the card enumerator, the stream listeners and the HTTP
// control server run beside it. SIGINT, SIGTERM and the shutdown button of
// the control page all stop the engine cleanly.
//
// # Usage
//
// Run the house topology with the built-in card table:
//
//	go run ./cmd/audiograph
//
// Run the single-stream topology on the default output through oto:
//
//	go run ./cmd/audiograph -topology stream -backend oto
//
// Load a configuration file and log JSON to a file:
//
//	go run ./cmd/audiograph -config house.yaml -log-format json -log-file audiograph.log
//
// # Configuration Options
//
//   - -config: YAML configuration file, overlaid on the built-in defaults
//   - -topology: Topology preset (house, passthrough, stream)
//   - -http: Control server listen address
//   - -backend: Device backend (portaudio, oto)
//   - -log-level: logrus level (default: info)
//   - -log-format: text or json (default: text)
//   - -log-file: Append logs to a file instead of stderr
//
// Flags given on the command line override the configuration file.
//
// # Exit Codes
//
//   - 0: Clean shutdown
//   - 1: Configuration, device or runtime failure
//   - 2: Invalid command-line flags
package main
