package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/opd-ai/audiograph/activation"
	"github.com/opd-ai/audiograph/clock"
	"github.com/opd-ai/audiograph/config"
	"github.com/opd-ai/audiograph/control"
	"github.com/opd-ai/audiograph/device"
	otobackend "github.com/opd-ai/audiograph/device/oto"
	"github.com/opd-ai/audiograph/device/portaudio"
	"github.com/opd-ai/audiograph/engine"
	"github.com/opd-ai/audiograph/internal/topology"
	"github.com/opd-ai/audiograph/stream"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CLIConfig holds the command-line flags. Non-empty values override the
// configuration file.
type CLIConfig struct {
	configPath string
	topology   string
	httpAddr   string
	backend    string
	logLevel   string
	logFormat  string
	logFile    string
	help       bool
}

// parseCLIFlags parses args into a CLIConfig.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cli := &CLIConfig{}

	fs.StringVar(&cli.configPath, "config", "", "YAML configuration file (default: built-in house configuration)")
	fs.StringVar(&cli.topology, "topology", "", "Topology preset: "+strings.Join(topology.Names(), ", "))
	fs.StringVar(&cli.httpAddr, "http", "", "Control server listen address")
	fs.StringVar(&cli.backend, "backend", "", "Device backend: portaudio or oto")

	fs.StringVar(&cli.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&cli.logFormat, "log-format", "text", "Log format (text, json)")
	fs.StringVar(&cli.logFile, "log-file", "", "Log file path (default: stderr)")

	fs.BoolVar(&cli.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cli, nil
}

// printUsage prints the usage information.
func printUsage(fs *flag.FlagSet) {
	fmt.Println("audiograph: real-time audio routing engine")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fs.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  # Run the house topology on PortAudio\n")
	fmt.Printf("  %s\n", os.Args[0])
	fmt.Println()
	fmt.Printf("  # Play TCP stream \"music\" on the default output through oto\n")
	fmt.Printf("  %s -topology stream -backend oto\n", os.Args[0])
}

// setupLogging configures the package-level logrus logger. The returned
// closer closes the log file, if any.
func setupLogging(cli *CLIConfig) (io.Closer, error) {
	level, err := logrus.ParseLevel(cli.logLevel)
	if err != nil {
		return nil, err
	}
	logrus.SetLevel(level)

	switch cli.logFormat {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	default:
		return nil, fmt.Errorf("unknown log format %q", cli.logFormat)
	}

	if cli.logFile == "" {
		logrus.SetOutput(os.Stderr)
		return io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(cli.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logrus.SetOutput(f)
	return f, nil
}

// loadOptions reads the configuration file, if any, and applies the flag
// overrides.
func loadOptions(cli *CLIConfig) (*config.Options, error) {
	opts := config.Default()
	if cli.configPath != "" {
		var err error
		if opts, err = config.Load(cli.configPath); err != nil {
			return nil, err
		}
	}
	if cli.topology != "" {
		opts.Topology = cli.topology
	}
	if cli.httpAddr != "" {
		opts.HTTPAddr = cli.httpAddr
	}
	if cli.backend != "" {
		opts.Backend = cli.backend
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// openBackend opens the named device backend. The closer releases it.
func openBackend(name string) (device.Backend, io.Closer, error) {
	switch name {
	case config.BackendPortAudio:
		b, err := portaudio.New()
		if err != nil {
			return nil, nil, err
		}
		return b, b, nil
	case config.BackendOto:
		return otobackend.New(), io.NopCloser(nil), nil
	}
	return nil, nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalidOptions, name)
}

// app is one assembled engine with its collaborators.
type app struct {
	opts    *config.Options
	cards   *device.CardList
	streams map[string]*stream.Buffer
	engine  *engine.Engine
	server  *control.Server
}

// newApp builds the topology named in opts on backend. backendCloser, if
// not nil, is closed after everything that uses the backend.
func newApp(opts *config.Options, backend device.Backend, backendCloser io.Closer, tp clock.TimeProvider) (*app, error) {
	ctrl := activation.NewController()
	cards := device.NewCardList(backend, tp)
	cards.SetInterval(opts.CardPoll)
	factory := device.NewFactory(backend, cards, ctrl, tp)
	factory.SetCooldown(opts.CooldownTime)

	streams := make(map[string]*stream.Buffer, len(opts.Streams))
	for name := range opts.Streams {
		streams[name] = stream.NewBuffer(name, ctrl, tp)
	}

	top, err := topology.Build(opts.Topology, topology.Env{
		Options:      opts,
		Factory:      factory,
		Streams:      streams,
		TimeProvider: tp,
	})
	if err != nil {
		return nil, err
	}

	eng := engine.New(top.Graph, tp)
	eng.AddUpdater(cards)
	if backendCloser != nil {
		eng.AddCloser(backendCloser)
	}
	for _, b := range streams {
		eng.AddCloser(b)
	}
	for _, c := range top.Closers {
		eng.AddCloser(c)
	}

	server := control.New(control.Config{
		Chrome:     top.Chrome,
		Toslink:    top.Toslink,
		Streams:    streams,
		Levels:     top.Levels,
		Activation: ctrl,
		Devices:    factory.Devices,
		Metrics:    eng.Metrics().Snapshot,
		Shutdown:   eng.Shutdown,
	})

	return &app{opts: opts, cards: cards, streams: streams, engine: eng, server: server}, nil
}

// run drives every goroutine until ctx is done, the shutdown control is
// used or one of them fails. A requested shutdown is not an error.
func (a *app) run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.cards.Run(ctx) })
	g.Go(func() error { return a.server.ListenAndServe(ctx, a.opts.HTTPAddr) })
	for name, so := range a.opts.Streams {
		b := a.streams[name]
		if so.Listen != "" {
			dec := decoder(so)
			g.Go(func() error { return stream.ListenTCP(ctx, so.Listen, b, dec) })
		}
		if so.File != "" {
			g.Go(func() error { return playFile(ctx, so.File, b) })
		}
	}
	g.Go(func() error { return a.engine.Run(ctx) })

	err := g.Wait()
	if closeErr := a.engine.Close(); closeErr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "app.run",
			"error":    closeErr.Error(),
		}).Warn("Teardown incomplete")
	}
	if errors.Is(err, engine.ErrShutdown) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// decoder returns the connection decoder for a stream's encoding.
func decoder(so config.StreamOptions) stream.Decoder {
	if so.Encoding != config.EncodingOpus {
		return nil
	}
	channels := so.Channels
	if channels == 0 {
		channels = 2
	}
	return func(r io.Reader) (io.Reader, error) {
		return stream.NewOpusReader(r, channels)
	}
}

// playFile feeds a WAV file into b in real time. A file that cannot be
// played is logged and skipped.
func playFile(ctx context.Context, path string, b *stream.Buffer) error {
	fields := logrus.Fields{
		"function": "playFile",
		"stream":   b.Name(),
		"path":     path,
	}
	f, err := os.Open(path)
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Failed to open stream file")
		return nil
	}
	defer f.Close()

	r, err := stream.NewWAVReader(f, stream.WAVConfig{Paced: true})
	if err != nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Failed to read stream file")
		return nil
	}
	if err := b.Ingest(ctx, r); err != nil && ctx.Err() == nil {
		fields["error"] = err.Error()
		logrus.WithFields(fields).Warn("Stream file ended early")
	}
	return nil
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cli, err := parseCLIFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cli.help {
		printUsage(fs)
		os.Exit(0)
	}

	logFile, err := setupLogging(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}
	defer logFile.Close()

	opts, err := loadOptions(cli)
	if err != nil {
		logrus.WithError(err).Fatal("Invalid configuration")
	}

	backend, backendCloser, err := openBackend(opts.Backend)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to open device backend")
	}

	a, err := newApp(opts, backend, backendCloser, nil)
	if err != nil {
		backendCloser.Close()
		logrus.WithError(err).Fatal("Failed to build topology")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logrus.WithFields(logrus.Fields{
		"function": "main",
		"topology": opts.Topology,
		"backend":  opts.Backend,
		"http":     opts.HTTPAddr,
	}).Info("Starting audiograph")

	if err := a.run(ctx); err != nil {
		logrus.WithError(err).Error("audiograph stopped")
		os.Exit(1)
	}
	logrus.WithField("function", "main").Info("audiograph stopped")
}
