package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opd-ai/audiograph/config"
	"github.com/opd-ai/audiograph/device/devicetest"
	"github.com/opd-ai/audiograph/internal/topology"
	"github.com/opd-ai/audiograph/stream"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) *CLIConfig {
	t.Helper()
	fs := flag.NewFlagSet("audiograph", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cli, err := parseCLIFlags(fs, args)
	require.NoError(t, err)
	return cli
}

func TestParseCLIFlags(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cli := parse(t)
		assert.Equal(t, "info", cli.logLevel)
		assert.Equal(t, "text", cli.logFormat)
		assert.Empty(t, cli.configPath)
		assert.Empty(t, cli.topology)
		assert.False(t, cli.help)
	})

	t.Run("overrides", func(t *testing.T) {
		cli := parse(t, "-config", "house.yaml", "-topology", "stream", "-http", ":9000",
			"-backend", "oto", "-log-level", "debug", "-log-format", "json", "-help")
		assert.Equal(t, "house.yaml", cli.configPath)
		assert.Equal(t, "stream", cli.topology)
		assert.Equal(t, ":9000", cli.httpAddr)
		assert.Equal(t, "oto", cli.backend)
		assert.Equal(t, "debug", cli.logLevel)
		assert.Equal(t, "json", cli.logFormat)
		assert.True(t, cli.help)
	})

	t.Run("unknown flag", func(t *testing.T) {
		fs := flag.NewFlagSet("audiograph", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		_, err := parseCLIFlags(fs, []string{"-bogus"})
		assert.Error(t, err)
	})
}

func TestLoadOptions(t *testing.T) {
	tests := []struct {
		name    string
		cli     CLIConfig
		file    string
		wantErr error
		check   func(t *testing.T, opts *config.Options)
	}{
		{
			name: "built-in defaults",
			check: func(t *testing.T, opts *config.Options) {
				assert.Equal(t, config.Default(), opts)
			},
		},
		{
			name: "flags override",
			cli:  CLIConfig{topology: "stream", httpAddr: "127.0.0.1:9000", backend: "oto"},
			check: func(t *testing.T, opts *config.Options) {
				assert.Equal(t, "stream", opts.Topology)
				assert.Equal(t, "127.0.0.1:9000", opts.HTTPAddr)
				assert.Equal(t, config.BackendOto, opts.Backend)
			},
		},
		{
			name: "flags override the file",
			cli:  CLIConfig{topology: "passthrough"},
			file: "topology: stream\nlean_samples: 512\n",
			check: func(t *testing.T, opts *config.Options) {
				assert.Equal(t, "passthrough", opts.Topology)
				assert.Equal(t, 512, opts.LeanSamples)
			},
		},
		{
			name:    "unknown backend",
			cli:     CLIConfig{backend: "jack"},
			wantErr: config.ErrInvalidOptions,
		},
		{
			name:    "invalid file",
			file:    "lean_samples: 0\n",
			wantErr: config.ErrInvalidOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cli := tt.cli
			if tt.file != "" {
				cli.configPath = filepath.Join(t.TempDir(), "audiograph.yaml")
				require.NoError(t, os.WriteFile(cli.configPath, []byte(tt.file), 0o644))
			}
			opts, err := loadOptions(&cli)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, opts)
		})
	}
}

func TestSetupLogging(t *testing.T) {
	defer func() {
		logrus.SetOutput(os.Stderr)
		logrus.SetFormatter(&logrus.TextFormatter{})
		logrus.SetLevel(logrus.InfoLevel)
	}()

	t.Run("json to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audiograph.log")
		closer, err := setupLogging(&CLIConfig{logLevel: "debug", logFormat: "json", logFile: path})
		require.NoError(t, err)
		assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

		logrus.WithField("stream", "music").Debug("hello")
		require.NoError(t, closer.Close())

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"msg":"hello"`)
		assert.Contains(t, string(data), `"stream":"music"`)
	})

	t.Run("stderr", func(t *testing.T) {
		closer, err := setupLogging(&CLIConfig{logLevel: "warn", logFormat: "text"})
		require.NoError(t, err)
		assert.NoError(t, closer.Close())
		assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	})

	t.Run("bad level", func(t *testing.T) {
		_, err := setupLogging(&CLIConfig{logLevel: "loud", logFormat: "text"})
		assert.Error(t, err)
	})

	t.Run("bad format", func(t *testing.T) {
		_, err := setupLogging(&CLIConfig{logLevel: "info", logFormat: "xml"})
		assert.Error(t, err)
	})
}

func TestOpenBackendRejectsUnknown(t *testing.T) {
	_, _, err := openBackend("jack")
	assert.ErrorIs(t, err, config.ErrInvalidOptions)
}

func TestDecoder(t *testing.T) {
	assert.Nil(t, decoder(config.StreamOptions{Encoding: config.EncodingPCM}))
	assert.Nil(t, decoder(config.StreamOptions{}))

	dec := decoder(config.StreamOptions{Encoding: config.EncodingOpus})
	require.NotNil(t, dec)
	r, err := dec(bytes.NewReader(nil))
	require.NoError(t, err)
	_, err = r.Read(make([]byte, 2))
	assert.ErrorIs(t, err, io.EOF)
}

type closeRecorder struct{ closed *[]string }

func (c closeRecorder) Close() error {
	*c.closed = append(*c.closed, "backend")
	return nil
}

func TestAppRunStopsOnShutdown(t *testing.T) {
	opts := config.Default()
	opts.Topology = "stream"
	opts.HTTPAddr = "127.0.0.1:0"
	opts.Streams = map[string]config.StreamOptions{
		"music":  {Listen: "127.0.0.1:0", Encoding: config.EncodingPCM},
		"chrome": {Encoding: config.EncodingPCM},
	}

	var closed []string
	a, err := newApp(opts, devicetest.NewBackend(), closeRecorder{&closed}, nil)
	require.NoError(t, err)
	require.Contains(t, a.streams, "music")

	done := make(chan error, 1)
	go func() { done <- a.run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	a.engine.Shutdown()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after shutdown")
	}
	assert.Equal(t, []string{"backend"}, closed, "the backend is closed once, last")
	assert.Equal(t, stream.Idle, a.streams["music"].State())
}

func TestAppRejectsUnknownTopology(t *testing.T) {
	opts := config.Default()
	opts.Topology = "garage"
	_, err := newApp(opts, devicetest.NewBackend(), nil, nil)
	assert.ErrorIs(t, err, topology.ErrUnknownTopology)
}
