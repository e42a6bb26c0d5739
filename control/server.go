// Package control is the HTTP surface of the engine: a small HTML page
// with the routing toggles, a JSON status snapshot and endpoints that feed
// request bodies into streams.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opd-ai/audiograph/activation"
	"github.com/opd-ai/audiograph/device"
	"github.com/opd-ai/audiograph/engine"
	"github.com/opd-ai/audiograph/nodes"
	"github.com/opd-ai/audiograph/stream"
	"github.com/sirupsen/logrus"
)

// shutdownTimeout bounds how long Serve waits for requests to finish.
const shutdownTimeout = 5 * time.Second

// toslinkPositions is the number of positions of the optical switch.
const toslinkPositions = 3

// Config is the shared state the server reads and changes. Nil fields
// disable the matching controls.
type Config struct {
	Chrome     *nodes.Gate
	Toslink    *nodes.Switch
	Streams    map[string]*stream.Buffer
	Levels     map[string]*nodes.Level
	Activation *activation.Controller
	Devices    func() []device.DeviceStatus
	Metrics    func() engine.Metrics
	Shutdown   func()
}

// Server serves the control surface.
type Server struct {
	cfg  Config
	echo *echo.Echo
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{cfg: cfg, echo: e}
	e.GET("/", s.index)
	e.POST("/", s.postIndex)
	e.GET("/status", s.status)
	e.POST("/streams/:name", s.ingest)
	for name := range cfg.Streams {
		e.POST("/"+name, s.ingestNamed(name))
	}

	logrus.WithFields(logrus.Fields{
		"function": "control.New",
		"streams":  len(cfg.Streams),
		"levels":   len(cfg.Levels),
	}).Debug("Created control server")
	return s
}

// Handler returns the server's http.Handler.
func (s *Server) Handler() http.Handler { return s.echo }

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.echo.Listener = ln
	logrus.WithFields(logrus.Fields{
		"function": "Server.Serve",
		"addr":     ln.Addr().String(),
	}).Info("Control server listening")

	errc := make(chan error, 1)
	go func() { errc <- s.echo.Start("") }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("control server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control server shutdown: %w", err)
	}
	logrus.WithField("function", "Server.Serve").Info("Control server stopped")
	return nil
}

func (s *Server) index(c echo.Context) error {
	return s.render(c)
}

// postIndex applies the first control named in the form: chrome toggles the
// chrome gate, toslink cycles the optical switch and shutdown stops the
// engine.
func (s *Server) postIndex(c echo.Context) error {
	fields := logrus.Fields{"function": "Server.postIndex"}
	switch {
	case c.FormValue("chrome") != "" && s.cfg.Chrome != nil:
		fields["chrome"] = s.cfg.Chrome.Toggle()
	case c.FormValue("toslink") != "" && s.cfg.Toslink != nil:
		fields["toslink"] = s.cfg.Toslink.Cycle(toslinkPositions)
	case c.FormValue("shutdown") != "" && s.cfg.Shutdown != nil:
		fields["shutdown"] = true
		s.cfg.Shutdown()
	default:
		return s.render(c)
	}
	logrus.WithFields(fields).Info("Control changed")
	return s.render(c)
}

func (s *Server) ingest(c echo.Context) error {
	return s.ingestNamed(c.Param("name"))(c)
}

func (s *Server) ingestNamed(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, ok := s.cfg.Streams[name]
		if !ok {
			return echo.NewHTTPError(http.StatusNotFound, "unknown stream "+name)
		}
		err := b.Ingest(c.Request().Context(), c.Request().Body)
		switch {
		case err == nil:
			return c.String(http.StatusOK, "Ok")
		case errors.Is(err, stream.ErrAlreadyConnected):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, stream.ErrIdle):
			return echo.NewHTTPError(http.StatusRequestTimeout, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
}

// Status is the JSON snapshot served at /status.
type Status struct {
	Activation string                  `json:"activation"`
	Chrome     *bool                   `json:"chrome,omitempty"`
	Toslink    string                  `json:"toslink,omitempty"`
	Streams    []StreamStatus          `json:"streams"`
	Devices    []device.DeviceStatus   `json:"devices"`
	Levels     map[string]LevelReading `json:"levels"`
	Metrics    *engine.Metrics         `json:"metrics,omitempty"`
}

// StreamStatus describes one stream.
type StreamStatus struct {
	Name      string       `json:"name"`
	State     stream.State `json:"state"`
	Connected bool         `json:"connected"`
}

// LevelReading is one meter reading.
type LevelReading struct {
	Peak int32   `json:"peak"`
	DBFS float64 `json:"dbfs"`
}

func (s *Server) status(c echo.Context) error {
	return c.JSON(http.StatusOK, s.snapshot())
}

func (s *Server) snapshot() Status {
	st := Status{
		Activation: "none",
		Streams:    make([]StreamStatus, 0, len(s.cfg.Streams)),
		Devices:    []device.DeviceStatus{},
		Levels:     make(map[string]LevelReading, len(s.cfg.Levels)),
	}
	if s.cfg.Activation != nil {
		st.Activation = s.cfg.Activation.State().String()
	}
	if s.cfg.Chrome != nil {
		on := s.cfg.Chrome.Get()
		st.Chrome = &on
	}
	if s.cfg.Toslink != nil {
		st.Toslink = toslinkName(s.cfg.Toslink.Get())
	}
	for _, name := range sortedKeys(s.cfg.Streams) {
		b := s.cfg.Streams[name]
		st.Streams = append(st.Streams, StreamStatus{Name: name, State: b.State(), Connected: b.Connected()})
	}
	if s.cfg.Devices != nil {
		st.Devices = s.cfg.Devices()
	}
	for name, l := range s.cfg.Levels {
		st.Levels[name] = LevelReading{Peak: l.Peak(), DBFS: l.DBFS()}
	}
	if s.cfg.Metrics != nil {
		m := s.cfg.Metrics()
		st.Metrics = &m
	}
	return st
}

func toslinkName(pos int) string {
	switch pos {
	case 0:
		return "Off"
	case 1:
		return "PS4"
	case 2:
		return "PC"
	}
	return "Unknown"
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
