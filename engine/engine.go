// Package engine drives a graph: it ticks it in a tight loop on one
// goroutine, polls the background collaborators between ticks and tears
// everything down when the loop ends.
package engine

import (
	"context"
	"errors"
	"io"
	"runtime"

	"github.com/opd-ai/audiograph/clock"
	"github.com/opd-ai/audiograph/graph"
	"github.com/opd-ai/audiograph/nodes"
	"github.com/sirupsen/logrus"
)

// ErrShutdown is returned by Run when the shutdown flag was raised.
var ErrShutdown = errors.New("shutdown requested")

// Updater is called on the graph goroutine after every tick.
// device.CardList satisfies it.
type Updater interface {
	Poll()
}

// Engine owns the tick loop of one graph.
type Engine struct {
	graph    *graph.Graph
	tp       clock.TimeProvider
	shutdown *nodes.Gate
	metrics  *TickMetrics

	updaters []Updater
	closers  []io.Closer
}

// New creates an engine for g. A nil tp uses the wall clock.
func New(g *graph.Graph, tp clock.TimeProvider) *Engine {
	logrus.WithFields(logrus.Fields{
		"function": "engine.New",
		"nodes":    g.Len(),
	}).Debug("Creating engine")

	return &Engine{
		graph:    g,
		tp:       clock.OrDefault(tp),
		shutdown: nodes.NewGate(false),
		metrics:  NewTickMetrics(),
	}
}

// AddUpdater registers u to be polled after every tick.
func (e *Engine) AddUpdater(u Updater) {
	e.updaters = append(e.updaters, u)
}

// AddCloser registers c to be closed by Close. Closers run in reverse
// registration order.
func (e *Engine) AddCloser(c io.Closer) {
	e.closers = append(e.closers, c)
}

// ShutdownFlag returns the shared flag that stops Run when raised.
func (e *Engine) ShutdownFlag() *nodes.Gate { return e.shutdown }

// Shutdown raises the shutdown flag. It is safe to call from any goroutine.
func (e *Engine) Shutdown() {
	logrus.WithField("function", "Engine.Shutdown").Info("Shutdown requested")
	e.shutdown.Set(true)
}

// Metrics returns the engine's tick statistics.
func (e *Engine) Metrics() *TickMetrics { return e.metrics }

// Run ticks the graph until ctx is done or the shutdown flag is raised. The
// flag is read with a try-lock between ticks, so a contended read just
// postpones the check. Run returns ctx.Err() or ErrShutdown.
func (e *Engine) Run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"function": "Engine.Run",
		"nodes":    e.graph.Len(),
		"updaters": len(e.updaters),
	}).Info("Starting engine")

	for {
		if err := ctx.Err(); err != nil {
			e.stopped("context done")
			return err
		}
		if stop, ok := e.shutdown.TryGet(); ok && stop {
			e.stopped("shutdown flag")
			return ErrShutdown
		}
		runtime.Gosched()
		e.Tick()
	}
}

// Tick runs one graph update followed by every updater.
func (e *Engine) Tick() {
	if e.metrics.next() {
		start := e.tp.Now()
		e.graph.Update()
		e.metrics.record(e.tp.Since(start))
	} else {
		e.graph.Update()
	}
	for _, u := range e.updaters {
		u.Poll()
	}
}

func (e *Engine) stopped(reason string) {
	m := e.metrics.Snapshot()
	logrus.WithFields(logrus.Fields{
		"function": "Engine.Run",
		"reason":   reason,
		"ticks":    m.Ticks,
		"avg_tick": m.AvgTick.String(),
		"peak":     m.PeakTick.String(),
	}).Info("Engine stopped")
}

// Close closes every registered closer, last registered first, and returns
// the joined errors. It must not be called while Run is ticking.
func (e *Engine) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "Engine.Close",
				"error":    err.Error(),
			}).Warn("Failed to close engine resource")
			errs = append(errs, err)
		}
	}
	e.closers = nil
	return errors.Join(errs...)
}
