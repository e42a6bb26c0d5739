package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/audiograph/clock"
	"github.com/opd-ai/audiograph/limits"
	"github.com/sirupsen/logrus"
)

// CardList keeps a snapshot of the cards present on the system.
//
// Enumeration can take a long time, so it runs on the goroutine started by
// Run. The graph goroutine asks for a refresh through Poll, which is rate
// limited and never blocks, and looks cards up with Find, which gives up
// immediately when the snapshot is being replaced.
type CardList struct {
	enum     Enumerator
	tp       clock.TimeProvider
	interval time.Duration
	poke     chan struct{}

	mu    sync.Mutex
	cards []CardInfo

	// Owned by the goroutine calling Poll.
	lastPoll time.Time
}

// NewCardList creates a list that is empty until the first Refresh. A nil
// tp uses the wall clock.
func NewCardList(enum Enumerator, tp clock.TimeProvider) *CardList {
	tp = clock.OrDefault(tp)
	return &CardList{
		enum:     enum,
		tp:       tp,
		interval: limits.CardPollInterval,
		poke:     make(chan struct{}, 1),
		lastPoll: tp.Now(),
	}
}

// SetInterval changes the minimum delay between two refresh requests made by
// Poll. It must be called before the engine starts.
func (l *CardList) SetInterval(d time.Duration) {
	if d > 0 {
		l.interval = d
	}
}

// Run refreshes the list once and then again every time Poll requests it,
// until ctx is done. Enumeration errors are logged and keep the previous
// snapshot.
func (l *CardList) Run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"function": "CardList.Run",
		"interval": l.interval,
	}).Info("Starting card enumeration")

	for {
		if err := l.Refresh(); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "CardList.Run",
				"error":    err.Error(),
			}).Warn("Card enumeration failed")
		}
		select {
		case <-ctx.Done():
			logrus.WithFields(logrus.Fields{
				"function": "CardList.Run",
			}).Info("Card enumeration stopped")
			return nil
		case <-l.poke:
		}
	}
}

// Refresh enumerates the cards and replaces the snapshot. It blocks.
func (l *CardList) Refresh() error {
	cards, err := l.enum.Cards()
	if err != nil {
		return fmt.Errorf("enumerate cards: %w", err)
	}
	l.mu.Lock()
	l.cards = cards
	l.mu.Unlock()
	return nil
}

// Poll requests a refresh when more than the poll interval has passed since
// the previous request. It never blocks.
func (l *CardList) Poll() {
	now := l.tp.Now()
	if now.Sub(l.lastPoll) <= l.interval {
		return
	}
	l.lastPoll = now
	select {
	case l.poke <- struct{}{}:
	default:
	}
}

// Find looks up the first card matching c without blocking. ok is false when
// the snapshot could not be inspected this time; found is only meaningful
// when ok is true.
func (l *CardList) Find(c Card) (info CardInfo, found, ok bool) {
	if !l.mu.TryLock() {
		return CardInfo{}, false, false
	}
	defer l.mu.Unlock()
	for _, candidate := range l.cards {
		if c.Matches(candidate) {
			return candidate, true, true
		}
	}
	return CardInfo{}, false, true
}

// Cards returns a copy of the current snapshot.
func (l *CardList) Cards() []CardInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]CardInfo(nil), l.cards...)
}
