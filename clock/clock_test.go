package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMockAdvance(t *testing.T) {
	m := NewMock()
	start := m.Now()

	m.Advance(1500 * time.Millisecond)

	assert.Equal(t, 1500*time.Millisecond, m.Since(start))
	assert.Equal(t, start.Add(1500*time.Millisecond), m.Now())
}

func TestOrDefault(t *testing.T) {
	assert.IsType(t, DefaultTimeProvider{}, OrDefault(nil))

	m := NewMock()
	assert.Same(t, m, OrDefault(m))
}

func TestDefaultTimeProvider(t *testing.T) {
	tp := DefaultTimeProvider{}
	before := tp.Now()
	assert.GreaterOrEqual(t, tp.Since(before), time.Duration(0))
}
